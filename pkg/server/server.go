// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/felixge/fgprof"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/parca-dev/stackgraph/pkg/session"
)

// Server serves the derived structures of the current session over HTTP.
type Server struct {
	logger   log.Logger
	reg      *prometheus.Registry
	tracer   trace.Tracer
	origins  []string
	session  atomic.Pointer[session.Session]
	requests *prometheus.CounterVec

	srv *http.Server
}

func New(logger log.Logger, reg *prometheus.Registry, tracer trace.Tracer, address string, corsAllowedOrigins []string) *Server {
	s := &Server{
		logger:  logger,
		reg:     reg,
		tracer:  tracer,
		origins: corsAllowedOrigins,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stackgraph_http_requests_total",
			Help: "Number of HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(s.requests)
	s.srv = &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetSession replaces the session requests are served from. It is safe to
// call while requests are in flight.
func (s *Server) SetSession(sess *session.Session) {
	s.session.Store(sess)
	level.Info(s.logger).Log("msg", "serving new session", "session", sess.ID().String(), "threads", len(sess.Profile().Threads))
}

func (s *Server) Session() *session.Session {
	return s.session.Load()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Use(s.instrument)

	r.Get("/threads", s.threads)
	r.Route("/threads/{thread}", func(r chi.Router) {
		r.Get("/calltree", s.callTree)
		r.Get("/calltree.arrow", s.callTreeArrow)
		r.Get("/stacktiming", s.stackTiming)
		r.Get("/transforms", s.transforms)
		r.Post("/transforms", s.pushTransform)
		r.Delete("/transforms", s.popTransform)
		r.Put("/selection", s.selectPath)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	r.Handle("/debug/fgprof", fgprof.Handler())
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.requests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		level.Debug(s.logger).Log("msg", "request", "method", r.Method, "route", route, "code", ww.Status(), "duration", time.Since(start))
	})
}

// ListenAndServe serves the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	figure.NewColorFigure("stackgraph", "roman", "cyan", true).Print()

	level.Info(s.logger).Log("msg", "starting server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
