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
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
	"github.com/parca-dev/stackgraph/pkg/session"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

func newServer(t *testing.T, p *profile.Profile) (*Server, http.Handler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	tracer := noop.NewTracerProvider().Tracer("")
	s := New(log.NewNopLogger(), reg, tracer, ":0", nil)
	if p != nil {
		s.SetSession(session.New(log.NewNopLogger(), reg, tracer, p, session.Options{}))
	}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func names(nodes []CallNode) []string {
	res := make([]string, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, n.Name)
	}
	return res
}

func TestNoSession(t *testing.T) {
	_, h := newServer(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/threads", "").Code)
}

func TestThreads(t *testing.T) {
	_, h := newServer(t, profiletest.Profile("A B C", "A B", "D"))

	threads := decode[[]ThreadSummary](t, do(t, h, http.MethodGet, "/threads", ""))
	require.Equal(t, []ThreadSummary{{Index: 0, Name: "Thread 0", Samples: 3}}, threads)
}

func TestCallTree(t *testing.T) {
	p := profiletest.Profile("A B C", "A B", "D")
	_, h := newServer(t, p)

	res := decode[CallTreeResponse](t, do(t, h, http.MethodGet, "/threads/0/calltree", ""))
	require.Equal(t, []string{"A", "B", "C", "D"}, names(res.Nodes))
	require.Equal(t, 3.0, res.RootTotal)
	require.Equal(t, 2.0, res.Nodes[0].Total)
	require.Equal(t, -1, res.Nodes[0].Parent)
	require.Equal(t, res.Nodes[0].Node, res.Nodes[1].Parent)

	path, err := transform.DecodePath(res.Nodes[2].Path)
	require.NoError(t, err)
	require.Equal(t, callnode.Path(profiletest.FuncIndexes(p.Threads[0], "A", "B", "C")), path)

	res = decode[CallTreeResponse](t, do(t, h, http.MethodGet, "/threads/0/calltree?depth=0", ""))
	require.Equal(t, []string{"A", "D"}, names(res.Nodes))
	require.True(t, res.Nodes[0].HasChildren)

	b := profiletest.FuncIndex(p.Threads[0], "B")
	res = decode[CallTreeResponse](t, do(t, h, http.MethodGet, fmt.Sprintf("/threads/0/calltree?transforms=mf-%d", b), ""))
	require.Equal(t, []string{"A", "C", "D"}, names(res.Nodes))
	require.Equal(t, fmt.Sprintf("mf-%d", b), res.Transforms)

	res = decode[CallTreeResponse](t, do(t, h, http.MethodGet, "/threads/0/calltree?invert=true", ""))
	require.True(t, res.Inverted)
	roots := []string{}
	for _, n := range res.Nodes {
		if n.Depth == 0 {
			roots = append(roots, n.Name)
		}
	}
	require.ElementsMatch(t, []string{"B", "C", "D"}, roots)
}

func TestCallTreeErrors(t *testing.T) {
	_, h := newServer(t, profiletest.Profile("A B"))

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/threads/0/calltree?transforms=zz-1", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/threads/0/calltree?transforms=mf-9", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/threads/7/calltree", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/threads/main/calltree", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/threads/0/calltree?depth=-1", "").Code)
}

func TestPushPopTransforms(t *testing.T) {
	p := profiletest.Profile("A B C", "A B", "D")
	s, h := newServer(t, p)
	b := profiletest.FuncIndex(p.Threads[0], "B")

	res := decode[TransformsResponse](t, do(t, h, http.MethodPost, "/threads/0/transforms", fmt.Sprintf("mf-%d\n", b)))
	require.Equal(t, fmt.Sprintf("mf-%d", b), res.Transforms)
	require.Len(t, s.Session().Transforms(0), 1)

	labels := decode[TransformsResponse](t, do(t, h, http.MethodGet, "/threads/0/transforms", ""))
	require.Equal(t, []string{`Complete "Thread 0"`, "Merge: B"}, labels.Labels)

	tree := decode[CallTreeResponse](t, do(t, h, http.MethodGet, "/threads/0/calltree", ""))
	require.Equal(t, []string{"A", "C", "D"}, names(tree.Nodes))

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/threads/0/transforms", "df-42").Code)

	res = decode[TransformsResponse](t, do(t, h, http.MethodDelete, "/threads/0/transforms", ""))
	require.Equal(t, "", res.Transforms)
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, "/threads/0/transforms", "").Code)
}

func TestSelection(t *testing.T) {
	p := profiletest.Profile("A B C", "A B", "D")
	_, h := newServer(t, p)
	ab := transform.EncodePath(callnode.Path(profiletest.FuncIndexes(p.Threads[0], "A", "B")))

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/threads/0/selection?path="+ab, "").Code)
	tree := decode[CallTreeResponse](t, do(t, h, http.MethodGet, "/threads/0/calltree", ""))
	require.Equal(t, ab, tree.Selected)

	missing := transform.EncodePath(callnode.Path{42})
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/threads/0/selection?path="+missing, "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/threads/0/selection?path=!!", "").Code)
}

func TestStackTimingAndArrow(t *testing.T) {
	_, h := newServer(t, profiletest.Profile("A B C", "A B", "D"))

	rows := decode[[]StackTimingRow](t, do(t, h, http.MethodGet, "/threads/0/stacktiming", ""))
	require.Len(t, rows, 3)
	require.Equal(t, 2, len(rows[0].Start))

	w := do(t, h, http.MethodGet, "/threads/0/calltree.arrow", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/vnd.apache.arrow.stream", w.Header().Get("Content-Type"))
	require.NotEmpty(t, w.Body.Bytes())
}

func TestMetrics(t *testing.T) {
	_, h := newServer(t, profiletest.Profile("A"))
	do(t, h, http.MethodGet, "/threads", "")

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `stackgraph_http_requests_total{code="200",route="/threads"} 1`)
}

func TestCORS(t *testing.T) {
	s := New(log.NewNopLogger(), prometheus.NewRegistry(), noop.NewTracerProvider().Tracer(""), ":0", []string{"https://profiler.firefox.com"})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set("Origin", "https://profiler.firefox.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "https://profiler.firefox.com", w.Header().Get("Access-Control-Allow-Origin"))
}
