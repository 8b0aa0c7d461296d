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

package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	derivationTransform   = "transform"
	derivationCallNode    = "callnode"
	derivationCallTree    = "calltree"
	derivationStackTiming = "stacktiming"
)

type metrics struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	duration *prometheus.HistogramVec
}

// newMetrics registers the session metrics with reg. A reloaded profile gets
// a new session on the same registry, which then shares the collectors of
// the previous one.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackgraph_session_cache_hits_total",
			Help: "Number of derived structures served from the session cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackgraph_session_cache_misses_total",
			Help: "Number of derived structures computed because they were not cached.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stackgraph_derivation_duration_seconds",
			Help:    "Time spent computing derived structures.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"derivation"}),
	}
	m.hits = register(reg, m.hits)
	m.misses = register(reg, m.misses)
	m.duration = register(reg, m.duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
