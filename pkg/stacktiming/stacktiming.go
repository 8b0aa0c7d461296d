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

// Package stacktiming turns time ordered samples into one row of
// [start, end) intervals per call node depth, the shape a stack chart draws.
package stacktiming

import (
	"sort"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

// Row holds the intervals of one depth, ordered by start time. Intervals in
// a row never overlap.
type Row struct {
	Start    []float64
	End      []float64
	CallNode []int
}

func (r *Row) Len() int {
	return len(r.Start)
}

// Visible returns the range [lo, hi) of intervals intersecting the
// viewport [start, end).
func (r *Row) Visible(start, end float64) (int, int) {
	lo := sort.Search(len(r.End), func(i int) bool { return r.End[i] > start })
	hi := sort.Search(len(r.Start), func(i int) bool { return r.Start[i] >= end })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Timing has one row per depth.
type Timing []Row

type machine struct {
	rows  Timing
	table *callnode.Table

	// Call node and start time of the open box at every depth up to deepest.
	open    []int
	started []float64
	deepest int
}

// ByDepth simulates a stack over samples, which must be sorted by time.
// Every change of call node at a depth closes the box open there and opens
// a new one. A null stack closes everything, and all boxes still open after
// the last sample close at its time plus interval.
func ByDepth(samples *profile.SamplesTable, info *callnode.Info, maxDepth int, interval float64) Timing {
	m := &machine{
		rows:    make(Timing, maxDepth),
		table:   info.Table(),
		open:    make([]int, maxDepth),
		started: make([]float64, maxDepth),
		deepest: -1,
	}

	for i, stack := range samples.Stack {
		time := samples.Time[i]
		if stack == profile.NoStack {
			m.popTo(-1, time)
			continue
		}
		m.step(info.CallNodeForStack(stack), time)
	}
	if n := samples.Len(); n > 0 {
		m.popTo(-1, samples.Time[n-1]+interval)
	}
	return m.rows
}

func (m *machine) step(node int, time float64) {
	depth := m.table.Depth[node]
	if depth == m.deepest && m.open[depth] == node {
		return
	}

	// Find the deepest open box shared with the new call node's chain.
	// Above it everything matches, because call nodes form a tree.
	d := depth
	n := node
	for d > m.deepest {
		n = m.table.Prefix[n]
		d--
	}
	for d >= 0 && m.open[d] != n {
		n = m.table.Prefix[n]
		d--
	}
	m.popTo(d, time)

	// Open the boxes between the shared ancestor and the call node.
	n = node
	for dd := depth; dd > d; dd-- {
		m.open[dd] = n
		m.started[dd] = time
		n = m.table.Prefix[n]
	}
	m.deepest = depth
}

// popTo commits every open box deeper than depth.
func (m *machine) popTo(depth int, time float64) {
	for d := m.deepest; d > depth; d-- {
		row := &m.rows[d]
		row.Start = append(row.Start, m.started[d])
		row.End = append(row.End, time)
		row.CallNode = append(row.CallNode, m.open[d])
		m.open[d] = callnode.None
	}
	if m.deepest > depth {
		m.deepest = depth
	}
}
