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

// Package calltree aggregates sample weights onto a call node table and
// exposes the result as a lazily materialized tree.
package calltree

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/demangle"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

// Tree is immutable once built. Children lists are computed on first access
// and cached, so concurrent readers are safe.
type Tree struct {
	thread     *profile.Thread
	info       *callnode.Info
	table      *callnode.Table
	counts     CountsAndSummary
	weightType profile.WeightType

	categories []profile.Category
	demangler  demangle.Demangler

	// Unfiltered children of every call node in CSR form: the children
	// of n are kids[offsets[n]:offsets[n+1]], the roots live at the end.
	offsets []int
	kids    []int

	mu       sync.Mutex
	children map[int][]int
}

type Option func(*Tree)

// WithCategories names the categories used by DisplayData.
func WithCategories(categories []profile.Category) Option {
	return func(t *Tree) {
		t.categories = categories
	}
}

func WithDemangler(d demangle.Demangler) Option {
	return func(t *Tree) {
		t.demangler = d
	}
}

// New returns the call tree of a thread. It panics on weight types outside
// the closed set of profile.WeightType values.
func New(thread *profile.Thread, info *callnode.Info, counts CountsAndSummary, weightType profile.WeightType, opts ...Option) *Tree {
	switch weightType {
	case profile.WeightTypeSamples, profile.WeightTypeTracingMs, profile.WeightTypeBytes:
	default:
		panic(fmt.Sprintf("calltree: unhandled weight type %q", weightType))
	}

	t := &Tree{
		thread:     thread,
		info:       info,
		table:      info.Table(),
		counts:     counts,
		weightType: weightType,
		demangler:  demangle.NewDefault(),
		children:   map[int][]int{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.indexChildren()
	return t
}

// indexChildren groups call nodes by parent with a counting sort. Roots are
// stored as the children of the extra slot n.
func (t *Tree) indexChildren() {
	n := t.table.Len()
	slot := func(prefix int) int {
		if prefix == callnode.None {
			return n
		}
		return prefix
	}

	t.offsets = make([]int, n+2)
	for _, prefix := range t.table.Prefix {
		t.offsets[slot(prefix)+1]++
	}
	for i := 1; i < len(t.offsets); i++ {
		t.offsets[i] += t.offsets[i-1]
	}
	t.kids = make([]int, n)
	next := append([]int(nil), t.offsets[:n+1]...)
	for node, prefix := range t.table.Prefix {
		s := slot(prefix)
		t.kids[next[s]] = node
		next[s]++
	}
}

func (t *Tree) Info() *callnode.Info {
	return t.info
}

func (t *Tree) Thread() *profile.Thread {
	return t.thread
}

func (t *Tree) WeightType() profile.WeightType {
	return t.weightType
}

func (t *Tree) Counts() CountsAndSummary {
	return t.counts
}

// Roots returns the root call nodes carrying weight, heaviest first.
func (t *Tree) Roots() []int {
	return t.Children(callnode.None)
}

// Children returns the children of node that carry weight, sorted by
// descending absolute total. Ties keep table order. The returned slice is
// shared and must not be modified.
func (t *Tree) Children(node int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.children[node]; ok {
		return c
	}

	slot := node
	if node == callnode.None {
		slot = t.table.Len()
	}
	total := t.counts.Summary.Total
	var res []int
	for _, child := range t.kids[t.offsets[slot]:t.offsets[slot+1]] {
		if total[child] != 0 || t.counts.ChildCount[child] != 0 {
			res = append(res, child)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return math.Abs(total[res[i]]) > math.Abs(total[res[j]])
	})

	t.children[node] = res
	return res
}

func (t *Tree) HasChildren(node int) bool {
	return t.counts.ChildCount[node] > 0
}

// AllDescendants returns node and every call node below it that carries
// weight, in pre-order.
func (t *Tree) AllDescendants(node int) []int {
	var res []int
	stack := []int{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		res = append(res, n)

		children := t.Children(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return res
}

func (t *Tree) Parent(node int) int {
	return t.table.Prefix[node]
}

func (t *Tree) Depth(node int) int {
	return t.table.Depth[node]
}

// Walk visits the tree in pre-order, heaviest children first. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(fn func(node, depth int) bool) {
	roots := t.Roots()
	stack := make([]int, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n, t.table.Depth[n]) {
			continue
		}
		children := t.Children(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

type NodeData struct {
	FuncName      string
	Total         float64
	TotalRelative float64
	Self          float64
	SelfRelative  float64
}

func (t *Tree) NodeData(node int) NodeData {
	total := t.counts.Summary.Total[node]
	self := t.counts.Summary.Self[node]
	res := NodeData{
		FuncName: t.thread.FuncName(t.table.Func[node]),
		Total:    total,
		Self:     self,
	}
	if root := t.counts.RootTotalSummary; root != 0 {
		res.TotalRelative = total / root
		res.SelfRelative = self / root
	}
	return res
}
