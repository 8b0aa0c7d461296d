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

// Package callnode collapses a thread's stack table, which distinguishes call
// sites, into a call node table, which only distinguishes functions.
package callnode

import (
	"strconv"
	"strings"

	"github.com/parca-dev/stackgraph/pkg/profile"
)

// None is the prefix of root call nodes and the result of unresolved lookups.
const None = -1

// Table has one row per (parent call node, function) pair. Like the stack
// table, Prefix[i] < i for every non root row.
type Table struct {
	Prefix      []int
	Func        []int
	Category    []int
	Subcategory []int
	Depth       []int

	funcCount int
	// index maps (prefix+1)*funcCount+func to the call node.
	index map[int]int
}

func (t *Table) Len() int {
	return len(t.Func)
}

func (t *Table) key(prefix, funcIndex int) int {
	return (prefix+1)*t.funcCount + funcIndex
}

// Child returns the call node for funcIndex below prefix.
func (t *Table) Child(prefix, funcIndex int) (int, bool) {
	i, ok := t.index[t.key(prefix, funcIndex)]
	return i, ok
}

// Build computes the call node table of a stack table in a single forward
// pass, together with the projection of every stack onto its call node.
func Build(
	stackTable *profile.StackTable,
	frameTable *profile.FrameTable,
	funcTable *profile.FuncTable,
	defaultCategory int,
) (*Table, []int) {
	n := stackTable.Len()
	t := &Table{
		Prefix:      make([]int, 0, n),
		Func:        make([]int, 0, n),
		Category:    make([]int, 0, n),
		Subcategory: make([]int, 0, n),
		Depth:       make([]int, 0, n),
		funcCount:   funcTable.Len(),
		index:       make(map[int]int, n),
	}
	stackToCallNode := make([]int, n)

	for stack := 0; stack < n; stack++ {
		prefix := None
		if p := stackTable.Prefix[stack]; p != profile.NoStack {
			prefix = stackToCallNode[p]
		}
		funcIndex := frameTable.Func[stackTable.Frame[stack]]
		category := stackTable.Category[stack]
		subcategory := stackTable.Subcategory[stack]

		k := t.key(prefix, funcIndex)
		if existing, ok := t.index[k]; ok {
			stackToCallNode[stack] = existing
			if t.Category[existing] != category {
				t.Category[existing] = defaultCategory
				t.Subcategory[existing] = 0
			} else if t.Subcategory[existing] != subcategory {
				t.Subcategory[existing] = 0
			}
			continue
		}

		depth := 0
		if prefix != None {
			depth = t.Depth[prefix] + 1
		}
		i := len(t.Func)
		t.Prefix = append(t.Prefix, prefix)
		t.Func = append(t.Func, funcIndex)
		t.Category = append(t.Category, category)
		t.Subcategory = append(t.Subcategory, subcategory)
		t.Depth = append(t.Depth, depth)
		t.index[k] = i
		stackToCallNode[stack] = i
	}

	return t, stackToCallNode
}

// Path is the sequence of function indexes from a root to a call node.
type Path []int

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, f := range p {
		parts[i] = strconv.Itoa(f)
	}
	return strings.Join(parts, ",")
}

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether o is a prefix of p.
func (p Path) HasPrefix(o Path) bool {
	return len(o) <= len(p) && p[:len(o)].Equal(o)
}

// Info bundles a call node table with the stack projection it was built from.
// It is immutable once built and safe for concurrent use.
type Info struct {
	table           *Table
	stackToCallNode []int
	maxDepth        int
}

// NewInfo wraps the result of Build.
func NewInfo(table *Table, stackToCallNode []int) *Info {
	maxDepth := 0
	for _, d := range table.Depth {
		if d+1 > maxDepth {
			maxDepth = d + 1
		}
	}
	return &Info{
		table:           table,
		stackToCallNode: stackToCallNode,
		maxDepth:        maxDepth,
	}
}

// FromThread builds the call node info of a thread.
func FromThread(t *profile.Thread, defaultCategory int) *Info {
	return NewInfo(Build(&t.StackTable, &t.FrameTable, &t.FuncTable, defaultCategory))
}

func (i *Info) Table() *Table {
	return i.table
}

func (i *Info) StackToCallNode() []int {
	return i.stackToCallNode
}

// CallNodeForStack projects a stack onto its call node. NoStack maps to None.
func (i *Info) CallNodeForStack(stack int) int {
	if stack == profile.NoStack {
		return None
	}
	return i.stackToCallNode[stack]
}

// MaxDepth is the number of depth levels in the table, one more than the
// deepest call node's depth. It is 0 for an empty table.
func (i *Info) MaxDepth() int {
	return i.maxDepth
}

// Roots returns the call nodes without a parent, in table order.
func (i *Info) Roots() []int {
	var roots []int
	for n, p := range i.table.Prefix {
		if p == None {
			roots = append(roots, n)
		}
	}
	return roots
}

// IndexFromPath resolves a path to its call node. A path that does not exist
// in this table, for example after a transform, is reported with false.
func (i *Info) IndexFromPath(path Path) (int, bool) {
	if len(path) == 0 {
		return None, false
	}
	node := None
	for _, f := range path {
		if f < 0 || f >= i.table.funcCount {
			return None, false
		}
		next, ok := i.table.Child(node, f)
		if !ok {
			return None, false
		}
		node = next
	}
	return node, true
}

// IndexesFromPaths resolves every path, mapping unknown ones to None.
func (i *Info) IndexesFromPaths(paths []Path) []int {
	res := make([]int, len(paths))
	for n, p := range paths {
		idx, ok := i.IndexFromPath(p)
		if !ok {
			idx = None
		}
		res[n] = idx
	}
	return res
}

// PathFromIndex returns the path of a call node. None yields an empty path.
func (i *Info) PathFromIndex(node int) Path {
	if node == None {
		return Path{}
	}
	path := make(Path, i.table.Depth[node]+1)
	for n := node; n != None; n = i.table.Prefix[n] {
		path[i.table.Depth[n]] = i.table.Func[n]
	}
	return path
}
