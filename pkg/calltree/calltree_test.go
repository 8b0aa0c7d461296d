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

package calltree_test

import (
	"bytes"
	"math"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/calltree"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
)

func newTree(t *testing.T, p *profile.Profile, invert bool) *calltree.Tree {
	t.Helper()
	th := p.Threads[0]
	info := callnode.FromThread(th, p.Meta.DefaultCategory())
	counts := calltree.ComputeCountsAndSummary(&th.Samples, info, invert)
	return calltree.New(th, info, counts, th.Samples.EffectiveWeightType(), calltree.WithCategories(p.Meta.Categories))
}

func names(tree *calltree.Tree, nodes []int) []string {
	res := make([]string, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, tree.NodeData(n).FuncName)
	}
	return res
}

func fixture() *profile.Profile {
	return profiletest.Profile(
		"A B C",
		"A B C",
		"A B",
		"A D",
		"E",
		"",
	)
}

func TestCounts(t *testing.T) {
	p := fixture()
	th := p.Threads[0]
	info := callnode.FromThread(th, 0)

	counts := calltree.ComputeCountsAndSummary(&th.Samples, info, false)
	require.Equal(t, []float64{0, 1, 2, 1, 1}, counts.Summary.Self)
	require.Equal(t, []float64{4, 3, 2, 1, 1}, counts.Summary.Total)
	require.Equal(t, []int{2, 1, 0, 0, 0}, counts.ChildCount)
	require.Equal(t, 2, counts.RootCount)
	require.Equal(t, 5.0, counts.RootTotalSummary)

	inverted := calltree.ComputeCountsAndSummary(&th.Samples, info, true)
	require.Equal(t, []float64{4, 0, 0, 0, 1}, inverted.Summary.Self)
	require.Equal(t, counts.Summary.Total, inverted.Summary.Total)
	require.Equal(t, counts.RootTotalSummary, inverted.RootTotalSummary)
}

func TestWeightConservation(t *testing.T) {
	p := profiletest.Profile("A B C", "A B", "A D E", "", "F", "A B C")
	th := p.Threads[0]
	th.Samples.Weight = []float64{1.5, 2, -0.5, 7, 3, 4}
	th.Samples.WeightType = profile.WeightTypeTracingMs
	info := callnode.FromThread(th, 0)

	var want, wantAbs float64
	for i, s := range th.Samples.Stack {
		if s != profile.NoStack {
			want += th.Samples.Weight[i]
			wantAbs += math.Abs(th.Samples.Weight[i])
		}
	}

	for _, invert := range []bool{false, true} {
		counts := calltree.ComputeCountsAndSummary(&th.Samples, info, invert)
		var self float64
		for _, s := range counts.Summary.Self {
			self += s
		}
		require.InDelta(t, want, self, 1e-9)
		require.InDelta(t, wantAbs, counts.RootTotalSummary, 1e-9)
	}
}

func TestTreeOrdering(t *testing.T) {
	tree := newTree(t, profiletest.Profile("A B", "A C", "A C", "A C", "D", "D"), false)

	require.Equal(t, []string{"A", "D"}, names(tree, tree.Roots()))
	a := tree.Roots()[0]
	require.Equal(t, []string{"C", "B"}, names(tree, tree.Children(a)))
	require.True(t, tree.HasChildren(a))
	require.False(t, tree.HasChildren(tree.Children(a)[0]))
	require.Equal(t, a, tree.Parent(tree.Children(a)[0]))
	require.Equal(t, 1, tree.Depth(tree.Children(a)[0]))
}

func TestTreeQueries(t *testing.T) {
	tree := newTree(t, fixture(), false)
	a := tree.Roots()[0]

	require.Equal(t, []string{"A", "B", "C", "D"}, names(tree, tree.AllDescendants(a)))

	var visited []string
	tree.Walk(func(node, depth int) bool {
		visited = append(visited, tree.NodeData(node).FuncName)
		return tree.NodeData(node).FuncName != "B"
	})
	require.Equal(t, []string{"A", "B", "D", "E"}, visited)

	require.Equal(t, calltree.NodeData{
		FuncName:      "A",
		Total:         4,
		TotalRelative: 0.8,
		Self:          0,
		SelfRelative:  0,
	}, tree.NodeData(a))

	display := tree.DisplayData(a)
	require.Equal(t, "A", display.Name)
	require.Equal(t, "4 samples", display.TotalWithUnit)
	require.Equal(t, "80%", display.TotalPercent)
	require.Equal(t, "-", display.Self)
	require.True(t, display.IsFrameLabel)
	require.Equal(t, "Other", display.CategoryName)

	e := tree.Roots()[1]
	require.Equal(t, "1 sample", tree.DisplayData(e).SelfWithUnit)
}

func TestDisplayDataBytesAndLibs(t *testing.T) {
	p := profiletest.Profile("A[lib:libxul.so] _ZN7mozilla3dom7Element12SetAttributeEi[lib:libxul.so]")
	th := p.Threads[0]
	th.Samples.Weight = []float64{2048}
	th.Samples.WeightType = profile.WeightTypeBytes

	tree := newTree(t, p, false)
	leaf := tree.AllDescendants(tree.Roots()[0])[1]
	display := tree.DisplayData(leaf)
	require.Equal(t, "mozilla::dom::Element::SetAttribute", display.Name)
	require.Equal(t, "libxul.so", display.Lib)
	require.False(t, display.IsFrameLabel)
	require.Equal(t, "2.0 KiB", display.SelfWithUnit)
	require.Equal(t, "2,048", display.Total)
}

func TestUnknownWeightTypePanics(t *testing.T) {
	th := profiletest.Thread("A")
	info := callnode.FromThread(th, 0)
	counts := calltree.ComputeCountsAndSummary(&th.Samples, info, false)
	require.Panics(t, func() {
		calltree.New(th, info, counts, profile.WeightType("cycles"))
	})
}

func TestChildrenConcurrentReaders(t *testing.T) {
	tree := newTree(t, fixture(), false)

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var res []string
			tree.Walk(func(node, _ int) bool {
				res = append(res, tree.NodeData(node).FuncName)
				return true
			})
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.Equal(t, []string{"A", "B", "C", "D", "E"}, res)
	}
}

func TestArrowExport(t *testing.T) {
	tree := newTree(t, fixture(), false)

	checked := memory.NewCheckedAllocator(memory.NewGoAllocator())
	record, err := calltree.WriteArrow(checked, tree)
	require.NoError(t, err)
	require.Equal(t, int64(5), record.NumRows())
	require.Equal(t, calltree.ArrowSchema().NumFields(), int(record.NumCols()))
	record.Release()
	checked.AssertSize(t, 0)

	mem := memory.NewGoAllocator()
	buf, err := calltree.ArrowIPC(mem, tree)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	r, err := ipc.NewReader(bytes.NewReader(buf), ipc.WithAllocator(mem))
	require.NoError(t, err)
	defer r.Release()
	require.True(t, r.Schema().Equal(calltree.ArrowSchema()))
	require.True(t, r.Next())
}
