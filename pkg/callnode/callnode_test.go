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

package callnode_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
)

func TestBuildDeduplicatesCallSites(t *testing.T) {
	p := profiletest.Profile(
		"A B C",
		"A[line:2] B C",
		"A D",
		"E",
	)
	th := p.Threads[0]
	require.Equal(t, 8, th.StackTable.Len())

	table, stackToCallNode := callnode.Build(&th.StackTable, &th.FrameTable, &th.FuncTable, p.Meta.DefaultCategory())
	require.Equal(t, 5, table.Len())
	require.Equal(t, []int{0, 1, 2, 0, 1, 2, 3, 4}, stackToCallNode)
	require.Equal(t, []int{-1, 0, 1, 0, -1}, table.Prefix)
	require.Equal(t, []int{0, 1, 2, 1, 0}, table.Depth)

	for i, prefix := range table.Prefix {
		require.Less(t, prefix, i)
	}

	// Every stack with the same function sequence shares a call node.
	seen := map[string]int{}
	for s := 0; s < th.StackTable.Len(); s++ {
		names := ""
		for _, n := range profiletest.StackNames(th, s) {
			names += n + " "
		}
		if prev, ok := seen[names]; ok {
			require.Equal(t, prev, stackToCallNode[s], names)
		}
		seen[names] = stackToCallNode[s]
	}
}

func TestBuildCategoryConflicts(t *testing.T) {
	p := profiletest.Profile(
		"A[cat:DOM] B[cat:JS]",
		"A[cat:DOM][line:1] B[cat:JS][line:1]",
		"A[cat:GC][line:2] B[cat:JS][line:2]",
	)
	th := p.Threads[0]
	th.StackTable.Subcategory[1] = 1

	table, _ := callnode.Build(&th.StackTable, &th.FrameTable, &th.FuncTable, p.Meta.DefaultCategory())
	require.Equal(t, 2, table.Len())

	// A was DOM and GC, it falls back to the default category.
	require.Equal(t, p.Meta.DefaultCategory(), table.Category[0])
	require.Equal(t, 0, table.Subcategory[0])

	// B agrees on JS everywhere, only the subcategory conflicted.
	js := 0
	for i, c := range p.Meta.Categories {
		if c.Name == "JS" {
			js = i
		}
	}
	require.Equal(t, js, table.Category[1])
	require.Equal(t, 0, table.Subcategory[1])
}

func TestInfoPaths(t *testing.T) {
	th := profiletest.Thread("A B C", "A D", "E F")
	info := callnode.FromThread(th, 0)

	require.Equal(t, 3, info.MaxDepth())
	require.Equal(t, []int{0, 4}, info.Roots())

	path := callnode.Path(profiletest.FuncIndexes(th, "A", "B", "C"))
	idx, ok := info.IndexFromPath(path)
	require.True(t, ok)
	require.Equal(t, 2, idx)
	require.True(t, info.PathFromIndex(idx).Equal(path))
	require.True(t, path.HasPrefix(path[:2]))
	require.Equal(t, "0,1,2", path.String())

	_, ok = info.IndexFromPath(callnode.Path(profiletest.FuncIndexes(th, "A", "C")))
	require.False(t, ok)
	_, ok = info.IndexFromPath(callnode.Path{})
	require.False(t, ok)
	_, ok = info.IndexFromPath(callnode.Path{42})
	require.False(t, ok)

	require.Equal(t, []int{3, callnode.None}, info.IndexesFromPaths([]callnode.Path{
		profiletest.FuncIndexes(th, "A", "D"),
		profiletest.FuncIndexes(th, "D"),
	}))
	require.Equal(t, callnode.Path{}, info.PathFromIndex(callnode.None))
	require.Equal(t, callnode.None, info.CallNodeForStack(profile.NoStack))
}

func TestEmptyTable(t *testing.T) {
	th := profiletest.Thread()
	info := callnode.FromThread(th, 0)
	require.Equal(t, 0, info.MaxDepth())
	require.Empty(t, info.Roots())
	require.Equal(t, 0, info.Table().Len())
}
