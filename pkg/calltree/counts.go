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

package calltree

import (
	"math"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

// Summary holds the aggregated weight of every call node.
type Summary struct {
	Self  []float64
	Total []float64
}

type CountsAndSummary struct {
	Summary Summary
	// ChildCount only counts children that carry weight or have children
	// of their own.
	ChildCount       []int
	RootTotalSummary float64
	RootCount        int
}

// ComputeCountsAndSummary aggregates the sample weights onto the call nodes
// of info.
//
// Non inverted trees attribute a sample's weight as self weight of the call
// node it ends in. Inverted trees attribute it as self weight of the root of
// that call node, which is where the sample's leaf function sits once the
// tree is displayed upside down. Totals are then propagated from children to
// parents in reverse table order.
func ComputeCountsAndSummary(samples *profile.SamplesTable, info *callnode.Info, invert bool) CountsAndSummary {
	table := info.Table()
	n := table.Len()

	self := make([]float64, n)
	leaf := self
	if invert {
		leaf = make([]float64, n)
		roots := rootsOf(table)
		for i, stack := range samples.Stack {
			if stack == profile.NoStack {
				continue
			}
			node := info.CallNodeForStack(stack)
			w := samples.SampleWeight(i)
			self[roots[node]] += w
			leaf[node] += w
		}
	} else {
		for i, stack := range samples.Stack {
			if stack == profile.NoStack {
				continue
			}
			self[info.CallNodeForStack(stack)] += samples.SampleWeight(i)
		}
	}

	res := CountsAndSummary{
		Summary: Summary{
			Self:  self,
			Total: make([]float64, n),
		},
		ChildCount: make([]int, n),
	}
	total := res.Summary.Total
	for node := n - 1; node >= 0; node-- {
		total[node] += leaf[node]
		res.RootTotalSummary += math.Abs(leaf[node])

		if total[node] == 0 && res.ChildCount[node] == 0 {
			continue
		}
		prefix := table.Prefix[node]
		if prefix == callnode.None {
			res.RootCount++
			continue
		}
		total[prefix] += total[node]
		res.ChildCount[prefix]++
	}

	return res
}

// rootsOf maps every call node to the root of its chain in one forward pass.
func rootsOf(table *callnode.Table) []int {
	roots := make([]int, table.Len())
	for node, prefix := range table.Prefix {
		if prefix == callnode.None {
			roots[node] = node
			continue
		}
		roots[node] = roots[prefix]
	}
	return roots
}
