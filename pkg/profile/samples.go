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

package profile

import (
	"fmt"
)

// WeightType is the unit of a samples table's weight column.
type WeightType string

const (
	WeightTypeSamples   WeightType = "samples"
	WeightTypeTracingMs WeightType = "tracing-ms"
	WeightTypeBytes     WeightType = "bytes"
)

func (w WeightType) Validate() error {
	switch w {
	case WeightTypeSamples, WeightTypeTracingMs, WeightTypeBytes:
		return nil
	default:
		return fmt.Errorf("%w: unknown weight type %q", ErrInvalidProfile, string(w))
	}
}

// SampleDelay is either EventDelay or Responsiveness. Older profiles only
// recorded responsiveness, newer ones record the event delay instead.
type SampleDelay interface {
	delayValues() []float64
}

type EventDelay struct {
	Values []float64
}

type Responsiveness struct {
	Values []float64
}

func (d EventDelay) delayValues() []float64     { return d.Values }
func (d Responsiveness) delayValues() []float64 { return d.Values }

type SamplesTable struct {
	Stack []int
	Time  []float64
	// Weight is nil when every sample weighs 1.
	Weight     []float64
	WeightType WeightType
	Delay      SampleDelay
}

func (t *SamplesTable) Len() int {
	return len(t.Stack)
}

// SampleWeight returns the weight of sample i.
func (t *SamplesTable) SampleWeight(i int) float64 {
	if t.Weight == nil {
		return 1
	}
	return t.Weight[i]
}

// EffectiveWeightType returns the weight type, defaulting to samples.
func (t *SamplesTable) EffectiveWeightType() WeightType {
	if t.WeightType == "" {
		return WeightTypeSamples
	}
	return t.WeightType
}

// WithStacks returns a copy of the table whose stack column is stacks.
func (t SamplesTable) WithStacks(stacks []int) SamplesTable {
	t.Stack = stacks
	return t
}

type JsAllocationsTable struct {
	Time       []float64
	ClassName  []string
	TypeName   []string
	CoarseType []string
	Weight     []float64
	InNursery  []bool
	Stack      []int
}

func (t *JsAllocationsTable) Len() int {
	return len(t.Stack)
}

// AsSamples exposes the allocations as a bytes-weighted samples table.
func (t *JsAllocationsTable) AsSamples() SamplesTable {
	return SamplesTable{
		Stack:      t.Stack,
		Time:       t.Time,
		Weight:     t.Weight,
		WeightType: WeightTypeBytes,
	}
}

// NativeAllocationShape is either UnbalancedAllocations or BalancedAllocations.
type NativeAllocationShape interface {
	nativeAllocationShape()
}

// UnbalancedAllocations are allocations and deallocations that cannot be
// matched with each other.
type UnbalancedAllocations struct{}

// BalancedAllocations carry the memory address of each allocation, so that
// deallocations can be matched with the allocation they free.
type BalancedAllocations struct {
	MemoryAddress []int64
	ThreadID      []int
}

func (UnbalancedAllocations) nativeAllocationShape() {}
func (BalancedAllocations) nativeAllocationShape()   {}

type NativeAllocationsTable struct {
	Time   []float64
	Weight []float64
	Stack  []int
	Shape  NativeAllocationShape
}

func (t *NativeAllocationsTable) Len() int {
	return len(t.Stack)
}

func (t *NativeAllocationsTable) AsSamples() SamplesTable {
	return SamplesTable{
		Stack:      t.Stack,
		Time:       t.Time,
		Weight:     t.Weight,
		WeightType: WeightTypeBytes,
	}
}

func remapStacks(stacks []int, oldToNew func(int) int) []int {
	res := make([]int, len(stacks))
	for i, s := range stacks {
		if s == NoStack {
			res[i] = NoStack
			continue
		}
		res[i] = oldToNew(s)
	}
	return res
}
