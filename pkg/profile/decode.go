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
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/parca-dev/stackgraph/pkg/stringtable"
	"github.com/parca-dev/stackgraph/pkg/upgrader"
)

// Decode reads a processed profile in JSON form, upgrading it to the current
// format version first.
func Decode(r io.Reader) (*Profile, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc upgrader.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode profile json: %w", err)
	}
	if _, err := upgrader.Upgrade(doc); err != nil {
		return nil, err
	}

	// Upgraded documents go through a second, typed decoding pass.
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode upgraded profile: %w", err)
	}
	var raw rawProfile
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode upgraded profile: %w", err)
	}

	p, err := raw.toProfile()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *rawProfile) toProfile() (*Profile, error) {
	p := &Profile{
		Meta: Meta{
			Interval:                   r.Meta.Interval,
			StartTime:                  r.Meta.StartTime,
			Version:                    r.Meta.Version,
			PreprocessedProfileVersion: r.Meta.PreprocessedProfileVersion,
			Product:                    r.Meta.Product,
			Categories:                 make([]Category, 0, len(r.Meta.Categories)),
		},
		Libs:        make([]Lib, 0, len(r.Libs)),
		Threads:     make([]*Thread, 0, len(r.Threads)),
		StringTable: stringtable.New(r.Shared.StringArray...),
	}
	for _, c := range r.Meta.Categories {
		p.Meta.Categories = append(p.Meta.Categories, Category(c))
	}
	for _, l := range r.Libs {
		p.Libs = append(p.Libs, Lib(l))
	}

	for i := range r.Threads {
		t, err := r.Threads[i].toThread(p.StringTable)
		if err != nil {
			return nil, fmt.Errorf("thread %d: %w", i, err)
		}
		p.Threads = append(p.Threads, t)
	}
	return p, nil
}

func (r *rawThread) toThread(strs *stringtable.Table) (*Thread, error) {
	t := &Thread{
		Name:         r.Name,
		ProcessType:  r.ProcessType,
		ProcessName:  r.ProcessName,
		PID:          string(r.PID),
		TID:          string(r.TID),
		IsMainThread: r.IsMainThread,
		StringTable:  strs,
	}

	stacks := len(r.StackTable.Frame)
	t.StackTable = StackTable{
		Frame:       r.StackTable.Frame,
		Prefix:      ints(r.StackTable.Prefix, stacks),
		Category:    ints(r.StackTable.Category, stacks),
		Subcategory: ints(r.StackTable.Subcategory, stacks),
	}
	for i, sub := range t.StackTable.Subcategory {
		if sub == Null {
			t.StackTable.Subcategory[i] = 0
		}
	}
	for i, cat := range t.StackTable.Category {
		if cat == Null {
			t.StackTable.Category[i] = 0
		}
	}

	frames := len(r.FrameTable.Func)
	t.FrameTable = FrameTable{
		Address:        ints(r.FrameTable.Address, frames),
		InlineDepth:    make([]int, frames),
		Category:       ints(r.FrameTable.Category, frames),
		Subcategory:    ints(r.FrameTable.Subcategory, frames),
		Func:           r.FrameTable.Func,
		InnerWindowID:  ints64(r.FrameTable.InnerWindowID, frames),
		Implementation: make([]string, frames),
		Line:           ints(r.FrameTable.Line, frames),
		Column:         ints(r.FrameTable.Column, frames),
	}
	copy(t.FrameTable.InlineDepth, r.FrameTable.InlineDepth)
	for i := 0; i < frames && i < len(r.FrameTable.Implementation); i++ {
		if impl := r.FrameTable.Implementation[i]; impl != nil {
			t.FrameTable.Implementation[i] = *impl
		}
	}

	funcs := len(r.FuncTable.Name)
	t.FuncTable = FuncTable{
		Name:          r.FuncTable.Name,
		IsJS:          make([]bool, funcs),
		RelevantForJS: make([]bool, funcs),
		Resource:      make([]int, funcs),
		FileName:      ints(r.FuncTable.FileName, funcs),
		LineNumber:    ints(r.FuncTable.LineNumber, funcs),
		ColumnNumber:  ints(r.FuncTable.ColumnNumber, funcs),
	}
	copy(t.FuncTable.IsJS, r.FuncTable.IsJS)
	copy(t.FuncTable.RelevantForJS, r.FuncTable.RelevantForJS)
	for i := range t.FuncTable.Resource {
		t.FuncTable.Resource[i] = NoResource
		if i < len(r.FuncTable.Resource) {
			t.FuncTable.Resource[i] = r.FuncTable.Resource[i]
		}
	}

	resources := len(r.ResourceTable.Name)
	t.ResourceTable = ResourceTable{
		Lib:  ints(r.ResourceTable.Lib, resources),
		Name: r.ResourceTable.Name,
		Host: ints(r.ResourceTable.Host, resources),
		Type: make([]ResourceType, resources),
	}
	for i := 0; i < resources && i < len(r.ResourceTable.Type); i++ {
		t.ResourceTable.Type[i] = ResourceType(r.ResourceTable.Type[i])
	}

	samples, err := r.Samples.toSamples()
	if err != nil {
		return nil, err
	}
	t.Samples = samples

	if a := r.JsAllocations; a != nil {
		t.JsAllocations = &JsAllocationsTable{
			Time:       a.Time,
			ClassName:  a.ClassName,
			TypeName:   a.TypeName,
			CoarseType: a.CoarseType,
			Weight:     a.Weight,
			InNursery:  a.InNursery,
			Stack:      ints(a.Stack, len(a.Stack)),
		}
	}
	if a := r.NativeAllocations; a != nil {
		native := &NativeAllocationsTable{
			Time:   a.Time,
			Weight: a.Weight,
			Stack:  ints(a.Stack, len(a.Stack)),
			Shape:  UnbalancedAllocations{},
		}
		if a.MemoryAddress != nil {
			native.Shape = BalancedAllocations{
				MemoryAddress: a.MemoryAddress,
				ThreadID:      a.ThreadID,
			}
		}
		t.NativeAllocations = native
	}

	markers, err := r.Markers.toMarkers()
	if err != nil {
		return nil, err
	}
	t.Markers = markers

	return t, nil
}

func (r *rawSamples) toSamples() (SamplesTable, error) {
	n := len(r.Stack)
	s := SamplesTable{
		Stack:      ints(r.Stack, n),
		Time:       r.Time,
		Weight:     r.Weight,
		WeightType: WeightType(r.WeightType),
	}
	if s.WeightType != "" {
		if err := s.WeightType.Validate(); err != nil {
			return SamplesTable{}, err
		}
	}
	switch {
	case r.EventDelay != nil:
		s.Delay = EventDelay{Values: floats(r.EventDelay, n, 0)}
	case r.Responsiveness != nil:
		s.Delay = Responsiveness{Values: floats(r.Responsiveness, n, 0)}
	}
	return s, nil
}

func (r *rawMarkers) toMarkers() (MarkersTable, error) {
	n := len(r.Name)
	m := MarkersTable{
		Name:      r.Name,
		StartTime: floats(r.StartTime, n, math.NaN()),
		EndTime:   floats(r.EndTime, n, math.NaN()),
		Phase:     make([]MarkerPhase, n),
		Category:  make([]int, n),
		Data:      make([]MarkerPayload, n),
	}
	for i := 0; i < n && i < len(r.Phase); i++ {
		m.Phase[i] = MarkerPhase(r.Phase[i])
	}
	copy(m.Category, r.Category)
	for i := 0; i < n && i < len(r.Data); i++ {
		payload, err := DecodeMarkerPayload(r.Data[i])
		if err != nil {
			return MarkersTable{}, fmt.Errorf("marker %d: %w", i, err)
		}
		m.Data[i] = payload
	}
	return m, nil
}
