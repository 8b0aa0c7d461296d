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

	"github.com/parca-dev/stackgraph/pkg/upgrader"
)

// Encode writes p as a processed profile at the current format version.
func Encode(w io.Writer, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	raw := rawProfile{
		Meta: rawMeta{
			Interval:                   p.Meta.Interval,
			StartTime:                  p.Meta.StartTime,
			Version:                    p.Meta.Version,
			PreprocessedProfileVersion: upgrader.CurrentVersion,
			Product:                    p.Meta.Product,
			Categories:                 make([]rawCategory, 0, len(p.Meta.Categories)),
		},
		Libs:    make([]rawLib, 0, len(p.Libs)),
		Threads: make([]rawThread, 0, len(p.Threads)),
		Shared:  rawShared{StringArray: p.StringTable.Strings()},
	}
	for _, c := range p.Meta.Categories {
		raw.Meta.Categories = append(raw.Meta.Categories, rawCategory(c))
	}
	for _, l := range p.Libs {
		raw.Libs = append(raw.Libs, rawLib(l))
	}
	for i, t := range p.Threads {
		rt, err := fromThread(t)
		if err != nil {
			return fmt.Errorf("thread %d: %w", i, err)
		}
		raw.Threads = append(raw.Threads, rt)
	}

	enc := json.NewEncoder(w)
	return enc.Encode(raw)
}

func fromThread(t *Thread) (rawThread, error) {
	rt := rawThread{
		Name:         t.Name,
		ProcessType:  t.ProcessType,
		ProcessName:  t.ProcessName,
		PID:          flexString(t.PID),
		TID:          flexString(t.TID),
		IsMainThread: t.IsMainThread,
		StackTable: rawStackTable{
			Length:      t.StackTable.Len(),
			Frame:       t.StackTable.Frame,
			Prefix:      nullableInts(t.StackTable.Prefix),
			Category:    nullableInts(t.StackTable.Category),
			Subcategory: nullableInts(t.StackTable.Subcategory),
		},
		FrameTable: rawFrameTable{
			Length:         t.FrameTable.Len(),
			Address:        nullableInts(t.FrameTable.Address),
			InlineDepth:    t.FrameTable.InlineDepth,
			Category:       nullableInts(t.FrameTable.Category),
			Subcategory:    nullableInts(t.FrameTable.Subcategory),
			Func:           t.FrameTable.Func,
			InnerWindowID:  make([]*int64, t.FrameTable.Len()),
			Implementation: make([]*string, t.FrameTable.Len()),
			Line:           nullableInts(t.FrameTable.Line),
			Column:         nullableInts(t.FrameTable.Column),
		},
		FuncTable: rawFuncTable{
			Length:        t.FuncTable.Len(),
			Name:          t.FuncTable.Name,
			IsJS:          t.FuncTable.IsJS,
			RelevantForJS: t.FuncTable.RelevantForJS,
			Resource:      t.FuncTable.Resource,
			FileName:      nullableInts(t.FuncTable.FileName),
			LineNumber:    nullableInts(t.FuncTable.LineNumber),
			ColumnNumber:  nullableInts(t.FuncTable.ColumnNumber),
		},
		ResourceTable: rawResourceTable{
			Length: t.ResourceTable.Len(),
			Lib:    nullableInts(t.ResourceTable.Lib),
			Name:   t.ResourceTable.Name,
			Host:   nullableInts(t.ResourceTable.Host),
			Type:   make([]int, t.ResourceTable.Len()),
		},
		Samples: rawSamples{
			Length:     t.Samples.Len(),
			Stack:      nullableInts(t.Samples.Stack),
			Time:       t.Samples.Time,
			Weight:     t.Samples.Weight,
			WeightType: string(t.Samples.EffectiveWeightType()),
		},
	}
	for i, id := range t.FrameTable.InnerWindowID {
		id := id
		rt.FrameTable.InnerWindowID[i] = &id
	}
	for i, impl := range t.FrameTable.Implementation {
		if impl == "" {
			continue
		}
		impl := impl
		rt.FrameTable.Implementation[i] = &impl
	}
	for i, typ := range t.ResourceTable.Type {
		rt.ResourceTable.Type[i] = int(typ)
	}

	switch d := t.Samples.Delay.(type) {
	case nil:
	case EventDelay:
		rt.Samples.EventDelay = nullableFloats(d.Values)
	case Responsiveness:
		rt.Samples.Responsiveness = nullableFloats(d.Values)
	default:
		panic(fmt.Sprintf("unknown sample delay variant %T", d))
	}

	if a := t.JsAllocations; a != nil {
		rt.JsAllocations = &rawJsAllocations{
			Length:     a.Len(),
			Time:       a.Time,
			ClassName:  a.ClassName,
			TypeName:   a.TypeName,
			CoarseType: a.CoarseType,
			Weight:     a.Weight,
			WeightType: string(WeightTypeBytes),
			InNursery:  a.InNursery,
			Stack:      nullableInts(a.Stack),
		}
	}
	if a := t.NativeAllocations; a != nil {
		native := &rawNativeAllocations{
			Length:     a.Len(),
			Time:       a.Time,
			Weight:     a.Weight,
			WeightType: string(WeightTypeBytes),
			Stack:      nullableInts(a.Stack),
		}
		switch shape := a.Shape.(type) {
		case nil, UnbalancedAllocations:
		case BalancedAllocations:
			native.MemoryAddress = shape.MemoryAddress
			native.ThreadID = shape.ThreadID
		default:
			panic(fmt.Sprintf("unknown native allocation shape %T", shape))
		}
		rt.NativeAllocations = native
	}

	m := &t.Markers
	rt.Markers = rawMarkers{
		Length:    m.Len(),
		Data:      make([]json.RawMessage, m.Len()),
		Name:      m.Name,
		StartTime: nullableFloats(m.StartTime),
		EndTime:   nullableFloats(m.EndTime),
		Phase:     make([]int, m.Len()),
		Category:  m.Category,
	}
	for i := 0; i < m.Len(); i++ {
		rt.Markers.Phase[i] = int(m.Phase[i])
		b, err := EncodeMarkerPayload(m.Data[i])
		if err != nil {
			return rawThread{}, fmt.Errorf("marker %d: %w", i, err)
		}
		rt.Markers.Data[i] = b
	}

	return rt, nil
}

func nullableFloats(in []float64) []*float64 {
	res := make([]*float64, len(in))
	for i, v := range in {
		if math.IsNaN(v) {
			continue
		}
		v := v
		res[i] = &v
	}
	return res
}
