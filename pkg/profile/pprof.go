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
	"path/filepath"

	"github.com/google/pprof/profile"

	"github.com/parca-dev/stackgraph/pkg/stringtable"
	"github.com/parca-dev/stackgraph/pkg/upgrader"
)

type stackKey struct {
	prefix, frame int
}

type frameKey struct {
	location uint64
	line     int
}

// FromPprof builds a single-thread processed profile from a pprof profile,
// weighting every sample by its value at sampleIndex.
func FromPprof(p *profile.Profile, sampleIndex int) (*Profile, error) {
	if sampleIndex < 0 || sampleIndex >= len(p.SampleType) {
		return nil, fmt.Errorf("%w: sample index %d out of range, profile has %d sample types", ErrInvalidProfile, sampleIndex, len(p.SampleType))
	}
	sampleType := p.SampleType[sampleIndex]

	weightType := WeightTypeSamples
	divisor := 1.0
	switch sampleType.Unit {
	case "bytes":
		weightType = WeightTypeBytes
	case "nanoseconds":
		weightType = WeightTypeTracingMs
		divisor = 1e6
	}

	interval := 1.0
	if p.PeriodType != nil && p.PeriodType.Unit == "nanoseconds" && p.Period > 0 {
		interval = float64(p.Period) / 1e6
	}

	strs := stringtable.New()
	res := &Profile{
		Meta: Meta{
			Interval:                   interval,
			StartTime:                  float64(p.TimeNanos) / 1e6,
			PreprocessedProfileVersion: upgrader.CurrentVersion,
			Product:                    "pprof",
			Categories: []Category{
				{Name: "Other", Color: "grey", Subcategories: []string{"Other"}},
			},
		},
		StringTable: strs,
	}

	t := &Thread{
		Name:         sampleType.Type,
		ProcessType:  "default",
		IsMainThread: true,
		StackTable:   NewStackTable(0),
		StringTable:  strs,
		Samples: SamplesTable{
			WeightType: weightType,
		},
	}

	resources := map[uint64]int{}
	resourceFor := func(m *profile.Mapping) int {
		if m == nil || m.File == "" {
			return NoResource
		}
		if r, ok := resources[m.ID]; ok {
			return r
		}
		res.Libs = append(res.Libs, Lib{
			Name:       filepath.Base(m.File),
			Path:       m.File,
			DebugName:  filepath.Base(m.File),
			DebugPath:  m.File,
			BreakpadID: m.BuildID,
		})
		r := t.ResourceTable.Append(strs.IndexForString(filepath.Base(m.File)), Null, len(res.Libs)-1, ResourceTypeLibrary)
		resources[m.ID] = r
		return r
	}

	funcs := map[uint64]int{}
	funcFor := func(fn *profile.Function, resource int) int {
		if f, ok := funcs[fn.ID]; ok {
			return f
		}
		fileName := Null
		if fn.Filename != "" {
			fileName = strs.IndexForString(fn.Filename)
		}
		lineNumber := Null
		if fn.StartLine > 0 {
			lineNumber = int(fn.StartLine)
		}
		f := t.FuncTable.Append(Func{
			Name:         strs.IndexForString(fn.Name),
			Resource:     resource,
			FileName:     fileName,
			LineNumber:   lineNumber,
			ColumnNumber: Null,
		})
		funcs[fn.ID] = f
		return f
	}

	frames := map[frameKey]int{}
	// framesFor returns the frames of a location, outermost caller first.
	framesFor := func(loc *profile.Location) []int {
		resource := resourceFor(loc.Mapping)
		if len(loc.Line) == 0 {
			k := frameKey{location: loc.ID, line: -1}
			if f, ok := frames[k]; ok {
				return []int{f}
			}
			fn := t.FuncTable.Append(Func{
				Name:         strs.IndexForString(fmt.Sprintf("0x%x", loc.Address)),
				Resource:     resource,
				FileName:     Null,
				LineNumber:   Null,
				ColumnNumber: Null,
			})
			f := t.FrameTable.Append(Frame{
				Address: int(loc.Address), Func: fn,
				Category: Null, Subcategory: Null, Line: Null, Column: Null,
			})
			frames[k] = f
			return []int{f}
		}

		out := make([]int, 0, len(loc.Line))
		for i := len(loc.Line) - 1; i >= 0; i-- {
			k := frameKey{location: loc.ID, line: i}
			f, ok := frames[k]
			if !ok {
				line := loc.Line[i]
				lineNumber := Null
				if line.Line > 0 {
					lineNumber = int(line.Line)
				}
				f = t.FrameTable.Append(Frame{
					Address:     int(loc.Address),
					InlineDepth: len(loc.Line) - 1 - i,
					Func:        funcFor(line.Function, resource),
					Category:    Null,
					Subcategory: Null,
					Line:        lineNumber,
					Column:      Null,
				})
				frames[k] = f
			}
			out = append(out, f)
		}
		return out
	}

	stacks := map[stackKey]int{}
	for i, s := range p.Sample {
		stack := NoStack
		// pprof lists the leaf location first.
		for j := len(s.Location) - 1; j >= 0; j-- {
			for _, frame := range framesFor(s.Location[j]) {
				k := stackKey{prefix: stack, frame: frame}
				next, ok := stacks[k]
				if !ok {
					next = t.StackTable.Append(frame, stack, 0, 0)
					stacks[k] = next
				}
				stack = next
			}
		}
		t.Samples.Stack = append(t.Samples.Stack, stack)
		t.Samples.Time = append(t.Samples.Time, res.Meta.StartTime+float64(i)*interval)
		t.Samples.Weight = append(t.Samples.Weight, float64(s.Value[sampleIndex])/divisor)
	}

	res.Threads = []*Thread{t}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
