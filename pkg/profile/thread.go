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
	"strings"
)

// WithStacks returns a copy of the thread that uses stackTable. Every
// samples-like table and every marker cause stack is remapped through
// oldToNew, which must return NoStack for stacks that no longer exist.
// The receiver is left untouched.
func (t *Thread) WithStacks(stackTable StackTable, oldToNew func(int) int) *Thread {
	nt := t.ShallowCopy()
	nt.StackTable = stackTable
	nt.Samples = t.Samples.WithStacks(remapStacks(t.Samples.Stack, oldToNew))

	if t.JsAllocations != nil {
		js := *t.JsAllocations
		js.Stack = remapStacks(js.Stack, oldToNew)
		nt.JsAllocations = &js
	}
	if t.NativeAllocations != nil {
		native := *t.NativeAllocations
		native.Stack = remapStacks(native.Stack, oldToNew)
		nt.NativeAllocations = &native
	}

	if t.Markers.Len() > 0 {
		markers := t.Markers
		markers.Data = make([]MarkerPayload, len(t.Markers.Data))
		for i, data := range t.Markers.Data {
			markers.Data[i] = data
			c, ok := data.(CauseStack)
			if !ok {
				continue
			}
			stack, ok := c.StackCause()
			if !ok {
				continue
			}
			markers.Data[i] = c.WithCauseStack(oldToNew(stack))
		}
		nt.Markers = markers
	}

	return nt
}

// Validate checks that the thread's columns line up and that every stack's
// prefix precedes it, which all single pass algorithms rely on.
func (t *Thread) Validate() error {
	var errs []string
	check := func(table string, lengths ...int) {
		for _, l := range lengths[1:] {
			if l != lengths[0] {
				errs = append(errs, fmt.Sprintf("%s columns have mismatching lengths %v", table, lengths))
				return
			}
		}
	}

	st := &t.StackTable
	check("stackTable", len(st.Frame), len(st.Prefix), len(st.Category), len(st.Subcategory))
	ft := &t.FrameTable
	check("frameTable", len(ft.Func), len(ft.Address), len(ft.InlineDepth), len(ft.Category), len(ft.Subcategory), len(ft.InnerWindowID), len(ft.Implementation), len(ft.Line), len(ft.Column))
	fn := &t.FuncTable
	check("funcTable", len(fn.Name), len(fn.IsJS), len(fn.RelevantForJS), len(fn.Resource), len(fn.FileName), len(fn.LineNumber), len(fn.ColumnNumber))
	rt := &t.ResourceTable
	check("resourceTable", len(rt.Name), len(rt.Host), len(rt.Lib), len(rt.Type))
	check("samples", len(t.Samples.Stack), len(t.Samples.Time))
	if t.Samples.Weight != nil {
		check("samples weight", len(t.Samples.Stack), len(t.Samples.Weight))
	}
	if t.Samples.WeightType != "" {
		if err := t.Samples.WeightType.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: thread %q: %s", ErrInvalidProfile, t.Name, strings.Join(errs, "; "))
	}

	for i := 0; i < st.Len(); i++ {
		if p := st.Prefix[i]; p != NoStack && (p < 0 || p >= i) {
			return fmt.Errorf("%w: thread %q: stack %d has prefix %d", ErrInvalidProfile, t.Name, i, p)
		}
		if f := st.Frame[i]; f < 0 || f >= ft.Len() {
			return fmt.Errorf("%w: thread %q: stack %d references frame %d", ErrInvalidProfile, t.Name, i, f)
		}
	}
	for i, f := range ft.Func {
		if f < 0 || f >= fn.Len() {
			return fmt.Errorf("%w: thread %q: frame %d references func %d", ErrInvalidProfile, t.Name, i, f)
		}
	}
	for i, r := range fn.Resource {
		if r != NoResource && (r < 0 || r >= rt.Len()) {
			return fmt.Errorf("%w: thread %q: func %d references resource %d", ErrInvalidProfile, t.Name, i, r)
		}
	}
	for i, s := range t.Samples.Stack {
		if s != NoStack && (s < 0 || s >= st.Len()) {
			return fmt.Errorf("%w: thread %q: sample %d references stack %d", ErrInvalidProfile, t.Name, i, s)
		}
	}
	return nil
}

// Validate validates all threads and that they share the profile's string table.
func (p *Profile) Validate() error {
	for i, t := range p.Threads {
		if t.StringTable != p.StringTable {
			return fmt.Errorf("%w: thread %d does not use the shared string table", ErrInvalidProfile, i)
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
