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

// Package profiletest builds small profiles from textual stacks for tests.
//
// Every stack is a whitespace separated list of frames, root first, and
// produces one sample. A frame is a function name optionally followed by
// bracketed attributes:
//
//	A[lib:libxul.so]   the function belongs to the libxul.so resource
//	A[cat:DOM]         the frame has the DOM category
//	A[jit:baseline]    the frame has the baseline implementation
//	A[line:12]         a distinct frame (call site) of the same function
//	A[rel]             the function is relevant for JS
//
// Function names ending in "JS" are JavaScript functions. Two frames with
// the same name and resource share a function.
package profiletest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/stringtable"
)

// Profile returns a single thread profile with one sample per stack. Sample
// i happens at time i, the interval is 1.
func Profile(stacks ...string) *profile.Profile {
	return MultiThread(stacks)
}

// Thread returns the only thread of Profile(stacks...).
func Thread(stacks ...string) *profile.Thread {
	return Profile(stacks...).Threads[0]
}

// MultiThread returns a profile with one thread per stack list. Threads share
// the string table but not their other tables.
func MultiThread(threads ...[]string) *profile.Profile {
	strs := stringtable.New()
	p := &profile.Profile{
		Meta: profile.Meta{
			Interval:                   1,
			PreprocessedProfileVersion: 6,
			Product:                    "profiletest",
			Categories: []profile.Category{
				{Name: "Other", Color: "grey", Subcategories: []string{"Other"}},
			},
		},
		StringTable: strs,
	}
	for i, stacks := range threads {
		b := newBuilder(p, strs)
		t := b.build(stacks)
		t.Name = fmt.Sprintf("Thread %d", i)
		t.TID = strconv.Itoa(i)
		t.IsMainThread = i == 0
		p.Threads = append(p.Threads, t)
	}
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return p
}

// FuncIndex returns the index of the function called name, panicking if
// there is none.
func FuncIndex(t *profile.Thread, name string) int {
	for i, n := range t.FuncTable.Name {
		if t.StringTable.GetString(n) == name {
			return i
		}
	}
	panic(fmt.Sprintf("no function %q in thread %q", name, t.Name))
}

// FuncIndexes maps every name through FuncIndex, which is handy to build
// call node paths.
func FuncIndexes(t *profile.Thread, names ...string) []int {
	res := make([]int, 0, len(names))
	for _, n := range names {
		res = append(res, FuncIndex(t, n))
	}
	return res
}

// FuncNames is the inverse of FuncIndexes.
func FuncNames(t *profile.Thread, funcs []int) []string {
	res := make([]string, 0, len(funcs))
	for _, f := range funcs {
		res = append(res, t.FuncName(f))
	}
	return res
}

// ResourceIndex returns the index of the resource called name.
func ResourceIndex(t *profile.Thread, name string) int {
	for i, n := range t.ResourceTable.Name {
		if t.StringTable.GetString(n) == name {
			return i
		}
	}
	panic(fmt.Sprintf("no resource %q in thread %q", name, t.Name))
}

// StackNames returns the function names of stack, root first. NoStack
// yields nil.
func StackNames(t *profile.Thread, stack int) []string {
	var res []string
	for s := stack; s != profile.NoStack; s = t.StackTable.Prefix[s] {
		res = append(res, t.FuncName(t.StackFunc(s)))
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

// SampleStacks renders the stack of every sample as a space separated list
// of function names, or "" for null stacks.
func SampleStacks(t *profile.Thread) []string {
	res := make([]string, 0, t.Samples.Len())
	for _, s := range t.Samples.Stack {
		res = append(res, strings.Join(StackNames(t, s), " "))
	}
	return res
}

type funcKey struct {
	name     string
	resource int
}

type builder struct {
	p      *profile.Profile
	strs   *stringtable.Table
	t      *profile.Thread
	funcs  map[funcKey]int
	frames map[string]int
	libs   map[string]int
	stacks map[[2]int]int
}

func newBuilder(p *profile.Profile, strs *stringtable.Table) *builder {
	return &builder{
		p:    p,
		strs: strs,
		t: &profile.Thread{
			ProcessType: "default",
			StackTable:  profile.NewStackTable(0),
			StringTable: strs,
			Samples: profile.SamplesTable{
				Stack:      []int{},
				Time:       []float64{},
				WeightType: profile.WeightTypeSamples,
			},
		},
		funcs:  map[funcKey]int{},
		frames: map[string]int{},
		libs:   map[string]int{},
		stacks: map[[2]int]int{},
	}
}

func (b *builder) build(stacks []string) *profile.Thread {
	for i, s := range stacks {
		stack := profile.NoStack
		for _, token := range strings.Fields(s) {
			frame := b.frame(token)
			k := [2]int{stack, frame}
			next, ok := b.stacks[k]
			if !ok {
				category := b.t.FrameTable.Category[frame]
				if category == profile.Null {
					category = 0
				}
				next = b.t.StackTable.Append(frame, stack, category, 0)
				b.stacks[k] = next
			}
			stack = next
		}
		b.t.Samples.Stack = append(b.t.Samples.Stack, stack)
		b.t.Samples.Time = append(b.t.Samples.Time, float64(i))
	}
	return b.t
}

type attrs struct {
	lib      string
	category string
	jit      string
	line     int
	relevant bool
}

func parseToken(token string) (string, attrs) {
	a := attrs{line: profile.Null}
	name, rest, _ := strings.Cut(token, "[")
	if rest == "" {
		return name, a
	}
	for _, part := range strings.Split(strings.TrimSuffix(rest, "]"), "][") {
		key, value, _ := strings.Cut(part, ":")
		switch key {
		case "lib":
			a.lib = value
		case "cat":
			a.category = value
		case "jit":
			a.jit = value
		case "line":
			line, err := strconv.Atoi(value)
			if err != nil {
				panic(fmt.Sprintf("invalid line in frame %q: %v", token, err))
			}
			a.line = line
		case "rel":
			a.relevant = true
		default:
			panic(fmt.Sprintf("unknown attribute %q in frame %q", key, token))
		}
	}
	return name, a
}

func (b *builder) frame(token string) int {
	if f, ok := b.frames[token]; ok {
		return f
	}
	name, a := parseToken(token)

	resource := profile.NoResource
	if a.lib != "" {
		resource = b.resource(a.lib)
	}
	fk := funcKey{name: name, resource: resource}
	fn, ok := b.funcs[fk]
	if !ok {
		fn = b.t.FuncTable.Append(profile.Func{
			Name:          b.strs.IndexForString(name),
			IsJS:          strings.HasSuffix(name, "JS"),
			RelevantForJS: a.relevant,
			Resource:      resource,
			FileName:      profile.Null,
			LineNumber:    profile.Null,
			ColumnNumber:  profile.Null,
		})
		b.funcs[fk] = fn
	}

	category := profile.Null
	if a.category != "" {
		category = b.category(a.category)
	}
	f := b.t.FrameTable.Append(profile.Frame{
		Address:        profile.Null,
		Category:       category,
		Subcategory:    profile.Null,
		Func:           fn,
		Implementation: a.jit,
		Line:           a.line,
		Column:         profile.Null,
	})
	b.frames[token] = f
	return f
}

func (b *builder) resource(lib string) int {
	if r, ok := b.libs[lib]; ok {
		return r
	}
	b.p.Libs = append(b.p.Libs, profile.Lib{Name: lib, Path: "/" + lib, DebugName: lib})
	r := b.t.ResourceTable.Append(b.strs.IndexForString(lib), profile.Null, len(b.p.Libs)-1, profile.ResourceTypeLibrary)
	b.libs[lib] = r
	return r
}

func (b *builder) category(name string) int {
	for i, c := range b.p.Meta.Categories {
		if c.Name == name {
			return i
		}
	}
	b.p.Meta.Categories = append(b.p.Meta.Categories, profile.Category{
		Name:          name,
		Color:         "blue",
		Subcategories: []string{"Other"},
	})
	return len(b.p.Meta.Categories) - 1
}
