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

// Package profile holds the columnar processed-profile data model. Every
// table is a struct of parallel slices, one entry per row. Nullable index
// columns use -1.
package profile

import (
	"errors"

	"github.com/parca-dev/stackgraph/pkg/stringtable"
)

const (
	// NoStack marks a sample whose stack was filtered out, or a root stack's prefix.
	NoStack = -1
	// NoResource marks a label-only pseudo function.
	NoResource = -1
	// NoLib marks a resource without a library.
	NoLib = -1
	// Null is the generic null marker for optional index and number columns.
	Null = -1
)

var ErrInvalidProfile = errors.New("invalid profile")

// Profile is a processed profile: shared metadata plus one entry per thread.
// All threads share StringTable.
type Profile struct {
	Meta        Meta
	Libs        []Lib
	Threads     []*Thread
	StringTable *stringtable.Table
}

type Meta struct {
	Interval                   float64
	StartTime                  float64
	Version                    int
	PreprocessedProfileVersion int
	Product                    string
	Categories                 []Category
}

// DefaultCategory is the category used when stacks with conflicting
// categories get merged together. It is the first grey category, or 0.
func (m Meta) DefaultCategory() int {
	for i, c := range m.Categories {
		if c.Color == "grey" {
			return i
		}
	}
	return 0
}

type Category struct {
	Name          string
	Color         string
	Subcategories []string
}

type Lib struct {
	Arch       string
	Name       string
	Path       string
	DebugName  string
	DebugPath  string
	BreakpadID string
	CodeID     string
}

// Thread is the unit all derivations work on.
type Thread struct {
	Name         string
	ProcessType  string
	ProcessName  string
	PID          string
	TID          string
	IsMainThread bool

	StackTable    StackTable
	FrameTable    FrameTable
	FuncTable     FuncTable
	ResourceTable ResourceTable

	Samples           SamplesTable
	JsAllocations     *JsAllocationsTable
	NativeAllocations *NativeAllocationsTable
	Markers           MarkersTable

	StringTable *stringtable.Table
}

// ShallowCopy returns a copy of the thread that shares every table with t.
// Callers replace whole tables on the copy, never mutate them.
func (t *Thread) ShallowCopy() *Thread {
	c := *t
	return &c
}

// FuncName returns the name of the function at funcIndex.
func (t *Thread) FuncName(funcIndex int) string {
	return t.StringTable.GetString(t.FuncTable.Name[funcIndex])
}

// StackFunc returns the function of the frame referenced by stackIndex.
func (t *Thread) StackFunc(stackIndex int) int {
	return t.FrameTable.Func[t.StackTable.Frame[stackIndex]]
}

// StackTable has one row per distinguishable call-site level call stack.
// Prefix[i] is always less than i, or NoStack for roots.
type StackTable struct {
	Frame       []int
	Prefix      []int
	Category    []int
	Subcategory []int
}

func NewStackTable(capacity int) StackTable {
	return StackTable{
		Frame:       make([]int, 0, capacity),
		Prefix:      make([]int, 0, capacity),
		Category:    make([]int, 0, capacity),
		Subcategory: make([]int, 0, capacity),
	}
}

func (t *StackTable) Len() int {
	return len(t.Frame)
}

// Append adds a row and returns its index.
func (t *StackTable) Append(frame, prefix, category, subcategory int) int {
	t.Frame = append(t.Frame, frame)
	t.Prefix = append(t.Prefix, prefix)
	t.Category = append(t.Category, category)
	t.Subcategory = append(t.Subcategory, subcategory)
	return len(t.Frame) - 1
}

// MergeCategory folds the category of another stack into row i. A conflicting
// category falls back to defaultCategory with the "Other" subcategory, a
// conflicting subcategory alone falls back to "Other".
func (t *StackTable) MergeCategory(i, category, subcategory, defaultCategory int) {
	if t.Category[i] != category {
		t.Category[i] = defaultCategory
		t.Subcategory[i] = 0
	} else if t.Subcategory[i] != subcategory {
		t.Subcategory[i] = 0
	}
}

type FrameTable struct {
	Address        []int
	InlineDepth    []int
	Category       []int
	Subcategory    []int
	Func           []int
	InnerWindowID  []int64
	Implementation []string
	Line           []int
	Column         []int
}

func (t *FrameTable) Len() int {
	return len(t.Func)
}

// Clone copies every column so rows can be appended without touching t.
func (t *FrameTable) Clone() FrameTable {
	return FrameTable{
		Address:        append([]int(nil), t.Address...),
		InlineDepth:    append([]int(nil), t.InlineDepth...),
		Category:       append([]int(nil), t.Category...),
		Subcategory:    append([]int(nil), t.Subcategory...),
		Func:           append([]int(nil), t.Func...),
		InnerWindowID:  append([]int64(nil), t.InnerWindowID...),
		Implementation: append([]string(nil), t.Implementation...),
		Line:           append([]int(nil), t.Line...),
		Column:         append([]int(nil), t.Column...),
	}
}

// AppendCopy appends a copy of row i of src pointing at funcIndex.
func (t *FrameTable) AppendCopy(src *FrameTable, i, funcIndex int) int {
	t.Address = append(t.Address, src.Address[i])
	t.InlineDepth = append(t.InlineDepth, src.InlineDepth[i])
	t.Category = append(t.Category, src.Category[i])
	t.Subcategory = append(t.Subcategory, src.Subcategory[i])
	t.Func = append(t.Func, funcIndex)
	t.InnerWindowID = append(t.InnerWindowID, src.InnerWindowID[i])
	t.Implementation = append(t.Implementation, src.Implementation[i])
	t.Line = append(t.Line, src.Line[i])
	t.Column = append(t.Column, src.Column[i])
	return len(t.Func) - 1
}

// Frame is a single row of a FrameTable, used to build tables incrementally.
type Frame struct {
	Address        int
	InlineDepth    int
	Category       int
	Subcategory    int
	Func           int
	InnerWindowID  int64
	Implementation string
	Line           int
	Column         int
}

func (t *FrameTable) Append(f Frame) int {
	t.Address = append(t.Address, f.Address)
	t.InlineDepth = append(t.InlineDepth, f.InlineDepth)
	t.Category = append(t.Category, f.Category)
	t.Subcategory = append(t.Subcategory, f.Subcategory)
	t.Func = append(t.Func, f.Func)
	t.InnerWindowID = append(t.InnerWindowID, f.InnerWindowID)
	t.Implementation = append(t.Implementation, f.Implementation)
	t.Line = append(t.Line, f.Line)
	t.Column = append(t.Column, f.Column)
	return len(t.Func) - 1
}

type FuncTable struct {
	Name          []int
	IsJS          []bool
	RelevantForJS []bool
	Resource      []int
	FileName      []int
	LineNumber    []int
	ColumnNumber  []int
}

func (t *FuncTable) Len() int {
	return len(t.Name)
}

func (t *FuncTable) Clone() FuncTable {
	return FuncTable{
		Name:          append([]int(nil), t.Name...),
		IsJS:          append([]bool(nil), t.IsJS...),
		RelevantForJS: append([]bool(nil), t.RelevantForJS...),
		Resource:      append([]int(nil), t.Resource...),
		FileName:      append([]int(nil), t.FileName...),
		LineNumber:    append([]int(nil), t.LineNumber...),
		ColumnNumber:  append([]int(nil), t.ColumnNumber...),
	}
}

// Func is a single row of a FuncTable.
type Func struct {
	Name          int
	IsJS          bool
	RelevantForJS bool
	Resource      int
	FileName      int
	LineNumber    int
	ColumnNumber  int
}

func (t *FuncTable) Append(f Func) int {
	t.Name = append(t.Name, f.Name)
	t.IsJS = append(t.IsJS, f.IsJS)
	t.RelevantForJS = append(t.RelevantForJS, f.RelevantForJS)
	t.Resource = append(t.Resource, f.Resource)
	t.FileName = append(t.FileName, f.FileName)
	t.LineNumber = append(t.LineNumber, f.LineNumber)
	t.ColumnNumber = append(t.ColumnNumber, f.ColumnNumber)
	return len(t.Name) - 1
}

type ResourceType int

const (
	ResourceTypeUnknown ResourceType = iota
	ResourceTypeLibrary
	ResourceTypeAddon
	ResourceTypeWebhost
	ResourceTypeOtherhost
	ResourceTypeURL
)

func (r ResourceType) String() string {
	switch r {
	case ResourceTypeUnknown:
		return "unknown"
	case ResourceTypeLibrary:
		return "library"
	case ResourceTypeAddon:
		return "addon"
	case ResourceTypeWebhost:
		return "webhost"
	case ResourceTypeOtherhost:
		return "otherhost"
	case ResourceTypeURL:
		return "url"
	default:
		return "invalid"
	}
}

type ResourceTable struct {
	Lib  []int
	Name []int
	Host []int
	Type []ResourceType
}

func (t *ResourceTable) Len() int {
	return len(t.Name)
}

func (t *ResourceTable) Append(name, host, lib int, typ ResourceType) int {
	t.Name = append(t.Name, name)
	t.Host = append(t.Host, host)
	t.Lib = append(t.Lib, lib)
	t.Type = append(t.Type, typ)
	return len(t.Name) - 1
}
