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
	"bytes"
	"encoding/json"
)

// The raw* types mirror the processed profile JSON format. Nullable columns
// are slices of pointers.

type rawProfile struct {
	Meta    rawMeta     `json:"meta"`
	Libs    []rawLib    `json:"libs"`
	Threads []rawThread `json:"threads"`
	Shared  rawShared   `json:"shared"`
}

type rawShared struct {
	StringArray []string `json:"stringArray"`
}

type rawMeta struct {
	Interval                   float64       `json:"interval"`
	StartTime                  float64       `json:"startTime"`
	Version                    int           `json:"version"`
	PreprocessedProfileVersion int           `json:"preprocessedProfileVersion"`
	Product                    string        `json:"product"`
	Categories                 []rawCategory `json:"categories"`
}

type rawCategory struct {
	Name          string   `json:"name"`
	Color         string   `json:"color"`
	Subcategories []string `json:"subcategories"`
}

type rawLib struct {
	Arch       string `json:"arch"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	DebugName  string `json:"debugName"`
	DebugPath  string `json:"debugPath"`
	BreakpadID string `json:"breakpadId"`
	CodeID     string `json:"codeId,omitempty"`
}

type rawThread struct {
	Name              string                `json:"name"`
	ProcessType       string                `json:"processType"`
	ProcessName       string                `json:"processName,omitempty"`
	PID               flexString            `json:"pid"`
	TID               flexString            `json:"tid"`
	IsMainThread      bool                  `json:"isMainThread"`
	Samples           rawSamples            `json:"samples"`
	JsAllocations     *rawJsAllocations     `json:"jsAllocations,omitempty"`
	NativeAllocations *rawNativeAllocations `json:"nativeAllocations,omitempty"`
	Markers           rawMarkers            `json:"markers"`
	StackTable        rawStackTable         `json:"stackTable"`
	FrameTable        rawFrameTable         `json:"frameTable"`
	FuncTable         rawFuncTable          `json:"funcTable"`
	ResourceTable     rawResourceTable      `json:"resourceTable"`
}

type rawSamples struct {
	Length         int        `json:"length"`
	Stack          []*int     `json:"stack"`
	Time           []float64  `json:"time"`
	Weight         []float64  `json:"weight"`
	WeightType     string     `json:"weightType"`
	EventDelay     []*float64 `json:"eventDelay,omitempty"`
	Responsiveness []*float64 `json:"responsiveness,omitempty"`
}

type rawJsAllocations struct {
	Length     int       `json:"length"`
	Time       []float64 `json:"time"`
	ClassName  []string  `json:"className"`
	TypeName   []string  `json:"typeName"`
	CoarseType []string  `json:"coarseType"`
	Weight     []float64 `json:"weight"`
	WeightType string    `json:"weightType"`
	InNursery  []bool    `json:"inNursery"`
	Stack      []*int    `json:"stack"`
}

type rawNativeAllocations struct {
	Length        int       `json:"length"`
	Time          []float64 `json:"time"`
	Weight        []float64 `json:"weight"`
	WeightType    string    `json:"weightType"`
	Stack         []*int    `json:"stack"`
	MemoryAddress []int64   `json:"memoryAddress,omitempty"`
	ThreadID      []int     `json:"threadId,omitempty"`
}

type rawMarkers struct {
	Length    int               `json:"length"`
	Data      []json.RawMessage `json:"data"`
	Name      []int             `json:"name"`
	StartTime []*float64        `json:"startTime"`
	EndTime   []*float64        `json:"endTime"`
	Phase     []int             `json:"phase"`
	Category  []int             `json:"category"`
}

type rawStackTable struct {
	Length      int    `json:"length"`
	Frame       []int  `json:"frame"`
	Prefix      []*int `json:"prefix"`
	Category    []*int `json:"category"`
	Subcategory []*int `json:"subcategory"`
}

type rawFrameTable struct {
	Length         int       `json:"length"`
	Address        []*int    `json:"address"`
	InlineDepth    []int     `json:"inlineDepth"`
	Category       []*int    `json:"category"`
	Subcategory    []*int    `json:"subcategory"`
	Func           []int     `json:"func"`
	InnerWindowID  []*int64  `json:"innerWindowID"`
	Implementation []*string `json:"implementation"`
	Line           []*int    `json:"line"`
	Column         []*int    `json:"column"`
}

type rawFuncTable struct {
	Length        int    `json:"length"`
	Name          []int  `json:"name"`
	IsJS          []bool `json:"isJS"`
	RelevantForJS []bool `json:"relevantForJS"`
	Resource      []int  `json:"resource"`
	FileName      []*int `json:"fileName"`
	LineNumber    []*int `json:"lineNumber"`
	ColumnNumber  []*int `json:"columnNumber"`
}

type rawResourceTable struct {
	Length int    `json:"length"`
	Lib    []*int `json:"lib"`
	Name   []int  `json:"name"`
	Host   []*int `json:"host"`
	Type   []int  `json:"type"`
}

// flexString accepts both JSON strings and numbers. Older profiles encode
// pids and tids as numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func ints(in []*int, n int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = Null
		if i < len(in) && in[i] != nil {
			res[i] = *in[i]
		}
	}
	return res
}

func ints64(in []*int64, n int) []int64 {
	res := make([]int64, n)
	for i := range res {
		if i < len(in) && in[i] != nil {
			res[i] = *in[i]
		}
	}
	return res
}

func floats(in []*float64, n int, absent float64) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = absent
		if i < len(in) && in[i] != nil {
			res[i] = *in[i]
		}
	}
	return res
}

func nullableInts(in []int) []*int {
	res := make([]*int, len(in))
	for i, v := range in {
		if v == Null {
			continue
		}
		v := v
		res[i] = &v
	}
	return res
}
