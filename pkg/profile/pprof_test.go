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

package profile_test

import (
	"testing"

	pprofprofile "github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/profile/profiletest"
)

func TestFromPprof(t *testing.T) {
	mapping := &pprofprofile.Mapping{ID: 1, File: "/usr/bin/server", BuildID: "abc"}
	mainFn := &pprofprofile.Function{ID: 1, Name: "main.main", Filename: "main.go"}
	handleFn := &pprofprofile.Function{ID: 2, Name: "main.handle", Filename: "main.go"}
	inlinedFn := &pprofprofile.Function{ID: 3, Name: "main.parse", Filename: "parse.go"}

	mainLoc := &pprofprofile.Location{ID: 1, Mapping: mapping, Address: 0x10, Line: []pprofprofile.Line{{Function: mainFn, Line: 5}}}
	// main.parse is inlined into main.handle.
	handleLoc := &pprofprofile.Location{ID: 2, Mapping: mapping, Address: 0x20, Line: []pprofprofile.Line{
		{Function: inlinedFn, Line: 30},
		{Function: handleFn, Line: 12},
	}}
	unsymbolized := &pprofprofile.Location{ID: 3, Address: 0xdead}

	p := &pprofprofile.Profile{
		SampleType: []*pprofprofile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType: &pprofprofile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     10_000_000,
		Sample: []*pprofprofile.Sample{
			{Location: []*pprofprofile.Location{handleLoc, mainLoc}, Value: []int64{2, 20_000_000}},
			{Location: []*pprofprofile.Location{mainLoc}, Value: []int64{1, 10_000_000}},
			{Location: []*pprofprofile.Location{unsymbolized, mainLoc}, Value: []int64{1, 10_000_000}},
		},
		Location: []*pprofprofile.Location{mainLoc, handleLoc, unsymbolized},
		Function: []*pprofprofile.Function{mainFn, handleFn, inlinedFn},
		Mapping:  []*pprofprofile.Mapping{mapping},
	}

	res, err := profile.FromPprof(p, 1)
	require.NoError(t, err)
	require.Equal(t, 10.0, res.Meta.Interval)
	require.Len(t, res.Threads, 1)
	require.Len(t, res.Libs, 1)
	require.Equal(t, "server", res.Libs[0].Name)

	th := res.Threads[0]
	require.Equal(t, "cpu", th.Name)
	require.Equal(t, profile.WeightTypeTracingMs, th.Samples.WeightType)
	require.Equal(t, []float64{20, 10, 10}, th.Samples.Weight)
	require.Equal(t, []string{
		"main.main main.handle main.parse",
		"main.main",
		"main.main 0xdead",
	}, profiletest.SampleStacks(th))

	parse := profiletest.FuncIndex(th, "main.parse")
	require.Equal(t, 0, th.FuncTable.Resource[parse])
	require.Equal(t, "parse.go", th.StringTable.GetString(th.FuncTable.FileName[parse]))

	_, err = profile.FromPprof(p, 2)
	require.ErrorIs(t, err, profile.ErrInvalidProfile)
}
