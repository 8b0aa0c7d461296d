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

package upgrader

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) Document {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var doc Document
	require.NoError(t, dec.Decode(&doc))
	return doc
}

// normalize round trips through JSON so documents built by steps compare
// equal to decoded fixtures.
func normalize(t *testing.T, doc Document) Document {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return decode(t, string(b))
}

const v1Profile = `{
  "meta": {"preprocessedProfileVersion": 1, "interval": 1, "categories": [{"name": "Other", "color": "grey"}]},
  "threads": [{
    "name": "GeckoMain",
    "stringArray": ["main", "libxul.so", "work"],
    "stackTable": {"length": 2, "frame": [0, 1], "prefix": [null, 0], "category": [0, 0]},
    "frameTable": {"length": 2, "func": [0, 1], "category": [null, null], "line": [null, null]},
    "funcTable": {"length": 2, "name": [0, 2], "isJS": [false, true], "resource": [0, -1], "fileName": [null, 1]},
    "resourceTable": {"length": 1, "lib": [0], "name": [1], "host": [null], "type": [1]},
    "samples": {"length": 1, "stack": [1], "time": [0]}
  }, {
    "name": "Worker",
    "stringArray": ["work", "other"],
    "stackTable": {"length": 0, "frame": [], "prefix": [], "category": []},
    "frameTable": {"length": 0, "func": []},
    "funcTable": {"length": 2, "name": [1, 0], "isJS": [false, false], "resource": [-1, -1], "fileName": [null, null]},
    "samples": {"length": 0, "stack": [], "time": []}
  }]
}`

func TestUpgradeFromFutureVersionFails(t *testing.T) {
	doc := decode(t, `{"meta": {"preprocessedProfileVersion": 7}, "threads": []}`)
	before := normalize(t, doc)

	from, err := Upgrade(doc)
	require.Equal(t, CurrentVersion+1, from)

	var verr *VersionError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, CurrentVersion+1, verr.Version)
	require.Contains(t, err.Error(), "refresh")

	require.Equal(t, before, normalize(t, doc))
}

func TestUpgradeWithoutVersionFails(t *testing.T) {
	doc := decode(t, `{"threads": []}`)
	v, err := Version(doc)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	_, err = Upgrade(doc)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestUpgradeCurrentIsNoop(t *testing.T) {
	doc := decode(t, `{"meta": {"preprocessedProfileVersion": 6}, "threads": []}`)
	before := normalize(t, doc)
	from, err := Upgrade(doc)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, from)
	require.Equal(t, before, normalize(t, doc))
}

func TestUpgradeStepMissing(t *testing.T) {
	err := UpgradeStep(Document{}, 0)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestUpgradeSteps(t *testing.T) {
	doc := decode(t, v1Profile)

	require.NoError(t, UpgradeStep(doc, 1))
	doc = normalize(t, doc)
	v, err := Version(doc)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	main := threads(doc)[0]
	st, _ := table(main, "stackTable")
	require.Equal(t, []any{json.Number("0"), json.Number("0")}, column(st, "subcategory"))
	ft, _ := table(main, "frameTable")
	require.Equal(t, []any{nil, nil}, column(ft, "subcategory"))
	cats := doc["meta"].(map[string]any)["categories"].([]any)
	require.Equal(t, []any{"Other"}, cats[0].(map[string]any)["subcategories"])

	require.NoError(t, UpgradeStep(doc, 2))
	fn, _ := table(threads(doc)[0], "funcTable")
	require.Equal(t, []any{false, false}, column(fn, "relevantForJS"))

	require.NoError(t, UpgradeStep(doc, 3))
	samples, _ := table(threads(doc)[0], "samples")
	require.Equal(t, "samples", samples["weightType"])
	require.Nil(t, samples["weight"])

	require.NoError(t, UpgradeStep(doc, 4))
	ft, _ = table(threads(doc)[0], "frameTable")
	require.Len(t, column(ft, "innerWindowID"), 2)

	require.NoError(t, UpgradeStep(doc, 5))
	doc = normalize(t, doc)
	shared := doc["shared"].(map[string]any)["stringArray"].([]any)
	require.Equal(t, []any{"main", "libxul.so", "work", "other"}, shared)

	main = threads(doc)[0]
	_, hasStrings := main["stringArray"]
	require.False(t, hasStrings)
	fn, _ = table(main, "funcTable")
	require.Equal(t, []any{json.Number("0"), json.Number("2")}, column(fn, "name"))
	require.Equal(t, []any{nil, json.Number("1")}, column(fn, "fileName"))

	worker := threads(doc)[1]
	fn, _ = table(worker, "funcTable")
	// "other" and "work" in the worker's own array map to the shared indexes.
	require.Equal(t, []any{json.Number("3"), json.Number("2")}, column(fn, "name"))
}

func TestUpgradeAllTheWay(t *testing.T) {
	doc := decode(t, v1Profile)
	from, err := Upgrade(doc)
	require.NoError(t, err)
	require.Equal(t, 1, from)

	v, err := Version(doc)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, v)
}

func TestHoistRejectsBadIndexes(t *testing.T) {
	doc := decode(t, `{"threads": [{"stringArray": ["a"], "funcTable": {"name": [3]}}]}`)
	err := hoistStringArrays(doc)
	require.Error(t, err)
}
