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

// Package upgrader migrates decoded processed profiles from older format
// versions to CurrentVersion, one version at a time.
package upgrader

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// CurrentVersion is the processed profile format version this module reads.
	CurrentVersion = 6
	// MinimumSupportedVersion is the oldest version with a documented upgrade path.
	MinimumSupportedVersion = 1
)

var ErrUnsupportedVersion = errors.New("unsupported profile version")

// VersionError is returned for profiles newer than CurrentVersion.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf(
		"the profile has format version %d, but this build only supports versions up to %d; please refresh or update stackgraph to load it",
		e.Version, CurrentVersion,
	)
}

// Document is a processed profile decoded with json.Decoder.UseNumber.
type Document = map[string]any

// step upgrades a document from version v to v+1, in place.
type step func(doc Document) error

// steps[v] upgrades from v to v+1. Versions below MinimumSupportedVersion
// have no step on purpose: their shape was never documented.
var steps = map[int]step{
	1: addSubcategories,
	2: addRelevantForJS,
	3: addWeightTypes,
	4: addInnerWindowIDs,
	5: hoistStringArrays,
}

// Version returns the document's format version, 0 when it has none.
func Version(doc Document) (int, error) {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		return 0, nil
	}
	v, ok := meta["preprocessedProfileVersion"]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, fmt.Errorf("preprocessedProfileVersion is not an integer: %v", v)
	}
	return n, nil
}

// Upgrade brings doc to CurrentVersion and returns the version it started at.
// Profiles from the future are rejected before anything is modified.
func Upgrade(doc Document) (int, error) {
	from, err := Version(doc)
	if err != nil {
		return 0, err
	}
	if from > CurrentVersion {
		return from, &VersionError{Version: from}
	}
	if from < MinimumSupportedVersion {
		return from, fmt.Errorf("%w: version %d predates the oldest upgradable version %d", ErrUnsupportedVersion, from, MinimumSupportedVersion)
	}

	for v := from; v < CurrentVersion; v++ {
		if err := UpgradeStep(doc, v); err != nil {
			return from, err
		}
	}
	return from, nil
}

// UpgradeStep applies the single v to v+1 step and stamps the new version.
func UpgradeStep(doc Document, v int) error {
	s, ok := steps[v]
	if !ok {
		return fmt.Errorf("%w: no upgrader from version %d to %d", ErrUnsupportedVersion, v, v+1)
	}
	if err := s(doc); err != nil {
		return fmt.Errorf("upgrade from version %d to %d: %w", v, v+1, err)
	}

	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		doc["meta"] = meta
	}
	meta["preprocessedProfileVersion"] = v + 1
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		return int(n), float64(int(n)) == n
	case int:
		return n, true
	default:
		return 0, false
	}
}

func threads(doc Document) []map[string]any {
	raw, _ := doc["threads"].([]any)
	res := make([]map[string]any, 0, len(raw))
	for _, t := range raw {
		if m, ok := t.(map[string]any); ok {
			res = append(res, m)
		}
	}
	return res
}

func table(thread map[string]any, name string) (map[string]any, bool) {
	t, ok := thread[name].(map[string]any)
	return t, ok
}

func column(table map[string]any, name string) []any {
	c, _ := table[name].([]any)
	return c
}

// rows returns the row count of a table from its length field or the named column.
func rows(table map[string]any, col string) int {
	if l, ok := asInt(table["length"]); ok {
		return l
	}
	return len(column(table, col))
}

func filled(n int, v any) []any {
	res := make([]any, n)
	for i := range res {
		res[i] = v
	}
	return res
}
