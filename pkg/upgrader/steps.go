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
	"fmt"

	"github.com/parca-dev/stackgraph/pkg/stringtable"
)

// addSubcategories gives every category an "Other" subcategory, stacks the
// subcategory 0 and frames a null subcategory.
func addSubcategories(doc Document) error {
	if meta, ok := doc["meta"].(map[string]any); ok {
		cats, _ := meta["categories"].([]any)
		for _, c := range cats {
			cat, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := cat["subcategories"]; !ok {
				cat["subcategories"] = []any{"Other"}
			}
		}
	}

	for _, t := range threads(doc) {
		if st, ok := table(t, "stackTable"); ok {
			st["subcategory"] = filled(rows(st, "frame"), 0)
		}
		if ft, ok := table(t, "frameTable"); ok {
			ft["subcategory"] = filled(rows(ft, "func"), nil)
		}
	}
	return nil
}

func addRelevantForJS(doc Document) error {
	for _, t := range threads(doc) {
		if ft, ok := table(t, "funcTable"); ok {
			ft["relevantForJS"] = filled(rows(ft, "name"), false)
		}
	}
	return nil
}

// addWeightTypes makes the unit of every samples-like table explicit.
func addWeightTypes(doc Document) error {
	for _, t := range threads(doc) {
		if s, ok := table(t, "samples"); ok {
			if _, ok := s["weightType"]; !ok {
				s["weightType"] = "samples"
			}
			if _, ok := s["weight"]; !ok {
				s["weight"] = nil
			}
		}
		for _, name := range []string{"jsAllocations", "nativeAllocations"} {
			if a, ok := table(t, name); ok {
				a["weightType"] = "bytes"
			}
		}
	}
	return nil
}

func addInnerWindowIDs(doc Document) error {
	for _, t := range threads(doc) {
		if ft, ok := table(t, "frameTable"); ok {
			ft["innerWindowID"] = filled(rows(ft, "func"), 0)
		}
	}
	return nil
}

// hoistStringArrays replaces per-thread string arrays with one shared array
// and rewrites every string index column accordingly.
func hoistStringArrays(doc Document) error {
	shared := stringtable.New()
	if s, ok := doc["shared"].(map[string]any); ok {
		existing, _ := s["stringArray"].([]any)
		for _, str := range existing {
			v, _ := str.(string)
			shared.IndexForString(v)
		}
	}

	for ti, t := range threads(doc) {
		raw, _ := t["stringArray"].([]any)
		remap := make([]int, len(raw))
		for i, str := range raw {
			s, ok := str.(string)
			if !ok {
				return fmt.Errorf("thread %d: string %d is not a string", ti, i)
			}
			remap[i] = shared.IndexForString(s)
		}

		for _, c := range []struct {
			table, column string
		}{
			{"funcTable", "name"},
			{"funcTable", "fileName"},
			{"resourceTable", "name"},
			{"resourceTable", "host"},
			{"markers", "name"},
			{"nativeSymbols", "name"},
		} {
			tbl, ok := table(t, c.table)
			if !ok {
				continue
			}
			col := column(tbl, c.column)
			for i, v := range col {
				if v == nil {
					continue
				}
				idx, ok := asInt(v)
				if !ok || idx < 0 || idx >= len(remap) {
					return fmt.Errorf("thread %d: %s.%s[%d] is not a valid string index: %v", ti, c.table, c.column, i, v)
				}
				col[i] = remap[idx]
			}
		}
		delete(t, "stringArray")
	}

	strs := make([]any, shared.Len())
	for i, s := range shared.Strings() {
		strs[i] = s
	}
	doc["shared"] = map[string]any{"stringArray": strs}
	return nil
}
