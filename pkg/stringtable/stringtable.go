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

package stringtable

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned for string indexes that were never allocated.
var ErrIndexOutOfRange = errors.New("string index out of range")

// Table interns strings into small integer indexes. Indexes are stable for
// the lifetime of the table, strings are only ever appended.
type Table struct {
	strings []string
	index   map[string]int
}

// New returns a table pre-populated with the given strings, in order.
// Duplicates keep the index of their first occurrence for lookups.
func New(strs ...string) *Table {
	t := &Table{
		strings: make([]string, 0, len(strs)),
		index:   make(map[string]int, len(strs)),
	}
	for _, s := range strs {
		t.strings = append(t.strings, s)
		if _, ok := t.index[s]; !ok {
			t.index[s] = len(t.strings) - 1
		}
	}
	return t
}

// IndexForString returns the index of s, appending it if it is not in the table yet.
func (t *Table) IndexForString(s string) int {
	if i, ok := t.index[s]; ok {
		return i
	}
	t.strings = append(t.strings, s)
	t.index[s] = len(t.strings) - 1
	return t.index[s]
}

// HasString reports whether s has been interned.
func (t *Table) HasString(s string) bool {
	_, ok := t.index[s]
	return ok
}

// Lookup returns the string at index i.
func (t *Table) Lookup(i int) (string, error) {
	if i < 0 || i >= len(t.strings) {
		return "", fmt.Errorf("%w: %d (table has %d strings)", ErrIndexOutOfRange, i, len(t.strings))
	}
	return t.strings[i], nil
}

// GetString returns the string at index i. An unallocated index is a
// programmer error and panics.
func (t *Table) GetString(i int) string {
	s, err := t.Lookup(i)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of strings in the table.
func (t *Table) Len() int {
	return len(t.strings)
}

// Strings returns the backing slice. Callers must not modify it.
func (t *Table) Strings() []string {
	return t.strings
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		strings: make([]string, len(t.strings)),
		index:   make(map[string]int, len(t.index)),
	}
	copy(c.strings, t.strings)
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}
