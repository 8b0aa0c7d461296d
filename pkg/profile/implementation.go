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

// Implementation filters which frames are visible in a call tree.
type Implementation string

const (
	ImplementationCombined Implementation = "combined"
	ImplementationJS       Implementation = "js"
	ImplementationCpp      Implementation = "cpp"
)

func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(s) {
	case ImplementationCombined, ImplementationJS, ImplementationCpp:
		return Implementation(s), nil
	case "":
		return ImplementationCombined, nil
	default:
		return "", fmt.Errorf("unknown implementation filter %q", s)
	}
}

// FuncMatchesImplementation reports whether funcIndex is visible under impl.
func FuncMatchesImplementation(t *Thread, funcIndex int, impl Implementation) bool {
	switch impl {
	case ImplementationJS:
		return t.FuncTable.IsJS[funcIndex] || t.FuncTable.RelevantForJS[funcIndex]
	case ImplementationCpp:
		if t.FuncTable.IsJS[funcIndex] {
			return false
		}
		// JIT code is generated at runtime and so has no library resource.
		// Its name is then the raw address.
		isProbablyJIT := t.FuncTable.Resource[funcIndex] == NoResource &&
			strings.HasPrefix(t.FuncName(funcIndex), "0x")
		return !isProbablyJIT
	default:
		return true
	}
}
