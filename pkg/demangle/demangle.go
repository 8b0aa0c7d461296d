// Copyright 2022-2026 The Parca Authors
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

package demangle

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

// Demangler turns mangled C++ and Rust symbols of native frames into
// readable function names. Names that are not mangled are returned as is.
type Demangler struct {
	options []demangle.Option
}

var (
	Options = []string{
		"no_params",
		"no_template_params",
		"no_clones",
		"no_rust",
		"verbose",
		"llvm_style",
	}
	optionMappings = map[string]demangle.Option{
		Options[0]: demangle.NoParams,
		Options[1]: demangle.NoTemplateParams,
		Options[2]: demangle.NoClones,
		Options[3]: demangle.NoRust,
		Options[4]: demangle.Verbose,
		Options[5]: demangle.LLVMStyle,
	}
)

func parseOptions(names []string) ([]demangle.Option, error) {
	res := make([]demangle.Option, 0, len(names))
	for _, name := range names {
		opt, ok := optionMappings[name]
		if !ok {
			return nil, fmt.Errorf("unknown demangle option %q", name)
		}
		res = append(res, opt)
	}
	return res, nil
}

// NewDefault returns the demangler used for call tree display: parameter
// and template lists are dropped to keep names short.
func NewDefault() Demangler {
	return Demangler{options: []demangle.Option{demangle.NoParams, demangle.NoTemplateParams}}
}

// New returns a demangler configured with the named options, see Options.
func New(options ...string) (Demangler, error) {
	opts, err := parseOptions(options)
	if err != nil {
		return Demangler{}, err
	}
	return Demangler{options: opts}, nil
}

// Demangle returns the demangled form of name, or name itself.
func (d Demangler) Demangle(name string) string {
	return demangle.Filter(name, d.options...)
}
