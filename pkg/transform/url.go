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

package transform

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dennwc/varint"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

const (
	paramSeparator     = "-"
	transformSeparator = "~"
	threadSeparator    = ";"
	threadKeySeparator = ":"
	invertedFlag       = "i"
)

var (
	kindToShortKey = map[Kind]string{
		KindFocusSubtree:            "f",
		KindFocusFunction:           "ff",
		KindMergeCallNode:           "mcn",
		KindMergeFunction:           "mf",
		KindDropFunction:            "df",
		KindCollapseResource:        "cr",
		KindCollapseDirectRecursion: "drec",
		KindCollapseFunctionSubtree: "cfs",
		KindCollapseRecursion:       "rec",
	}
	shortKeyToKind = func() map[string]Kind {
		m := make(map[string]Kind, len(kindToShortKey))
		for k, v := range kindToShortKey {
			m[v] = k
		}
		return m
	}()

	// Base32hex only uses [0-9a-v] once lowercased, so encoded paths never
	// contain a separator.
	pathEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)
)

// ThreadsKey identifies the thread selection a transform stack belongs to,
// for example "0" or "1,3" for merged threads.
type ThreadsKey string

// Stringify encodes stack for use in a URL query parameter.
func Stringify(stack Stack) string {
	parts := make([]string, 0, len(stack))
	for _, t := range stack {
		parts = append(parts, stringifyTransform(t))
	}
	return strings.Join(parts, transformSeparator)
}

func stringifyTransform(t Transform) string {
	key, ok := kindToShortKey[t.Kind()]
	if !ok {
		panic(fmt.Sprintf("transform: unhandled transform kind %q", t.Kind()))
	}

	params := []string{key}
	switch t := t.(type) {
	case FocusSubtree:
		params = append(params, implementationParam(t.Implementation), EncodePath(t.CallNodePath))
		if t.Inverted {
			params = append(params, invertedFlag)
		}
	case MergeCallNode:
		params = append(params, implementationParam(t.Implementation), EncodePath(t.CallNodePath))
	case FocusFunction:
		params = append(params, strconv.Itoa(t.FuncIndex))
	case MergeFunction:
		params = append(params, strconv.Itoa(t.FuncIndex))
	case DropFunction:
		params = append(params, strconv.Itoa(t.FuncIndex))
	case CollapseFunctionSubtree:
		params = append(params, strconv.Itoa(t.FuncIndex))
	case CollapseRecursion:
		params = append(params, strconv.Itoa(t.FuncIndex))
	case CollapseDirectRecursion:
		params = append(params, implementationParam(t.Implementation), strconv.Itoa(t.FuncIndex))
	case CollapseResource:
		params = append(params,
			implementationParam(t.Implementation),
			strconv.Itoa(t.ResourceIndex),
			strconv.Itoa(t.CollapsedFuncIndex),
		)
	default:
		panic(fmt.Sprintf("transform: unhandled transform %T", t))
	}
	return strings.Join(params, paramSeparator)
}

func implementationParam(impl profile.Implementation) string {
	if impl == "" {
		return string(profile.ImplementationCombined)
	}
	return string(impl)
}

// Parse decodes a stack produced by Stringify. The empty string is the
// empty stack.
func Parse(s string) (Stack, error) {
	if s == "" {
		return Stack{}, nil
	}
	parts := strings.Split(s, transformSeparator)
	stack := make(Stack, 0, len(parts))
	for _, part := range parts {
		t, err := parseTransform(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTransform, part, err)
		}
		stack = append(stack, t)
	}
	return stack, nil
}

func parseTransform(s string) (Transform, error) {
	params := strings.Split(s, paramSeparator)
	kind, ok := shortKeyToKind[params[0]]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", params[0])
	}
	args := params[1:]
	want := map[Kind][]int{
		KindFocusSubtree:            {2, 3},
		KindMergeCallNode:           {2},
		KindCollapseResource:        {3},
		KindCollapseDirectRecursion: {2},
	}[kind]
	if want == nil {
		want = []int{1}
	}
	if !containsInt(want, len(args)) {
		return nil, fmt.Errorf("%s takes %v parameters, got %d", kind, want, len(args))
	}

	switch kind {
	case KindFocusSubtree:
		impl, path, err := parseImplementationAndPath(args[0], args[1])
		if err != nil {
			return nil, err
		}
		t := FocusSubtree{CallNodePath: path, Implementation: impl}
		if len(args) == 3 {
			if args[2] != invertedFlag {
				return nil, fmt.Errorf("unknown flag %q", args[2])
			}
			t.Inverted = true
		}
		return t, nil
	case KindMergeCallNode:
		impl, path, err := parseImplementationAndPath(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return MergeCallNode{CallNodePath: path, Implementation: impl}, nil
	case KindCollapseResource:
		impl, err := profile.ParseImplementation(args[0])
		if err != nil {
			return nil, err
		}
		resource, err := parseIndex(args[1])
		if err != nil {
			return nil, err
		}
		collapsed, err := parseIndex(args[2])
		if err != nil {
			return nil, err
		}
		return CollapseResource{ResourceIndex: resource, CollapsedFuncIndex: collapsed, Implementation: impl}, nil
	case KindCollapseDirectRecursion:
		impl, err := profile.ParseImplementation(args[0])
		if err != nil {
			return nil, err
		}
		f, err := parseIndex(args[1])
		if err != nil {
			return nil, err
		}
		return CollapseDirectRecursion{FuncIndex: f, Implementation: impl}, nil
	}

	f, err := parseIndex(args[0])
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindFocusFunction:
		return FocusFunction{FuncIndex: f}, nil
	case KindMergeFunction:
		return MergeFunction{FuncIndex: f}, nil
	case KindDropFunction:
		return DropFunction{FuncIndex: f}, nil
	case KindCollapseFunctionSubtree:
		return CollapseFunctionSubtree{FuncIndex: f}, nil
	case KindCollapseRecursion:
		return CollapseRecursion{FuncIndex: f}, nil
	default:
		panic(fmt.Sprintf("transform: unhandled transform kind %q", kind))
	}
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func parseImplementationAndPath(implParam, pathParam string) (profile.Implementation, callnode.Path, error) {
	impl, err := profile.ParseImplementation(implParam)
	if err != nil {
		return "", nil, err
	}
	path, err := DecodePath(pathParam)
	if err != nil {
		return "", nil, err
	}
	if len(path) == 0 {
		return "", nil, errors.New("empty call node path")
	}
	return impl, path, nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if i < 0 {
		return 0, fmt.Errorf("negative index %d", i)
	}
	return i, nil
}

// EncodePath packs the function indexes of path as uvarints and encodes
// them as lowercase unpadded base32hex.
func EncodePath(path callnode.Path) string {
	buf := make([]byte, 0, len(path)*2)
	for _, f := range path {
		buf = binary.AppendUvarint(buf, uint64(f))
	}
	return strings.ToLower(pathEncoding.EncodeToString(buf))
}

func DecodePath(s string) (callnode.Path, error) {
	buf, err := pathEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return nil, fmt.Errorf("decode call node path %q: %w", s, err)
	}
	path := callnode.Path{}
	for len(buf) > 0 {
		f, n := varint.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("decode call node path %q: truncated function index", s)
		}
		path = append(path, int(f))
		buf = buf[n:]
	}
	return path, nil
}

// StringifyPerThread encodes one stack per thread selection, ordered by key.
// Empty stacks are omitted.
func StringifyPerThread(stacks map[ThreadsKey]Stack) string {
	keys := make([]string, 0, len(stacks))
	for k, stack := range stacks {
		if len(stack) > 0 {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+threadKeySeparator+Stringify(stacks[ThreadsKey(k)]))
	}
	return strings.Join(parts, threadSeparator)
}

func ParsePerThread(s string) (map[ThreadsKey]Stack, error) {
	res := map[ThreadsKey]Stack{}
	if s == "" {
		return res, nil
	}
	for _, part := range strings.Split(s, threadSeparator) {
		key, encoded, ok := strings.Cut(part, threadKeySeparator)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q has no threads key", ErrInvalidTransform, part)
		}
		if _, ok := res[ThreadsKey(key)]; ok {
			return nil, fmt.Errorf("%w: duplicate threads key %q", ErrInvalidTransform, key)
		}
		stack, err := Parse(encoded)
		if err != nil {
			return nil, fmt.Errorf("threads %s: %w", key, err)
		}
		res[ThreadsKey(key)] = stack
	}
	return res, nil
}
