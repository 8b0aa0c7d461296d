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

// Package transform rewrites a thread's stack table. Every transform builds
// a new stack table in a single pass over the old one, relying on prefixes
// preceding their stacks, and remaps samples, allocations and marker cause
// stacks through the resulting old to new stack mapping.
package transform

import (
	"errors"
	"fmt"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

var ErrInvalidTransform = errors.New("invalid transform")

type Kind string

const (
	KindFocusSubtree            Kind = "focus-subtree"
	KindFocusFunction           Kind = "focus-function"
	KindMergeCallNode           Kind = "merge-call-node"
	KindMergeFunction           Kind = "merge-function"
	KindDropFunction            Kind = "drop-function"
	KindCollapseResource        Kind = "collapse-resource"
	KindCollapseDirectRecursion Kind = "collapse-direct-recursion"
	KindCollapseFunctionSubtree Kind = "collapse-function-subtree"
	KindCollapseRecursion       Kind = "collapse-recursion"
)

// Transform is one of the structs below. Values are immutable once pushed
// on a Stack.
type Transform interface {
	Kind() Kind
}

// Stack is an ordered list of transforms, applied first to last.
type Stack []Transform

// FocusSubtree keeps only the samples below CallNodePath and makes the
// path's last function the root. For inverted trees the path starts at a
// leaf function and samples are cut at the path's last function instead.
type FocusSubtree struct {
	CallNodePath   callnode.Path
	Implementation profile.Implementation
	Inverted       bool
}

// FocusFunction re-roots every stack at its first call to FuncIndex and
// drops the samples that never call it.
type FocusFunction struct {
	FuncIndex int
}

// MergeCallNode removes the last call node of CallNodePath from the tree,
// attributing its self time to its parent.
type MergeCallNode struct {
	CallNodePath   callnode.Path
	Implementation profile.Implementation
}

// MergeFunction removes every frame of FuncIndex.
type MergeFunction struct {
	FuncIndex int
}

// DropFunction removes every sample that has FuncIndex on its stack.
type DropFunction struct {
	FuncIndex int
}

// CollapseResource replaces every run of consecutive frames from
// ResourceIndex with a single frame of a new function named after the
// resource. CollapsedFuncIndex is the index that function gets, which is the
// function count of the thread the transform is applied to.
type CollapseResource struct {
	ResourceIndex      int
	CollapsedFuncIndex int
	Implementation     profile.Implementation
}

// CollapseDirectRecursion folds FuncIndex calling itself into one frame.
// Frames hidden by Implementation do not break the recursion.
type CollapseDirectRecursion struct {
	FuncIndex      int
	Implementation profile.Implementation
}

// CollapseFunctionSubtree attributes everything below FuncIndex to it.
type CollapseFunctionSubtree struct {
	FuncIndex int
}

// CollapseRecursion folds every call to FuncIndex below an outer call to it
// into the outer call, dropping the frames in between.
type CollapseRecursion struct {
	FuncIndex int
}

func (FocusSubtree) Kind() Kind            { return KindFocusSubtree }
func (FocusFunction) Kind() Kind           { return KindFocusFunction }
func (MergeCallNode) Kind() Kind           { return KindMergeCallNode }
func (MergeFunction) Kind() Kind           { return KindMergeFunction }
func (DropFunction) Kind() Kind            { return KindDropFunction }
func (CollapseResource) Kind() Kind        { return KindCollapseResource }
func (CollapseDirectRecursion) Kind() Kind { return KindCollapseDirectRecursion }
func (CollapseFunctionSubtree) Kind() Kind { return KindCollapseFunctionSubtree }
func (CollapseRecursion) Kind() Kind       { return KindCollapseRecursion }

// NewCollapseResource returns the collapse-resource transform for thread,
// which must be the thread the transform will be applied to.
func NewCollapseResource(thread *profile.Thread, resourceIndex int, impl profile.Implementation) CollapseResource {
	return CollapseResource{
		ResourceIndex:      resourceIndex,
		CollapsedFuncIndex: thread.FuncTable.Len(),
		Implementation:     impl,
	}
}

// Apply returns a new thread with t applied. The input thread is not
// modified. Transforms referencing functions or resources the thread does
// not have return ErrInvalidTransform.
func Apply(thread *profile.Thread, t Transform, defaultCategory int) (*profile.Thread, error) {
	if err := validate(thread, t); err != nil {
		return nil, err
	}

	switch t := t.(type) {
	case FocusSubtree:
		if t.Inverted {
			return focusInvertedSubtree(thread, t.CallNodePath, t.Implementation), nil
		}
		return focusSubtree(thread, t.CallNodePath, t.Implementation, defaultCategory), nil
	case FocusFunction:
		return focusFunction(thread, t.FuncIndex, defaultCategory), nil
	case MergeCallNode:
		return mergeCallNode(thread, t.CallNodePath, t.Implementation, defaultCategory), nil
	case MergeFunction:
		return mergeFunction(thread, t.FuncIndex, defaultCategory), nil
	case DropFunction:
		return dropFunction(thread, t.FuncIndex, defaultCategory), nil
	case CollapseResource:
		return collapseResource(thread, t.ResourceIndex, defaultCategory), nil
	case CollapseDirectRecursion:
		return collapseDirectRecursion(thread, t.FuncIndex, t.Implementation, defaultCategory), nil
	case CollapseFunctionSubtree:
		return collapseFunctionSubtree(thread, t.FuncIndex, defaultCategory), nil
	case CollapseRecursion:
		return collapseRecursion(thread, t.FuncIndex, defaultCategory), nil
	default:
		panic(fmt.Sprintf("transform: unhandled transform %T", t))
	}
}

// ApplyStack applies every transform of stack in order.
func ApplyStack(thread *profile.Thread, stack Stack, defaultCategory int) (*profile.Thread, error) {
	for i, t := range stack {
		var err error
		thread, err = Apply(thread, t, defaultCategory)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, t.Kind(), err)
		}
	}
	return thread, nil
}

func validate(thread *profile.Thread, t Transform) error {
	funcs := thread.FuncTable.Len()
	checkFunc := func(f int) error {
		if f < 0 || f >= funcs {
			return fmt.Errorf("%w: %s references function %d, thread %q has %d", ErrInvalidTransform, t.Kind(), f, thread.Name, funcs)
		}
		return nil
	}
	checkPath := func(path callnode.Path) error {
		for _, f := range path {
			if err := checkFunc(f); err != nil {
				return err
			}
		}
		return nil
	}
	checkImpl := func(impl profile.Implementation) error {
		if _, err := profile.ParseImplementation(string(impl)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTransform, err)
		}
		return nil
	}

	switch t := t.(type) {
	case FocusSubtree:
		if len(t.CallNodePath) == 0 {
			return fmt.Errorf("%w: %s with an empty call node path", ErrInvalidTransform, t.Kind())
		}
		if err := checkImpl(t.Implementation); err != nil {
			return err
		}
		return checkPath(t.CallNodePath)
	case MergeCallNode:
		if len(t.CallNodePath) == 0 {
			return fmt.Errorf("%w: %s with an empty call node path", ErrInvalidTransform, t.Kind())
		}
		if err := checkImpl(t.Implementation); err != nil {
			return err
		}
		return checkPath(t.CallNodePath)
	case FocusFunction:
		return checkFunc(t.FuncIndex)
	case MergeFunction:
		return checkFunc(t.FuncIndex)
	case DropFunction:
		return checkFunc(t.FuncIndex)
	case CollapseFunctionSubtree:
		return checkFunc(t.FuncIndex)
	case CollapseRecursion:
		return checkFunc(t.FuncIndex)
	case CollapseDirectRecursion:
		if err := checkImpl(t.Implementation); err != nil {
			return err
		}
		return checkFunc(t.FuncIndex)
	case CollapseResource:
		if r := t.ResourceIndex; r < 0 || r >= thread.ResourceTable.Len() {
			return fmt.Errorf("%w: %s references resource %d, thread %q has %d", ErrInvalidTransform, t.Kind(), r, thread.Name, thread.ResourceTable.Len())
		}
		if t.CollapsedFuncIndex != funcs {
			return fmt.Errorf("%w: %s expects collapsed function %d, thread %q has %d functions", ErrInvalidTransform, t.Kind(), t.CollapsedFuncIndex, thread.Name, funcs)
		}
		return checkImpl(t.Implementation)
	}
	return nil
}
