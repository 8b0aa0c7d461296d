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
	"github.com/parca-dev/stackgraph/pkg/profile"
)

type stackKey struct {
	prefix int
	frame  int
}

// stackBuilder appends rows to a new stack table. Rows with the same prefix
// and frame are deduplicated and their categories merged.
type stackBuilder struct {
	old             *profile.StackTable
	table           profile.StackTable
	index           map[stackKey]int
	oldToNew        []int
	defaultCategory int
}

func newStackBuilder(old *profile.StackTable, defaultCategory int) *stackBuilder {
	oldToNew := make([]int, old.Len())
	for i := range oldToNew {
		oldToNew[i] = profile.NoStack
	}
	return &stackBuilder{
		old:             old,
		table:           profile.NewStackTable(old.Len()),
		index:           make(map[stackKey]int, old.Len()),
		oldToNew:        oldToNew,
		defaultCategory: defaultCategory,
	}
}

func (b *stackBuilder) add(frame, prefix, category, subcategory int) int {
	k := stackKey{prefix: prefix, frame: frame}
	if i, ok := b.index[k]; ok {
		b.table.MergeCategory(i, category, subcategory, b.defaultCategory)
		return i
	}
	i := b.table.Append(frame, prefix, category, subcategory)
	b.index[k] = i
	return i
}

// keep copies old stack s below newPrefix and maps s to the copy.
func (b *stackBuilder) keep(s, newPrefix int) int {
	n := b.add(b.old.Frame[s], newPrefix, b.old.Category[s], b.old.Subcategory[s])
	b.oldToNew[s] = n
	return n
}

// keepUnderPrefix keeps s below whatever its prefix maps to.
func (b *stackBuilder) keepUnderPrefix(s int) int {
	return b.keep(s, b.newPrefix(s))
}

// newPrefix returns what the prefix of old stack s maps to.
func (b *stackBuilder) newPrefix(s int) int {
	p := b.old.Prefix[s]
	if p == profile.NoStack {
		return profile.NoStack
	}
	return b.oldToNew[p]
}

func (b *stackBuilder) thread(t *profile.Thread) *profile.Thread {
	oldToNew := b.oldToNew
	return t.WithStacks(b.table, func(s int) int {
		if s == profile.NoStack {
			return profile.NoStack
		}
		return oldToNew[s]
	})
}

func focusSubtree(thread *profile.Thread, path []int, impl profile.Implementation, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)

	// Number of path functions matched by every stack, or -1 once a stack
	// diverged from the path.
	matched := make([]int, st.Len())
	for s := 0; s < st.Len(); s++ {
		prefixMatched := 0
		if p := st.Prefix[s]; p != profile.NoStack {
			prefixMatched = matched[p]
		}
		fn := thread.StackFunc(s)

		switch {
		case prefixMatched == -1:
			matched[s] = -1
		case prefixMatched == len(path):
			matched[s] = prefixMatched
			b.keepUnderPrefix(s)
		case fn == path[prefixMatched]:
			matched[s] = prefixMatched + 1
			if matched[s] == len(path) {
				b.keep(s, profile.NoStack)
			}
		case !profile.FuncMatchesImplementation(thread, fn, impl):
			matched[s] = prefixMatched
		default:
			matched[s] = -1
		}
	}
	return b.thread(thread)
}

// focusInvertedSubtree keeps the stack table and cuts every sample's stack
// at the caller-most function of path, which is matched leaf first.
func focusInvertedSubtree(thread *profile.Thread, path []int, impl profile.Implementation) *profile.Thread {
	st := &thread.StackTable
	cut := func(leaf int) int {
		depth := 0
		for s := leaf; s != profile.NoStack; s = st.Prefix[s] {
			fn := thread.StackFunc(s)
			if fn == path[depth] {
				depth++
				if depth == len(path) {
					return s
				}
			} else if profile.FuncMatchesImplementation(thread, fn, impl) {
				return profile.NoStack
			}
		}
		return profile.NoStack
	}

	cache := make(map[int]int)
	return thread.WithStacks(thread.StackTable, func(s int) int {
		if s == profile.NoStack {
			return profile.NoStack
		}
		if n, ok := cache[s]; ok {
			return n
		}
		n := cut(s)
		cache[s] = n
		return n
	})
}

func focusFunction(thread *profile.Thread, funcIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)
	for s := 0; s < st.Len(); s++ {
		newPrefix := b.newPrefix(s)
		if newPrefix != profile.NoStack || thread.StackFunc(s) == funcIndex {
			b.keep(s, newPrefix)
		}
	}
	return b.thread(thread)
}

func mergeCallNode(thread *profile.Thread, path []int, impl profile.Implementation, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)
	leafDepth := len(path) - 1

	// depth is the index of the deepest path function matched so far,
	// onPath whether the stack still follows the path.
	depth := make([]int, st.Len())
	onPath := make([]bool, st.Len())
	for s := 0; s < st.Len(); s++ {
		prefixOnPath := true
		prefixDepth := -1
		if p := st.Prefix[s]; p != profile.NoStack {
			prefixOnPath = onPath[p]
			prefixDepth = depth[p]
		}
		fn := thread.StackFunc(s)

		merge := false
		depth[s] = prefixDepth
		if prefixOnPath && prefixDepth < leafDepth {
			switch {
			case fn == path[prefixDepth+1]:
				if prefixDepth == leafDepth-1 {
					merge = true
				} else {
					depth[s]++
				}
				onPath[s] = true
			case !profile.FuncMatchesImplementation(thread, fn, impl):
				onPath[s] = true
			}
		}

		if merge {
			b.oldToNew[s] = b.newPrefix(s)
			continue
		}
		b.keepUnderPrefix(s)
	}
	return b.thread(thread)
}

func mergeFunction(thread *profile.Thread, funcIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)
	for s := 0; s < st.Len(); s++ {
		if thread.StackFunc(s) == funcIndex {
			b.oldToNew[s] = b.newPrefix(s)
			continue
		}
		b.keepUnderPrefix(s)
	}
	return b.thread(thread)
}

func dropFunction(thread *profile.Thread, funcIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)
	dropped := make([]bool, st.Len())
	for s := 0; s < st.Len(); s++ {
		p := st.Prefix[s]
		if (p != profile.NoStack && dropped[p]) || thread.StackFunc(s) == funcIndex {
			dropped[s] = true
			continue
		}
		b.keepUnderPrefix(s)
	}
	return b.thread(thread)
}

func collapseResource(thread *profile.Thread, resourceIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)

	funcs := thread.FuncTable.Clone()
	frames := thread.FrameTable.Clone()
	collapsedFunc := funcs.Append(profile.Func{
		Name:         thread.ResourceTable.Name[resourceIndex],
		Resource:     resourceIndex,
		FileName:     profile.Null,
		LineNumber:   profile.Null,
		ColumnNumber: profile.Null,
	})
	collapsedFrame := profile.Null

	// New stacks that are collapsed frames.
	collapsed := make(map[int]bool)
	for s := 0; s < st.Len(); s++ {
		if thread.FuncTable.Resource[thread.StackFunc(s)] != resourceIndex {
			b.keepUnderPrefix(s)
			continue
		}

		newPrefix := b.newPrefix(s)
		if newPrefix != profile.NoStack && collapsed[newPrefix] {
			b.oldToNew[s] = newPrefix
			continue
		}
		if collapsedFrame == profile.Null {
			collapsedFrame = frames.Append(profile.Frame{
				Address:     profile.Null,
				Category:    profile.Null,
				Subcategory: profile.Null,
				Func:        collapsedFunc,
				Line:        profile.Null,
				Column:      profile.Null,
			})
		}
		n := b.add(collapsedFrame, newPrefix, st.Category[s], st.Subcategory[s])
		b.oldToNew[s] = n
		collapsed[n] = true
	}

	res := b.thread(thread)
	res.FuncTable = funcs
	res.FrameTable = frames
	return res
}

func collapseDirectRecursion(thread *profile.Thread, funcIndex int, impl profile.Implementation, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)

	// For stacks inside a recursion of funcIndex, the old stack the next
	// direct recursive call collapses into.
	chain := make(map[int]int)
	for s := 0; s < st.Len(); s++ {
		prefixChain, inChain := chain[st.Prefix[s]]
		fn := thread.StackFunc(s)

		switch {
		case fn == funcIndex && inChain:
			b.oldToNew[s] = b.oldToNew[prefixChain]
			chain[s] = prefixChain
			continue
		case fn == funcIndex:
			chain[s] = s
		case inChain && !profile.FuncMatchesImplementation(thread, fn, impl):
			chain[s] = s
		}
		b.keepUnderPrefix(s)
	}
	return b.thread(thread)
}

func collapseFunctionSubtree(thread *profile.Thread, funcIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)

	// Old stacks at or below a collapsed call, mapped to its new stack.
	collapsedInto := make(map[int]int)
	for s := 0; s < st.Len(); s++ {
		if p := st.Prefix[s]; p != profile.NoStack {
			if n, ok := collapsedInto[p]; ok {
				collapsedInto[s] = n
				b.oldToNew[s] = n
				continue
			}
		}
		n := b.keepUnderPrefix(s)
		if thread.StackFunc(s) == funcIndex {
			collapsedInto[s] = n
		}
	}
	return b.thread(thread)
}

func collapseRecursion(thread *profile.Thread, funcIndex, defaultCategory int) *profile.Thread {
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)

	// Old stacks at or below a call to funcIndex, mapped to the new stack of
	// the outermost such call.
	outermost := make(map[int]int)
	for s := 0; s < st.Len(); s++ {
		outer, inside := profile.NoStack, false
		if p := st.Prefix[s]; p != profile.NoStack {
			outer, inside = outermost[p]
		}

		if thread.StackFunc(s) == funcIndex {
			if inside {
				b.oldToNew[s] = outer
				outermost[s] = outer
				continue
			}
			outermost[s] = b.keepUnderPrefix(s)
			continue
		}
		b.keepUnderPrefix(s)
		if inside {
			outermost[s] = outer
		}
	}
	return b.thread(thread)
}

// FilterByImplementation removes the frames of every function impl hides,
// attributing their time to the closest visible caller. Siblings that end
// up with the same frame are merged.
func FilterByImplementation(thread *profile.Thread, impl profile.Implementation, defaultCategory int) *profile.Thread {
	if impl == profile.ImplementationCombined || impl == "" {
		return thread
	}
	st := &thread.StackTable
	b := newStackBuilder(st, defaultCategory)
	for s := 0; s < st.Len(); s++ {
		if !profile.FuncMatchesImplementation(thread, thread.StackFunc(s), impl) {
			b.oldToNew[s] = b.newPrefix(s)
			continue
		}
		b.keepUnderPrefix(s)
	}
	return b.thread(thread)
}
