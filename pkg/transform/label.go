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
	"fmt"

	"github.com/parca-dev/stackgraph/pkg/profile"
)

// Label returns a short description of t for breadcrumbs. Function and
// resource names are looked up in thread.
func Label(thread *profile.Thread, t Transform) string {
	switch t := t.(type) {
	case FocusSubtree:
		name := "?"
		if len(t.CallNodePath) > 0 {
			name = funcName(thread, t.CallNodePath[len(t.CallNodePath)-1])
		}
		if t.Inverted {
			return "Focus Node (inverted): " + name
		}
		return "Focus Node: " + name
	case FocusFunction:
		return "Focus: " + funcName(thread, t.FuncIndex)
	case MergeCallNode:
		name := "?"
		if len(t.CallNodePath) > 0 {
			name = funcName(thread, t.CallNodePath[len(t.CallNodePath)-1])
		}
		return "Merge Node: " + name
	case MergeFunction:
		return "Merge: " + funcName(thread, t.FuncIndex)
	case DropFunction:
		return "Drop: " + funcName(thread, t.FuncIndex)
	case CollapseResource:
		name := fmt.Sprintf("resource %d", t.ResourceIndex)
		if t.ResourceIndex >= 0 && t.ResourceIndex < thread.ResourceTable.Len() {
			name = thread.StringTable.GetString(thread.ResourceTable.Name[t.ResourceIndex])
		}
		return "Collapse: " + name
	case CollapseDirectRecursion:
		return "Collapse direct recursion only: " + funcName(thread, t.FuncIndex)
	case CollapseFunctionSubtree:
		return "Collapse: " + funcName(thread, t.FuncIndex)
	case CollapseRecursion:
		return "Collapse recursion: " + funcName(thread, t.FuncIndex)
	default:
		panic(fmt.Sprintf("transform: unhandled transform %T", t))
	}
}

// Labels returns the breadcrumb of stack, starting with the untransformed
// thread. Transforms only ever add functions, so thread may be the result
// of applying stack.
func Labels(thread *profile.Thread, stack Stack) []string {
	res := make([]string, 0, len(stack)+1)
	res = append(res, fmt.Sprintf("Complete %q", thread.Name))
	for _, t := range stack {
		res = append(res, Label(thread, t))
	}
	return res
}

func funcName(thread *profile.Thread, f int) string {
	if f < 0 || f >= thread.FuncTable.Len() {
		return fmt.Sprintf("function %d", f)
	}
	return thread.FuncName(f)
}
