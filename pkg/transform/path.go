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

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/profile"
)

// ApplyToCallNodePath rewrites a call node path of thread so that it
// addresses the same call node after t is applied to thread. An empty path
// means the node does not exist anymore.
func ApplyToCallNodePath(t Transform, path callnode.Path, thread *profile.Thread) callnode.Path {
	switch t := t.(type) {
	case FocusSubtree:
		if !path.HasPrefix(t.CallNodePath) {
			return callnode.Path{}
		}
		return clonePath(path[len(t.CallNodePath)-1:])
	case FocusFunction:
		for i, f := range path {
			if f == t.FuncIndex {
				return clonePath(path[i:])
			}
		}
		return callnode.Path{}
	case MergeCallNode:
		if !path.HasPrefix(t.CallNodePath) {
			return clonePath(path)
		}
		res := make(callnode.Path, 0, len(path)-1)
		res = append(res, path[:len(t.CallNodePath)-1]...)
		return append(res, path[len(t.CallNodePath):]...)
	case MergeFunction:
		res := make(callnode.Path, 0, len(path))
		for _, f := range path {
			if f != t.FuncIndex {
				res = append(res, f)
			}
		}
		return res
	case DropFunction:
		for _, f := range path {
			if f == t.FuncIndex {
				return callnode.Path{}
			}
		}
		return clonePath(path)
	case CollapseResource:
		res := make(callnode.Path, 0, len(path))
		inResource := false
		for _, f := range path {
			if thread.FuncTable.Resource[f] == t.ResourceIndex {
				if !inResource {
					res = append(res, t.CollapsedFuncIndex)
				}
				inResource = true
				continue
			}
			inResource = false
			res = append(res, f)
		}
		return res
	case CollapseDirectRecursion:
		res := make(callnode.Path, 0, len(path))
		previous := callnode.None
		for _, f := range path {
			if f != t.FuncIndex || f != previous {
				res = append(res, f)
			}
			if profile.FuncMatchesImplementation(thread, f, t.Implementation) {
				previous = f
			}
		}
		return res
	case CollapseFunctionSubtree:
		for i, f := range path {
			if f == t.FuncIndex {
				return clonePath(path[:i+1])
			}
		}
		return clonePath(path)
	case CollapseRecursion:
		res := make(callnode.Path, 0, len(path))
		outer := -1
		for _, f := range path {
			if f == t.FuncIndex {
				if outer != -1 {
					res = res[:outer+1]
					continue
				}
				outer = len(res)
			}
			res = append(res, f)
		}
		return res
	default:
		panic(fmt.Sprintf("transform: unhandled transform %T", t))
	}
}

func clonePath(p callnode.Path) callnode.Path {
	return append(callnode.Path{}, p...)
}
