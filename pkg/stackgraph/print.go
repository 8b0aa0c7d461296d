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

package stackgraph

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/olekukonko/tablewriter"

	"github.com/parca-dev/stackgraph/pkg/callnode"
	"github.com/parca-dev/stackgraph/pkg/calltree"
	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/stacktiming"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// PrintCallTree prints the call nodes of t up to maxDepth as a table, one
// row per node with the function name indented by depth.
func PrintCallTree(w io.Writer, t *calltree.Tree, maxDepth int) {
	table := newTable(w, "TOTAL", "%", "SELF", "CATEGORY", "FUNCTION")
	t.Walk(func(node, depth int) bool {
		d := t.DisplayData(node)
		name := d.Name
		if d.Lib != "" {
			name += " [" + d.Lib + "]"
		}
		table.Append([]string{d.TotalWithUnit, d.TotalPercent, d.Self, d.CategoryName, strings.Repeat("  ", depth) + name})
		return depth < maxDepth
	})
	table.Render()
}

// DrawCallTree draws the call nodes of t up to maxDepth below a root node
// named after the thread.
func DrawCallTree(w io.Writer, t *calltree.Tree, maxDepth int) error {
	root := tree.NewTree(tree.NodeString(t.Thread().Name))
	var add func(parent *tree.Tree, node int)
	add = func(parent *tree.Tree, node int) {
		d := t.DisplayData(node)
		child := parent.AddChild(tree.NodeString(fmt.Sprintf("%s (%s)", d.Name, d.TotalPercent)))
		if t.Depth(node) >= maxDepth {
			return
		}
		for _, c := range t.Children(node) {
			add(child, c)
		}
	}
	for _, r := range t.Roots() {
		add(root, r)
	}
	_, err := fmt.Fprintln(w, root)
	return err
}

// PrintStackTiming prints one row per depth with its boxes as
// name[start,end) pairs.
func PrintStackTiming(w io.Writer, t *profile.Thread, info *callnode.Info, timing stacktiming.Timing) {
	table := newTable(w, "DEPTH", "BOXES", "INTERVALS")
	funcs := info.Table().Func
	for depth, row := range timing {
		boxes := make([]string, 0, row.Len())
		for i := 0; i < row.Len(); i++ {
			boxes = append(boxes, fmt.Sprintf("%s[%s,%s)",
				t.FuncName(funcs[row.CallNode[i]]),
				strconv.FormatFloat(row.Start[i], 'f', -1, 64),
				strconv.FormatFloat(row.End[i], 'f', -1, 64),
			))
		}
		table.Append([]string{strconv.Itoa(depth), strconv.Itoa(row.Len()), strings.Join(boxes, " ")})
	}
	table.Render()
}

// PrintTransforms prints every transform of stack in its URL form. Labels
// are printed next to them if there is one per transform.
func PrintTransforms(w io.Writer, stack transform.Stack, labels []string) {
	header := []string{"#", "KIND", "URL"}
	if len(labels) == len(stack) && len(labels) > 0 {
		header = append(header, "LABEL")
	} else {
		labels = nil
	}

	table := newTable(w, header...)
	for i, t := range stack {
		row := []string{strconv.Itoa(i), string(t.Kind()), transform.Stringify(transform.Stack{t})}
		if labels != nil {
			row = append(row, labels[i])
		}
		table.Append(row)
	}
	table.Render()
}
