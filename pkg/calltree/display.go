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

package calltree

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/parca-dev/stackgraph/pkg/profile"
)

// DisplayData is the formatted form of a call node, as shown in a call tree
// panel.
type DisplayData struct {
	Name          string
	Lib           string
	IsFrameLabel  bool
	CategoryName  string
	CategoryColor string
	Total         string
	TotalWithUnit string
	TotalPercent  string
	Self          string
	SelfWithUnit  string
}

const noValue = "-"

func (t *Tree) DisplayData(node int) DisplayData {
	data := t.NodeData(node)
	funcIndex := t.table.Func[node]

	res := DisplayData{
		Name:          t.demangler.Demangle(data.FuncName),
		Total:         t.formatNumber(data.Total),
		TotalWithUnit: t.formatWithUnit(data.Total),
		TotalPercent:  humanize.FtoaWithDigits(data.TotalRelative*100, 1) + "%",
		Self:          noValue,
		SelfWithUnit:  noValue,
	}
	if data.Self != 0 {
		res.Self = t.formatNumber(data.Self)
		res.SelfWithUnit = t.formatWithUnit(data.Self)
	}

	resource := t.thread.FuncTable.Resource[funcIndex]
	res.IsFrameLabel = resource == profile.NoResource
	if !res.IsFrameLabel {
		res.Lib = t.thread.StringTable.GetString(t.thread.ResourceTable.Name[resource])
	}

	if c := t.table.Category[node]; c >= 0 && c < len(t.categories) {
		res.CategoryName = t.categories[c].Name
		res.CategoryColor = t.categories[c].Color
		if sub := t.table.Subcategory[node]; sub > 0 && sub < len(t.categories[c].Subcategories) {
			res.CategoryName += ": " + t.categories[c].Subcategories[sub]
		}
	}

	return res
}

func (t *Tree) formatNumber(v float64) string {
	switch t.weightType {
	case profile.WeightTypeSamples:
		return humanize.CommafWithDigits(v, 0)
	case profile.WeightTypeTracingMs:
		return humanize.CommafWithDigits(v, 1)
	case profile.WeightTypeBytes:
		return humanize.CommafWithDigits(v, 0)
	default:
		panic(fmt.Sprintf("calltree: unhandled weight type %q", t.weightType))
	}
}

func (t *Tree) formatWithUnit(v float64) string {
	switch t.weightType {
	case profile.WeightTypeSamples:
		if math.Abs(v) == 1 {
			return t.formatNumber(v) + " sample"
		}
		return t.formatNumber(v) + " samples"
	case profile.WeightTypeTracingMs:
		return t.formatNumber(v) + "ms"
	case profile.WeightTypeBytes:
		sign := ""
		if v < 0 {
			sign = "-"
		}
		return sign + humanize.IBytes(uint64(math.Abs(v)))
	default:
		panic(fmt.Sprintf("calltree: unhandled weight type %q", t.weightType))
	}
}
