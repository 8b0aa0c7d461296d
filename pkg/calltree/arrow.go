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
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/parca-dev/stackgraph/pkg/callnode"
)

const (
	FieldCallNode     = "call_node"
	FieldParent       = "parent"
	FieldDepth        = "depth"
	FieldFunctionName = "function_name"
	FieldLib          = "lib"
	FieldTotal        = "total"
	FieldSelf         = "self"
)

func ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: FieldCallNode, Type: arrow.PrimitiveTypes.Int64},
		{Name: FieldParent, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: FieldDepth, Type: arrow.PrimitiveTypes.Int32},
		{Name: FieldFunctionName, Type: &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Uint32, ValueType: arrow.BinaryTypes.String}},
		{Name: FieldLib, Type: &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Uint16, ValueType: arrow.BinaryTypes.String}, Nullable: true},
		{Name: FieldTotal, Type: arrow.PrimitiveTypes.Float64},
		{Name: FieldSelf, Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

// WriteArrow flattens the tree into a record with one row per visible call
// node, in the pre-order of Walk. The caller must release the record.
func WriteArrow(mem memory.Allocator, t *Tree) (arrow.RecordBatch, error) {
	schema := ArrowSchema()
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()

	builderCallNode := rb.Field(schema.FieldIndices(FieldCallNode)[0]).(*array.Int64Builder)
	builderParent := rb.Field(schema.FieldIndices(FieldParent)[0]).(*array.Int64Builder)
	builderDepth := rb.Field(schema.FieldIndices(FieldDepth)[0]).(*array.Int32Builder)
	builderFunctionName := rb.Field(schema.FieldIndices(FieldFunctionName)[0]).(*array.BinaryDictionaryBuilder)
	builderLib := rb.Field(schema.FieldIndices(FieldLib)[0]).(*array.BinaryDictionaryBuilder)
	builderTotal := rb.Field(schema.FieldIndices(FieldTotal)[0]).(*array.Float64Builder)
	builderSelf := rb.Field(schema.FieldIndices(FieldSelf)[0]).(*array.Float64Builder)

	var err error
	t.Walk(func(node, depth int) bool {
		if err != nil {
			return false
		}
		display := t.DisplayData(node)

		builderCallNode.Append(int64(node))
		if parent := t.Parent(node); parent == callnode.None {
			builderParent.AppendNull()
		} else {
			builderParent.Append(int64(parent))
		}
		builderDepth.Append(int32(depth))
		if err = builderFunctionName.AppendString(display.Name); err != nil {
			return false
		}
		if display.IsFrameLabel {
			builderLib.AppendNull()
		} else if err = builderLib.AppendString(display.Lib); err != nil {
			return false
		}
		builderTotal.Append(t.counts.Summary.Total[node])
		builderSelf.Append(t.counts.Summary.Self[node])
		return true
	})
	if err != nil {
		return nil, err
	}

	return rb.NewRecordBatch(), nil
}

// ArrowIPC serializes the tree as an LZ4 compressed Arrow IPC stream.
func ArrowIPC(mem memory.Allocator, t *Tree) ([]byte, error) {
	record, err := WriteArrow(mem, t)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf,
		ipc.WithSchema(record.Schema()),
		ipc.WithAllocator(mem),
		ipc.WithLZ4(),
	)
	if err := w.Write(record); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
