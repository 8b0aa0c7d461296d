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

package tracer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdoutProvider(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	exp, err := NewExporter("stdout", buf)
	require.NoError(t, err)
	require.NotNil(t, exp)

	p, err := NewProvider(ctx, "test", exp)
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(ctx, "calltree")
	span.End()
	require.NoError(t, p.Shutdown(ctx))
	require.Contains(t, buf.String(), `"Name": "calltree"`)
}

func TestNoneProvider(t *testing.T) {
	exp, err := NewExporter("none", nil)
	require.NoError(t, err)
	require.Nil(t, exp)

	p, err := NewProvider(context.Background(), "test", exp)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, err = NewExporter("jaeger", nil)
	require.Error(t, err)
}
