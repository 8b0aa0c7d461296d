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

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"meta":{}}`), 0o644))

	h, err := Hash(filename)
	require.NoError(t, err)
	require.Equal(t, xxhash.Sum64String(`{"meta":{}}`), h)

	_, err = Hash(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
