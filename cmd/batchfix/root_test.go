// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
)

func TestNewRootOpts(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())

	t.Run("discovers config in working directory", func(t *testing.T) {
		configFile = ""
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".batchfix.yaml"), []byte("batch_size: 7\n"), 0o644))

		o := &opts.RootOpts{Out: &bytes.Buffer{}}
		require.NoError(t, newRootOpts(ctx, o))
		assert.Equal(t, 7, o.Config.BatchSize)
		assert.NotNil(t, o.Console)
		assert.NotNil(t, o.Confirm)
	})

	t.Run("explicit config", func(t *testing.T) {
		path := filepath.Join(dir, "custom.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"max_concurrent": 5}`), 0o644))
		configFile = path
		t.Cleanup(func() { configFile = "" })

		o := &opts.RootOpts{Out: &bytes.Buffer{}}
		require.NoError(t, newRootOpts(ctx, o))
		assert.Equal(t, 5, o.Config.MaxConcurrent)
		assert.Equal(t, path, o.Config.Location())
	})

	t.Run("invalid config", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("batch_size: -1\n"), 0o644))
		configFile = path
		t.Cleanup(func() { configFile = "" })

		err := newRootOpts(ctx, &opts.RootOpts{Out: &bytes.Buffer{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading config")
	})
}

func TestRunVersion(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 1, run([]string{"no-such-command"}))
}
