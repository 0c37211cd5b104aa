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

package backup_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/batchfix/pkg/backup"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

// fixedClock always returns the same instant, forcing stamp collisions
func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

func TestCreateCopiesFileVerbatim(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "app.ts")
	require.NoError(t, os.WriteFile(src, []byte("const a = 1;\n"), 0o640))

	mgr := backup.New(backup.Options{Now: fixedClock})
	path, err := mgr.Create(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, backup.DefaultDir, "app.ts.backup.1700000000000"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\n", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestCreateKeepsOnlyNewestBackups(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "app.ts")

	const maxBackups = 4
	const extra = 3
	mgr := backup.New(backup.Options{MaxBackups: maxBackups, Now: fixedClock})

	for i := 1; i <= maxBackups+extra; i++ {
		require.NoError(t, os.WriteFile(src, []byte(fmt.Sprintf("v%d", i)), 0o644))
		_, err := mgr.Create(ctx, src)
		require.NoError(t, err)
	}

	backups, err := mgr.List(ctx, src)
	require.NoError(t, err)
	require.Len(t, backups, maxBackups)

	for i, b := range backups {
		content, err := os.ReadFile(b.Path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("v%d", maxBackups+extra-i), string(content), "backups must be the newest ones, newest first")
	}

	entries, err := os.ReadDir(filepath.Join(dir, backup.DefaultDir))
	require.NoError(t, err)
	assert.Len(t, entries, maxBackups)
}

func TestRetentionIsPerFileName(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ts")
	ab := filepath.Join(dir, "a.tsx")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(ab, []byte("ab"), 0o644))

	mgr := backup.New(backup.Options{MaxBackups: 2})

	_, err := mgr.Create(ctx, ab)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := mgr.Create(ctx, a)
		require.NoError(t, err)
	}

	aBackups, err := mgr.List(ctx, a)
	require.NoError(t, err)
	assert.Len(t, aBackups, 2)

	abBackups, err := mgr.List(ctx, ab)
	require.NoError(t, err)
	assert.Len(t, abBackups, 1, "rotating a.ts must not touch a.tsx backups")
}

func TestCreateFailsForMissingFile(t *testing.T) {
	mgr := backup.New(backup.Options{})
	_, err := mgr.Create(testContext(t), filepath.Join(t.TempDir(), "missing.ts"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading original")
}

func TestCreateUsesAbsoluteDir(t *testing.T) {
	ctx := testContext(t)
	src := filepath.Join(t.TempDir(), "app.ts")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	quarantine := filepath.Join(t.TempDir(), "quarantine")

	mgr := backup.New(backup.Options{Dir: quarantine})
	path, err := mgr.Create(ctx, src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, quarantine+string(filepath.Separator)), "backup %s is under %s", path, quarantine)
	assert.Equal(t, mgr.DirFor(src), filepath.Dir(path))
}

func TestAbsoluteDirKeepsSameNamedFilesApart(t *testing.T) {
	ctx := testContext(t)
	root := t.TempDir()
	a := filepath.Join(root, "a", "index.ts")
	b := filepath.Join(root, "b", "index.ts")
	for path, content := range map[string]string{a: "AAA original", b: "BBB original"} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	mgr := backup.New(backup.Options{Dir: filepath.Join(t.TempDir(), "quarantine"), MaxBackups: 1})
	assert.NotEqual(t, mgr.DirFor(a), mgr.DirFor(b))

	_, err := mgr.Create(ctx, a)
	require.NoError(t, err)
	_, err = mgr.Create(ctx, b)
	require.NoError(t, err)

	for _, path := range []string{a, b} {
		backups, err := mgr.List(ctx, path)
		require.NoError(t, err)
		assert.Len(t, backups, 1, "rotation of one file must not remove the other's backup")
	}

	require.NoError(t, os.WriteFile(a, []byte("AAA rewritten"), 0o644))
	_, err = mgr.Restore(ctx, a)
	require.NoError(t, err)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "AAA original", string(got))
}

func TestRestore(t *testing.T) {
	ctx := testContext(t)
	src := filepath.Join(t.TempDir(), "app.ts")
	mgr := backup.New(backup.Options{})

	_, err := mgr.Restore(ctx, src)
	require.ErrorIs(t, err, backup.ErrNoBackup)

	require.NoError(t, os.WriteFile(src, []byte("original"), 0o644))
	_, err = mgr.Create(ctx, src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("transformed"), 0o644))

	used, err := mgr.Restore(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, used, "app.ts.backup.")

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}
