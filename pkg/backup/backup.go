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

// Package backup keeps timestamped copies of files before they are
// overwritten, and rotates old copies away.
//
// Backups live in a quarantine directory next to the original file:
//
//	src/app.ts
//	src/.batchfix-backups/app.ts.backup.1718000000000
//	src/.batchfix-backups/app.ts.backup.1718000000421
//
// An absolute quarantine directory is shared, so the original's absolute
// directory is mirrored beneath it:
//
//	/var/backups/home/me/proj/src/app.ts.backup.1718000000000
//
// Only the newest MaxBackups copies of each original file are kept.
package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/batchfix/pkg/atomicfile"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultDir is the quarantine directory created beside each original
	DefaultDir = ".batchfix-backups"
	// DefaultMaxBackups is how many copies of one file are kept
	DefaultMaxBackups = 10
	// Suffix separates the original name from the creation time
	Suffix = ".backup."
)

// ErrNoBackup is returned by Restore when a file has never been backed up
var ErrNoBackup = errors.Base("no backup found")

// 🔧 Options configures a Manager
type Options struct {
	// Dir is the quarantine directory. Relative paths are resolved beside the
	// original file, absolute paths are used as is. Empty means DefaultDir.
	Dir string
	// MaxBackups caps the number of copies per file name. Zero means DefaultMaxBackups.
	MaxBackups int
	// Now overrides the clock
	Now func() time.Time
}

// 📦 Backup is one copy of an original file
type Backup struct {
	Path      string
	Original  string
	CreatedAt time.Time
	stamp     int64
}

// 🗄️ Manager creates, rotates and restores backups
type Manager struct {
	dir        string
	maxBackups int
	now        func() time.Time

	mu sync.Mutex
}

// 🏭 New creates a backup manager
func New(opts Options) *Manager {
	m := &Manager{
		dir:        opts.Dir,
		maxBackups: opts.MaxBackups,
		now:        opts.Now,
	}
	if m.dir == "" {
		m.dir = DefaultDir
	}
	if m.maxBackups <= 0 {
		m.maxBackups = DefaultMaxBackups
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// MaxBackups returns the retention cap
func (m *Manager) MaxBackups() int {
	return m.maxBackups
}

// DirFor returns the quarantine directory used for path. Two originals
// never share a directory unless they share a parent.
func (m *Manager) DirFor(path string) string {
	if !filepath.IsAbs(m.dir) {
		return filepath.Join(filepath.Dir(path), m.dir)
	}

	parent, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		parent = filepath.Clean(filepath.Dir(path))
	}
	vol := filepath.VolumeName(parent)
	return filepath.Join(m.dir, strings.TrimSuffix(vol, ":"), parent[len(vol):])
}

// 💾 Create copies path into its quarantine directory and returns the backup
// path. An error means no backup exists and the original must not be
// overwritten. Rotation problems are only logged.
func (m *Manager) Create(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Errorf("reading original: %w", err)
	}
	if info.IsDir() {
		return "", errors.Errorf("%s is a directory", path)
	}

	dir := m.DirFor(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Errorf("creating backup directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.list(path)
	if err != nil {
		return "", errors.Errorf("listing backups: %w", err)
	}

	// stamps only ever grow, so the embedded time orders backups even when
	// two are created within the same millisecond
	stamp := m.now().UnixMilli()
	if len(existing) > 0 && stamp <= existing[0].stamp {
		stamp = existing[0].stamp + 1
	}

	target := filepath.Join(dir, filepath.Base(path)+Suffix+strconv.FormatInt(stamp, 10))
	if err := copyFile(path, target, info.Mode().Perm()); err != nil {
		return "", errors.Errorf("creating backup: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("file", path).Str("backup", target).Msg("backup created")

	if err := m.rotate(ctx, path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", path).Msg("cleaning up old backups")
	}

	return target, nil
}

// 📋 List returns the backups of path, newest first
func (m *Manager) List(ctx context.Context, path string) ([]Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.list(path)
}

// ♻️ Restore copies the newest backup of path back over path and returns the
// backup that was used
func (m *Manager) Restore(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	backups, err := m.list(path)
	if err != nil {
		return "", errors.Errorf("listing backups: %w", err)
	}
	if len(backups) == 0 {
		return "", errors.Errorf("restoring %s: %w", path, ErrNoBackup)
	}

	latest := backups[0]
	content, err := os.ReadFile(latest.Path)
	if err != nil {
		return "", errors.Errorf("reading backup: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(latest.Path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := atomicfile.Write(path, content, perm); err != nil {
		return "", errors.Errorf("restoring %s: %w", path, err)
	}

	zerolog.Ctx(ctx).Debug().Str("file", path).Str("backup", latest.Path).Msg("backup restored")

	return latest.Path, nil
}

func (m *Manager) list(path string) ([]Backup, error) {
	dir := m.DirFor(path)
	prefix := filepath.Base(path) + Suffix

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("reading backup directory: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp, err := strconv.ParseInt(strings.TrimPrefix(name, prefix), 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Path:      filepath.Join(dir, name),
			Original:  path,
			CreatedAt: time.UnixMilli(stamp),
			stamp:     stamp,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].stamp > backups[j].stamp
	})

	return backups, nil
}

func (m *Manager) rotate(ctx context.Context, path string) error {
	backups, err := m.list(path)
	if err != nil {
		return err
	}
	if len(backups) <= m.maxBackups {
		return nil
	}

	var errs []error
	for _, b := range backups[m.maxBackups:] {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, errors.Errorf("removing %s: %w", b.Path, err))
			continue
		}
		zerolog.Ctx(ctx).Debug().Str("backup", b.Path).Msg("old backup removed")
	}

	return errors.Join(errs...)
}

func copyFile(src, dst string, perm os.FileMode) error {
	source, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening source file: %w", err)
	}
	defer source.Close()

	destination, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return errors.Errorf("creating destination file: %w", err)
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		os.Remove(dst)
		return errors.Errorf("copying file: %w", err)
	}

	if err := destination.Close(); err != nil {
		os.Remove(dst)
		return errors.Errorf("closing destination file: %w", err)
	}

	return nil
}
