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

// Package discover turns user supplied patterns into a concrete, de-duplicated
// list of files.
package discover

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultExclude skips dependency and build output directories
var DefaultExclude = []string{
	"**/node_modules/**",
	"**/dist/**",
	"**/build/**",
	"**/.next/**",
	"**/coverage/**",
	"**/.git/**",
	"**/vendor/**",
	"**/.batchfix-backups/**",
}

// 🔧 Options controls how patterns are resolved
type Options struct {
	// BaseDir is the directory relative patterns are resolved against
	BaseDir string
	// Patterns are files, directories or doublestar globs
	Patterns []string
	// Include patterns are merged with Patterns
	Include []string
	// Exclude patterns are applied on top of DefaultExclude
	Exclude []string
	// NoDefaultExclude drops DefaultExclude
	NoDefaultExclude bool
	// Recursive descends into sub directories of directory patterns
	Recursive bool
	// Extensions filters files found by expanding directories (".ts", ".js")
	Extensions []string
}

// 🔍 Resolve expands opts into a sorted list of unique files
func Resolve(ctx context.Context, opts Options) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	base := opts.BaseDir
	if base == "" {
		base = "."
	}

	excludes := slices.Clone(opts.Exclude)
	if !opts.NoDefaultExclude {
		excludes = append(excludes, DefaultExclude...)
	}
	for _, ex := range excludes {
		if !doublestar.ValidatePattern(filepath.ToSlash(ex)) {
			return nil, errors.Errorf("invalid exclude pattern %q", ex)
		}
	}

	m := &matcher{base: base, excludes: excludes}

	seen := make(map[string]struct{})
	var out []string

	for _, pattern := range append(slices.Clone(opts.Patterns), opts.Include...) {
		found, err := m.expand(pattern, opts)
		if err != nil {
			return nil, errors.Errorf("expanding %q: %w", pattern, err)
		}

		logger.Debug().Str("pattern", pattern).Int("matches", len(found)).Msg("pattern expanded")

		for _, f := range found {
			f = filepath.Clean(f)
			if m.excluded(f) {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}

	slices.Sort(out)
	return out, nil
}

type matcher struct {
	base     string
	excludes []string
}

func (m *matcher) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.base, p)
}

func (m *matcher) expand(pattern string, opts Options) ([]string, error) {
	full := m.resolve(pattern)

	info, err := os.Stat(full)
	switch {
	case err == nil && !info.IsDir():
		return []string{full}, nil
	case err == nil && info.IsDir():
		return m.walk(full, opts)
	}

	if !doublestar.ValidatePathPattern(full) {
		return nil, errors.New("invalid glob pattern")
	}

	matches, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Errorf("globbing: %w", err)
	}
	return matches, nil
}

func (m *matcher) walk(dir string, opts Options) ([]string, error) {
	var out []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			// a directory is pruned when any file inside it would be excluded
			if !opts.Recursive || m.excluded(filepath.Join(path, "x")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExtension(path, opts.Extensions) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", dir, err)
	}

	return out, nil
}

// excluded matches path, relative to the base dir, against every exclude pattern
func (m *matcher) excluded(path string) bool {
	rel := path
	if r, err := filepath.Rel(m.base, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = r
	}
	rel = filepath.ToSlash(rel)

	for _, ex := range m.excludes {
		if doublestar.MatchUnvalidated(filepath.ToSlash(ex), rel) {
			return true
		}
	}
	return false
}

func hasExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
