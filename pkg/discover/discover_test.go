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

package discover_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/batchfix/pkg/discover"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("// "+f), 0o644))
	}
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestResolve(t *testing.T) {
	tree := []string{
		"src/app.ts",
		"src/util.js",
		"src/readme.md",
		"src/components/button.tsx",
		"src/components/deep/icon.tsx",
		"node_modules/lib/index.js",
		"src/node_modules/x/y.js",
		"dist/app.js",
		"src/.batchfix-backups/app.ts.backup.1",
		"scripts/build.js",
	}

	tests := []struct {
		name    string
		opts    discover.Options
		want    []string
		wantErr string
	}{
		{
			name: "single_file",
			opts: discover.Options{Patterns: []string{"src/app.ts"}},
			want: []string{"src/app.ts"},
		},
		{
			name: "directory_top_level_only",
			opts: discover.Options{Patterns: []string{"src"}, Extensions: []string{".ts", ".tsx", ".js"}},
			want: []string{"src/app.ts", "src/util.js"},
		},
		{
			name: "directory_recursive_skips_default_excludes",
			opts: discover.Options{Patterns: []string{"."}, Recursive: true, Extensions: []string{".ts", ".tsx", ".js"}},
			want: []string{
				"scripts/build.js",
				"src/app.ts",
				"src/components/button.tsx",
				"src/components/deep/icon.tsx",
				"src/util.js",
			},
		},
		{
			name: "glob_with_excludes",
			opts: discover.Options{Patterns: []string{"**/*.js"}, Exclude: []string{"scripts/**"}},
			want: []string{"src/util.js"},
		},
		{
			name: "include_merges_and_deduplicates",
			opts: discover.Options{
				Patterns: []string{"src/app.ts", "src/*.ts"},
				Include:  []string{"src/components/**/*.tsx", "src/app.ts"},
			},
			want: []string{"src/app.ts", "src/components/button.tsx", "src/components/deep/icon.tsx"},
		},
		{
			name: "default_excludes_can_be_disabled",
			opts: discover.Options{Patterns: []string{"dist/*.js"}, NoDefaultExclude: true},
			want: []string{"dist/app.js"},
		},
		{
			name: "no_matches",
			opts: discover.Options{Patterns: []string{"**/*.vue"}},
			want: nil,
		},
		{
			name:    "invalid_exclude",
			opts:    discover.Options{Patterns: []string{"src"}, Exclude: []string{"[unclosed"}},
			wantErr: "invalid exclude pattern",
		},
		{
			name:    "invalid_glob",
			opts:    discover.Options{Patterns: []string{"src/[unclosed"}},
			wantErr: "invalid glob pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, tree...)

			ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
			tt.opts.BaseDir = root

			got, err := discover.Resolve(ctx, tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, rel(t, root, got))
		})
	}
}
