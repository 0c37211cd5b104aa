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

package validate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/batchfix/pkg/validate"
)

func write(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func messages(issues []validate.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Message)
	}
	return out
}

func TestFiles(t *testing.T) {
	ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())

	tests := []struct {
		name         string
		setup        func(t *testing.T, dir string) []string
		opts         func(o *validate.Options)
		wantFiles    int
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name: "clean_source_files",
			setup: func(t *testing.T, dir string) []string {
				return []string{
					write(t, dir, "a.ts", []byte("const a = 1;\nexport default a;\n")),
					write(t, dir, "b.tsx", []byte("export const B = () => <div />;\n")),
				}
			},
			wantFiles: 2,
		},
		{
			name: "too_many_files",
			setup: func(t *testing.T, dir string) []string {
				return []string{
					write(t, dir, "a.ts", []byte("a\n")),
					write(t, dir, "b.ts", []byte("b\n")),
					write(t, dir, "c.ts", []byte("c\n")),
				}
			},
			opts:       func(o *validate.Options) { o.MaxFiles = 2 },
			wantErrors: []string{"3 files exceed the limit of 2"},
		},
		{
			name: "missing_file",
			setup: func(t *testing.T, dir string) []string {
				return []string{filepath.Join(dir, "gone.ts")}
			},
			wantErrors: []string{"cannot access file"},
		},
		{
			name: "directory",
			setup: func(t *testing.T, dir string) []string {
				sub := filepath.Join(dir, "sub.ts")
				require.NoError(t, os.Mkdir(sub, 0o755))
				return []string{sub}
			},
			wantErrors: []string{"not a regular file"},
		},
		{
			name: "oversized_is_an_error",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "big.ts", []byte(strings.Repeat("x\n", 64)))}
			},
			opts:       func(o *validate.Options) { o.MaxFileSize = 16 },
			wantErrors: []string{"exceeds the limit of 16 bytes"},
		},
		{
			name: "oversized_warns_when_lenient",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "big.ts", []byte(strings.Repeat("x\n", 64)))}
			},
			opts: func(o *validate.Options) {
				o.MaxFileSize = 16
				o.WarnOnOversize = true
			},
			wantFiles:    1,
			wantWarnings: []string{"exceeds the limit of 16 bytes"},
		},
		{
			name: "unexpected_extension_warns",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "style.css", []byte("a { color: red; }\n"))}
			},
			wantFiles:    1,
			wantWarnings: []string{`extension ".css"`},
		},
		{
			name: "unexpected_extension_strict",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "style.css", []byte("a { color: red; }\n"))}
			},
			opts:       func(o *validate.Options) { o.StrictExtensions = true },
			wantErrors: []string{`extension ".css"`},
		},
		{
			name: "extension_match_ignores_case",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "App.TSX", []byte("export {};\n"))}
			},
			wantFiles: 1,
		},
		{
			name: "null_byte_is_binary",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "blob.js", []byte("abc\x00def"))}
			},
			wantFiles:    1,
			wantWarnings: []string{"appears to be binary"},
		},
		{
			name: "control_characters_are_binary",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "blob.js", []byte("ab\x01\x02\x03\x04cdefgh"))}
			},
			wantFiles:    1,
			wantWarnings: []string{"appears to be binary"},
		},
		{
			name: "long_line_is_minified",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "bundle.js", []byte("short\n"+strings.Repeat("a", 1001)+"\n"))}
			},
			wantFiles:    1,
			wantWarnings: []string{"appears to be minified"},
		},
		{
			name: "high_average_line_length_is_minified",
			setup: func(t *testing.T, dir string) []string {
				line := strings.Repeat("b", 900)
				return []string{write(t, dir, "bundle.js", []byte(line+"\n"+line))}
			},
			wantFiles:    1,
			wantWarnings: []string{"appears to be minified"},
		},
		{
			name: "empty_file_is_fine",
			setup: func(t *testing.T, dir string) []string {
				return []string{write(t, dir, "empty.ts", nil)}
			},
			wantFiles: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := tt.setup(t, t.TempDir())
			opts := validate.DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}

			res, err := validate.Files(ctx, files, opts)
			require.NoError(t, err)

			assert.Len(t, res.Files, tt.wantFiles, "valid files")
			require.Len(t, res.Errors, len(tt.wantErrors), "errors: %v", messages(res.Errors))
			for i, want := range tt.wantErrors {
				assert.Contains(t, res.Errors[i].Message, want)
			}
			require.Len(t, res.Warnings, len(tt.wantWarnings), "warnings: %v", messages(res.Warnings))
			for i, want := range tt.wantWarnings {
				assert.Contains(t, res.Warnings[i].Message, want)
			}

			if len(tt.wantErrors) > 0 {
				require.Error(t, res.Err())
				assert.Contains(t, res.Err().Error(), tt.wantErrors[0])
			} else {
				assert.NoError(t, res.Err())
			}
		})
	}
}

func TestFilesKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		write(t, dir, "z.ts", []byte("z\n")),
		filepath.Join(dir, "missing.ts"),
		write(t, dir, "a.ts", []byte("a\n")),
	}

	res, err := validate.Files(context.Background(), files, validate.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{files[0], files[2]}, res.Files)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, files[1], res.Errors[0].Path)
	assert.Contains(t, res.Errors[0].String(), files[1]+": ")
}

func TestFilesRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts validate.Options
	}{
		{name: "zero_max_files", opts: validate.Options{MaxFiles: 0, MaxFileSize: 1}},
		{name: "zero_max_size", opts: validate.Options{MaxFiles: 1, MaxFileSize: 0}},
		{name: "extension_without_dot", opts: validate.Options{MaxFiles: 1, MaxFileSize: 1, Extensions: []string{"ts"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate.Files(context.Background(), nil, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid validation options")
		})
	}
}
