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

// Package validate checks a resolved file set before any file is touched.
//
// Hard limits (file count, missing files, oversized files) produce errors
// that stop the job. Soft checks (unexpected extensions, files that look
// binary or minified) only produce warnings.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultMaxFiles is the largest file set accepted in one job
	DefaultMaxFiles = 500
	// DefaultMaxFileSize is the largest single file accepted, in bytes
	DefaultMaxFileSize = 10 * 1024 * 1024

	sniffSize         = 8 * 1024
	maxLineLength     = 1000
	maxAvgLineLength  = 500
	maxControlPercent = 10
)

// DefaultExtensions is the recommended extension allow-list
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

var validate = validator.New()

// 🔧 Options configures validation
type Options struct {
	MaxFiles    int   `validate:"gte=1"`
	MaxFileSize int64 `validate:"gte=1"`
	// Extensions is the recommended allow-list; empty allows everything
	Extensions []string `validate:"dive,startswith=."`
	// StrictExtensions turns extension warnings into errors
	StrictExtensions bool
	// WarnOnOversize turns size errors into warnings
	WarnOnOversize bool
}

// DefaultOptions returns the standard limits
func DefaultOptions() Options {
	return Options{
		MaxFiles:    DefaultMaxFiles,
		MaxFileSize: DefaultMaxFileSize,
		Extensions:  slices.Clone(DefaultExtensions),
	}
}

// ⚠️ Issue is a problem found with one file (or the whole set when Path is empty)
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// 📋 Result holds the outcome of a validation run
type Result struct {
	// Files are the inputs without errors, in input order
	Files    []string
	Errors   []Issue
	Warnings []Issue
}

// Valid reports whether no errors were found
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err folds every error into one, or returns nil
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.String())
	}
	return errors.Errorf("validation failed with %d error(s): %s", len(r.Errors), strings.Join(msgs, "; "))
}

// ✅ Files validates files against opts. The returned error is about opts
// themselves; problems with the files are reported in the Result.
func Files(ctx context.Context, files []string, opts Options) (*Result, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, errors.Errorf("invalid validation options: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	res := &Result{}

	if len(files) > opts.MaxFiles {
		res.Errors = append(res.Errors, Issue{
			Message: fmt.Sprintf("%d files exceed the limit of %d, narrow the patterns", len(files), opts.MaxFiles),
		})
		return res, nil
	}

	for _, f := range files {
		errs, warns := checkFile(f, opts)
		res.Errors = append(res.Errors, errs...)
		res.Warnings = append(res.Warnings, warns...)
		if len(errs) == 0 {
			res.Files = append(res.Files, f)
		}
	}

	logger.Debug().
		Int("files", len(files)).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Msg("validation finished")

	return res, nil
}

func checkFile(path string, opts Options) (errs, warns []Issue) {
	add := func(isErr bool, format string, args ...any) {
		issue := Issue{Path: path, Message: fmt.Sprintf(format, args...)}
		if isErr {
			errs = append(errs, issue)
		} else {
			warns = append(warns, issue)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		add(true, "cannot access file: %v", err)
		return
	}
	if !info.Mode().IsRegular() {
		add(true, "not a regular file")
		return
	}

	if len(opts.Extensions) > 0 && !hasExtension(path, opts.Extensions) {
		add(opts.StrictExtensions, "extension %q is not one of %s", filepath.Ext(path), strings.Join(opts.Extensions, ", "))
	}

	if info.Size() > opts.MaxFileSize {
		add(!opts.WarnOnOversize, "size %d bytes exceeds the limit of %d bytes", info.Size(), opts.MaxFileSize)
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		add(true, "cannot read file: %v", err)
		return
	}

	if looksBinary(content) {
		add(false, "appears to be binary")
	} else if looksMinified(content) {
		add(false, "appears to be minified")
	}

	return
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// looksBinary sniffs the head of the content for null bytes or a high share
// of control characters
func looksBinary(content []byte) bool {
	head := content[:min(len(content), sniffSize)]
	if len(head) == 0 {
		return false
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}

	control := 0
	for _, b := range head {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' && b != '\b' {
			control++
		}
	}
	return control*100 > len(head)*maxControlPercent
}

// looksMinified flags files with very long lines
func looksMinified(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	lines := bytes.Split(content, []byte("\n"))
	for _, line := range lines {
		if len(line) > maxLineLength {
			return true
		}
	}
	return len(content)/len(lines) > maxAvgLineLength
}
