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

// Package job runs a remote transformation over a set of files in bounded,
// strictly sequential batches, with retries, optional backups, atomic writes
// and a resumable progress snapshot.
package job

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/pkg/backup"
	"github.com/walteh/batchfix/pkg/discover"
	"github.com/walteh/batchfix/pkg/progress"
	"github.com/walteh/batchfix/pkg/remote"
	"github.com/walteh/batchfix/pkg/retry"
	"github.com/walteh/batchfix/pkg/validate"
)

const (
	// DefaultOperation names the snapshot a run can resume from
	DefaultOperation = "fix"
	// DefaultBatchSize is the number of files per batch
	DefaultBatchSize = 3
	// DefaultMaxConcurrent is the number of transform calls in flight
	DefaultMaxConcurrent = 2
	// MaxLayer is the highest layer id the transform service knows
	MaxLayer = 6
)

// DefaultLayers are applied when no layers are requested
var DefaultLayers = []int{1, 2, 3, 4, 5, 6}

// ErrNoFiles is returned when the patterns match nothing
var ErrNoFiles = errors.Base("no files to process")

// ResumeFunc decides whether an interrupted run should be picked up
type ResumeFunc func(ctx context.Context, st *progress.State) (bool, error)

// AlwaysResume resumes every interrupted run
func AlwaysResume(context.Context, *progress.State) (bool, error) {
	return true, nil
}

// NeverResume always starts over
func NeverResume(context.Context, *progress.State) (bool, error) {
	return false, nil
}

// 🔧 Options configures a Coordinator
type Options struct {
	// Operation names the run for resumption, DefaultOperation when empty
	Operation string
	// Discover selects the input files
	Discover discover.Options
	// Layers are passed to the transform service, DefaultLayers when empty
	Layers []int
	// DryRun runs every transform but writes nothing: no files, no
	// backups and no progress snapshot
	DryRun bool
	// Backup copies each file before it is overwritten
	Backup        bool
	BackupOptions backup.Options
	BatchSize     int
	MaxConcurrent int
	// Transformer is required
	Transformer remote.Transformer
	// Retry wraps every transform call, retry.DefaultConfig() when nil
	Retry retry.Policy
	// Validation limits the file set, validate.DefaultOptions() when nil
	Validation *validate.Options
	// Store persists progress, a FileStore at progress.DefaultFile when nil
	Store progress.Store
	// Reporter renders live progress
	Reporter progress.Reporter
	// ConfirmResume is asked when a matching interrupted run exists. Nil
	// never resumes.
	ConfirmResume ResumeFunc
	// OnFile observes every settled file. Calls are serialized.
	OnFile func(FileResult)
}

// 🚦 Outcome is what happened to one file
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeChanged
	OutcomeFailed
	// OutcomeSkipped marks files left pending by a cancelled run
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeChanged:
		return "changed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// 📄 FileResult is the per-file record of a run
type FileResult struct {
	Path    string
	Outcome Outcome
	Err     error
	Layers  []remote.LayerResult
	// Insertions and Deletions count changed lines
	Insertions int
	Deletions  int
	// Backup is the path of the copy taken before writing, if any
	Backup   string
	Attempts int
	Duration time.Duration
}

// 📊 LayerStat aggregates one layer over every processed file
type LayerStat struct {
	ID      int
	Name    string
	Success int
	Skipped int
	Errors  int
	Changes int
}

// 📋 Result summarizes a run
type Result struct {
	JobID     string
	Operation string
	// Resumed is set when the run picked up an interrupted one
	Resumed     bool
	ResumedFrom string
	DryRun      bool
	Files       []FileResult
	Warnings    []validate.Issue
	Changed     int
	Unchanged   int
	Failed      int
	Skipped     int
	Layers      []LayerStat
	Summary     progress.Summary
	Duration    time.Duration
}

// FailedFiles returns the failed entries in processing order
func (r *Result) FailedFiles() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Outcome == OutcomeFailed {
			out = append(out, f)
		}
	}
	return out
}

// 🎮 Coordinator runs one job
type Coordinator struct {
	opts    Options
	policy  retry.Policy
	store   progress.Store
	backups *backup.Manager
}

// 🏭 New checks opts and fills in defaults
func New(opts Options) (*Coordinator, error) {
	if opts.Transformer == nil {
		return nil, errors.Errorf("transformer is required")
	}
	if opts.BatchSize < 0 {
		return nil, errors.Errorf("batch size must not be negative, got %d", opts.BatchSize)
	}
	if opts.MaxConcurrent < 0 {
		return nil, errors.Errorf("max concurrent must not be negative, got %d", opts.MaxConcurrent)
	}
	for _, l := range opts.Layers {
		if l < 1 || l > MaxLayer {
			return nil, errors.Errorf("layer %d out of range 1-%d", l, MaxLayer)
		}
	}

	if opts.Operation == "" {
		opts.Operation = DefaultOperation
	}
	if len(opts.Layers) == 0 {
		opts.Layers = slices.Clone(DefaultLayers)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Validation == nil {
		v := validate.DefaultOptions()
		opts.Validation = &v
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}

	c := &Coordinator{
		opts:   opts,
		policy: opts.Retry,
		store:  opts.Store,
	}
	if c.policy == nil {
		c.policy = retry.DefaultConfig()
	}
	if c.store == nil {
		c.store = progress.NewFileStore(progress.DefaultFile)
	}
	if opts.Backup && !opts.DryRun {
		c.backups = backup.New(opts.BackupOptions)
	}

	return c, nil
}

// Options returns the effective options
func (c *Coordinator) Options() Options {
	return c.opts
}
