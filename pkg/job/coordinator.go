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

package job

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/batchfix/pkg/atomicfile"
	"github.com/walteh/batchfix/pkg/discover"
	"github.com/walteh/batchfix/pkg/gate"
	"github.com/walteh/batchfix/pkg/progress"
	"github.com/walteh/batchfix/pkg/remote"
	"github.com/walteh/batchfix/pkg/retry"
	"github.com/walteh/batchfix/pkg/validate"
)

// 🚀 Run executes the job.
//
// Setup problems (bad patterns, no files, validation errors, an unreadable
// snapshot) are returned before any file is touched. Per-file problems never
// abort the run; they are reported in Result.Files. When ctx is cancelled the
// batches not yet started are skipped, the snapshot is kept for resumption and
// the partial result is returned together with the context error.
func (c *Coordinator) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, c.opts.Operation, c.opts.DryRun)
	defer func() {
		if res != nil {
			res.Duration = time.Since(start)
			metrics(ctx).recordRun(ctx, res, err)
		}
		endSpan(span, err)
	}()

	files, warnings, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Operation: c.opts.Operation,
		DryRun:    c.opts.DryRun,
		Warnings:  warnings,
	}

	files, err = c.resume(ctx, res, files)
	if err != nil {
		return nil, err
	}

	tracker := progress.NewTracker(c.opts.Operation, files,
		progress.WithStore(c.store),
		progress.WithReporter(c.opts.Reporter),
		progress.WithAutoPersist(!c.opts.DryRun),
	)
	res.JobID = tracker.ID()

	logger := zerolog.Ctx(ctx).With().Str("job", res.JobID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().
		Int("files", len(files)).
		Ints("layers", c.opts.Layers).
		Bool("dry_run", c.opts.DryRun).
		Bool("resumed", res.Resumed).
		Msg("starting job")

	tracker.Start(ctx)

	res.Files, err = c.runBatches(ctx, tracker, files)

	res.Summary = tracker.Complete(ctx, err == nil)
	c.tally(res, len(files))

	logger.Info().
		Int("changed", res.Changed).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("job finished")

	if err != nil {
		return res, errors.Errorf("job interrupted: %w", err)
	}
	return res, nil
}

// prepare resolves and validates the input files
func (c *Coordinator) prepare(ctx context.Context) ([]string, []validate.Issue, error) {
	logger := zerolog.Ctx(ctx)

	files, err := discover.Resolve(ctx, c.opts.Discover)
	if err != nil {
		return nil, nil, errors.Errorf("resolving files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil, errors.WithStack(ErrNoFiles)
	}

	vres, err := validate.Files(ctx, files, *c.opts.Validation)
	if err != nil {
		return nil, nil, errors.Errorf("validating files: %w", err)
	}
	for _, w := range vres.Warnings {
		logger.Warn().Str("file", w.Path).Msg(w.Message)
	}
	if err := vres.Err(); err != nil {
		return nil, nil, errors.Errorf("validating files: %w", err)
	}

	return vres.Files, vres.Warnings, nil
}

// resume swaps the working list for the remaining files of an interrupted
// run when the caller agrees. Dry runs never read the snapshot.
func (c *Coordinator) resume(ctx context.Context, res *Result, files []string) ([]string, error) {
	if c.opts.DryRun || c.opts.ConfirmResume == nil {
		return files, nil
	}

	st, err := progress.ResumeOperation(ctx, c.store, c.opts.Operation)
	if err != nil {
		return nil, errors.Errorf("checking for interrupted run: %w", err)
	}
	if st == nil {
		return files, nil
	}

	ok, err := c.opts.ConfirmResume(ctx, st)
	if err != nil {
		return nil, errors.Errorf("confirming resume: %w", err)
	}
	if !ok {
		zerolog.Ctx(ctx).Info().Str("previous", st.ID).Msg("starting over")
		return files, nil
	}

	zerolog.Ctx(ctx).Info().
		Str("previous", st.ID).
		Int("completed", st.Completed).
		Int("failed", st.Failed).
		Int("remaining", len(st.Files.Remaining)).
		Msg("resuming interrupted run")

	res.Resumed = true
	res.ResumedFrom = st.ID
	return slices.Clone(st.Files.Remaining), nil
}

// runBatches processes files in strictly sequential batches. Within a batch
// every task runs in its own goroutine behind the gate, and the batch waits
// for all of them.
func (c *Coordinator) runBatches(ctx context.Context, tracker *progress.Tracker, files []string) ([]FileResult, error) {
	logger := zerolog.Ctx(ctx)
	g := gate.New(c.opts.MaxConcurrent)
	size := c.opts.BatchSize
	batches := (len(files) + size - 1) / size

	var mu sync.Mutex
	results := make([]FileResult, 0, len(files))
	settled := func(fr FileResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, fr)
		if c.opts.OnFile != nil {
			c.opts.OnFile(fr)
		}
	}

	for n, lo := 1, 0; lo < len(files); n, lo = n+1, lo+size {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("batch", n).Int("batches", batches).Msg("cancelled, leaving remaining batches for resume")
			return results, err
		}

		batch := files[lo:min(lo+size, len(files))]
		logger.Debug().Int("batch", n).Int("batches", batches).Strs("files", batch).Msg("starting batch")

		var eg errgroup.Group
		for _, path := range batch {
			eg.Go(func() error {
				settled(c.processFile(ctx, g, tracker, path))
				return nil
			})
		}
		_ = eg.Wait()
	}

	return results, ctx.Err()
}

// processFile runs one task: permit, transform with retries, backup, write,
// record. The permit is held until the outcome is recorded.
func (c *Coordinator) processFile(ctx context.Context, g *gate.Gate, tracker *progress.Tracker, path string) FileResult {
	start := time.Now()
	ctx, span := startFileSpan(ctx, path)
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()
	ctx = logger.WithContext(ctx)

	fr := FileResult{Path: path}
	ran := false

	err := g.Do(ctx, func(ctx context.Context) error {
		ran = true
		err := c.transformFile(ctx, &fr)
		switch {
		case err == nil:
			tracker.MarkCompleted(ctx, path)
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// interrupted, the file stays pending for resume
			fr.Outcome = OutcomeSkipped
		default:
			fr.Outcome = OutcomeFailed
			tracker.MarkFailed(ctx, path, err.Error())
		}
		return err
	})
	if !ran {
		fr.Outcome = OutcomeSkipped
	}
	fr.Err = err
	fr.Duration = time.Since(start)

	switch fr.Outcome {
	case OutcomeFailed:
		logger.Error().Err(err).Int("attempts", fr.Attempts).Msg("file failed")
	case OutcomeSkipped:
		logger.Debug().Err(err).Msg("file skipped")
	default:
		logger.Debug().
			Stringer("outcome", fr.Outcome).
			Int("insertions", fr.Insertions).
			Int("deletions", fr.Deletions).
			Dur("took", fr.Duration).
			Msg("file processed")
	}

	metrics(ctx).recordFile(ctx, fr.Outcome, fr.Duration)
	endSpan(span, err)
	return fr
}

func (c *Coordinator) transformFile(ctx context.Context, fr *FileResult) error {
	info, err := os.Stat(fr.Path)
	if err != nil {
		return errors.Errorf("reading file: %w", err)
	}
	original, err := os.ReadFile(fr.Path)
	if err != nil {
		return errors.Errorf("reading file: %w", err)
	}

	req := remote.Request{
		Code:     string(original),
		FilePath: c.displayPath(fr.Path),
		Layers:   c.opts.Layers,
	}
	policy := &observedPolicy{Policy: c.policy, ctx: ctx}

	resp, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*remote.Response, error) {
		fr.Attempts++
		return c.opts.Transformer.Transform(ctx, req)
	})
	if err != nil {
		return errors.Errorf("transforming: %w", err)
	}
	if resp == nil {
		return errors.Errorf("transforming: empty response")
	}

	fr.Layers = resp.Layers
	if resp.Transformed == string(original) {
		fr.Outcome = OutcomeUnchanged
		return nil
	}

	fr.Outcome = OutcomeChanged
	fr.Insertions, fr.Deletions = lineDiff(string(original), resp.Transformed)

	if c.opts.DryRun {
		return nil
	}

	if c.backups != nil {
		fr.Backup, err = c.backups.Create(ctx, fr.Path)
		if err != nil {
			return errors.Errorf("creating backup: %w", err)
		}
	}

	if err := atomicfile.Write(fr.Path, []byte(resp.Transformed), info.Mode().Perm()); err != nil {
		return errors.Errorf("writing file: %w", err)
	}

	return nil
}

// displayPath is the path sent to the service, relative to the base dir
// when possible
func (c *Coordinator) displayPath(path string) string {
	base := c.opts.Discover.BaseDir
	if base == "" {
		base = "."
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (c *Coordinator) tally(res *Result, total int) {
	stats := map[int]*LayerStat{}
	seen := 0

	for _, f := range res.Files {
		switch f.Outcome {
		case OutcomeChanged:
			res.Changed++
		case OutcomeUnchanged:
			res.Unchanged++
		case OutcomeFailed:
			res.Failed++
		case OutcomeSkipped:
			res.Skipped++
		}
		seen++

		for _, l := range f.Layers {
			st, ok := stats[l.ID]
			if !ok {
				st = &LayerStat{ID: l.ID, Name: l.Name}
				stats[l.ID] = st
			}
			switch l.Status {
			case remote.LayerSuccess:
				st.Success++
			case remote.LayerSkipped:
				st.Skipped++
			case remote.LayerError:
				st.Errors++
			}
			st.Changes += l.Changes
		}
	}
	// files in batches that never started
	res.Skipped += total - seen

	res.Layers = make([]LayerStat, 0, len(stats))
	for _, st := range stats {
		res.Layers = append(res.Layers, *st)
	}
	slices.SortFunc(res.Layers, func(a, b LayerStat) int {
		return a.ID - b.ID
	})
}

// observedPolicy logs and counts retries on top of the configured policy
type observedPolicy struct {
	retry.Policy
	ctx context.Context
}

func (p *observedPolicy) Retrying(err error, attempt int) {
	p.Policy.Retrying(err, attempt)
	zerolog.Ctx(p.ctx).Warn().Err(err).Int("attempt", attempt).Msg("transform failed, retrying")
	metrics(p.ctx).recordRetry(p.ctx)
}
