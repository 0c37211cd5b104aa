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

package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
	"github.com/walteh/batchfix/pkg/job"
	"github.com/walteh/batchfix/pkg/progress"
	"github.com/walteh/batchfix/pkg/remote"
)

// progress modes for --progress
const (
	progressAuto = "auto"
	progressBar  = "bar"
	progressLog  = "log"
	progressNone = "none"
)

// fixFlags holds the fix command flags. Zero values fall back to config.
type fixFlags struct {
	layers           []int
	recursive        bool
	include          []string
	exclude          []string
	noDefaultExclude bool
	dryRun           bool
	backup           bool
	noBackup         bool
	batchSize        int
	concurrency      int
	resume           bool
	noResume         bool
	progress         string
	failOnError      bool
}

// NewFixCmd creates the fix command
func NewFixCmd(opts *opts.RootOpts) *cobra.Command {
	f := &fixFlags{}

	cmd := &cobra.Command{
		Use:   "fix [patterns...]",
		Short: "Apply the transform service to matching files",
		Long: `Fix sends every matching file to the transform service and writes the result back.
It will:
1. Resolve the patterns into a de-duplicated file list
2. Validate the file count, sizes and extensions
3. Offer to resume an interrupted run of the same operation
4. Process the files in sequential batches with bounded concurrency
5. Retry transient failures with exponential backoff
6. Back up originals (with --backup) and replace files atomically

Patterns can be files, directories or doublestar globs. With no patterns the
working directory is used.`,
		Example: `  batchfix fix src --recursive --layers 1,2
  batchfix fix "src/**/*.tsx" --dry-run
  batchfix fix . -r --backup --batch-size 5 --concurrency 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "fix").Logger().WithContext(cmd.Context())
			return runFix(ctx, opts, f, args)
		},
	}

	fl := cmd.Flags()
	fl.IntSliceVar(&f.layers, "layers", nil, "transform layers to apply (default from config)")
	fl.BoolVarP(&f.recursive, "recursive", "r", false, "descend into sub directories")
	fl.StringSliceVar(&f.include, "include", nil, "additional glob patterns to include")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "glob patterns to exclude")
	fl.BoolVar(&f.noDefaultExclude, "no-default-exclude", false, "do not skip node_modules, dist, build and friends")
	fl.BoolVar(&f.dryRun, "dry-run", false, "run the transforms but write nothing")
	fl.BoolVar(&f.backup, "backup", false, "back up files before overwriting them")
	fl.BoolVar(&f.noBackup, "no-backup", false, "never back up, even when enabled in config")
	fl.IntVar(&f.batchSize, "batch-size", 0, "files per batch (default from config)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "files in flight within a batch (default from config)")
	fl.BoolVar(&f.resume, "resume", false, "resume an interrupted run without asking")
	fl.BoolVar(&f.noResume, "no-resume", false, "start over even if an interrupted run exists")
	fl.StringVar(&f.progress, "progress", progressAuto, "progress display: auto, bar, log or none")
	fl.BoolVar(&f.failOnError, "fail-on-error", false, "exit non-zero when any file fails")

	cmd.MarkFlagsMutuallyExclusive("resume", "no-resume")
	cmd.MarkFlagsMutuallyExclusive("backup", "no-backup")

	return cmd
}

func runFix(ctx context.Context, o *opts.RootOpts, f *fixFlags, args []string) error {
	jobOpts, err := buildJobOptions(ctx, o, f, args)
	if err != nil {
		return err
	}

	ro, err := o.Config.RemoteOptions()
	if err != nil {
		return errors.Errorf("building transformer options: %w", err)
	}

	transformer, err := remote.New(ctx, o.Config.Transformer, ro)
	if err != nil {
		return errors.Errorf("creating transformer: %w", err)
	}
	jobOpts.Transformer = transformer

	coord, err := job.New(jobOpts)
	if err != nil {
		return errors.Errorf("creating job: %w", err)
	}

	res, runErr := coord.Run(ctx)
	if res == nil {
		return errors.Errorf("running job: %w", runErr)
	}

	renderResult(ctx, o, res, coord.Options().Layers)

	if runErr != nil {
		o.Console.Warningf("run interrupted, %d file(s) left; run fix again to resume or clean to start over", res.Summary.Remaining)
		return errors.Errorf("running job: %w", runErr)
	}
	if f.failOnError && res.Failed > 0 {
		return errors.Errorf("%d file(s) failed", res.Failed)
	}
	return nil
}

// 🔧 buildJobOptions layers the command line over the config
func buildJobOptions(ctx context.Context, o *opts.RootOpts, f *fixFlags, args []string) (job.Options, error) {
	cfg := o.Config

	jo, err := cfg.JobOptions()
	if err != nil {
		return job.Options{}, errors.Errorf("building job options: %w", err)
	}

	patterns := slices.Clone(args)
	if len(patterns) == 0 && len(f.include) == 0 {
		patterns = []string{"."}
	}
	jo.Discover.BaseDir = "."
	jo.Discover.Patterns = patterns
	jo.Discover.Include = slices.Clone(f.include)
	jo.Discover.Exclude = append(jo.Discover.Exclude, f.exclude...)
	jo.Discover.Recursive = f.recursive
	jo.Discover.NoDefaultExclude = f.noDefaultExclude

	if len(f.layers) > 0 {
		jo.Layers = slices.Clone(f.layers)
	}
	if f.batchSize > 0 {
		jo.BatchSize = f.batchSize
	}
	if f.concurrency > 0 {
		jo.MaxConcurrent = f.concurrency
	}
	switch {
	case f.backup:
		jo.Backup = true
	case f.noBackup:
		jo.Backup = false
	}
	jo.DryRun = f.dryRun

	reporter, err := newReporter(ctx, o, f.progress)
	if err != nil {
		return job.Options{}, err
	}
	jo.Reporter = reporter
	jo.ConfirmResume = confirmResume(o, f)

	return jo, nil
}

// 📊 newReporter picks the live progress display
func newReporter(ctx context.Context, o *opts.RootOpts, mode string) (progress.Reporter, error) {
	if mode == progressAuto {
		mode = progressLog
		if o.Interactive {
			mode = progressBar
		}
	}

	switch mode {
	case progressBar:
		return progress.NewBarReporter(o.Err, "fixing"), nil
	case progressLog:
		return progress.NewLogReporter(ctx), nil
	case progressNone:
		return progress.Nop{}, nil
	default:
		return nil, errors.Errorf("unknown progress mode %q, expected one of %s, %s, %s or %s",
			mode, progressAuto, progressBar, progressLog, progressNone)
	}
}

// 🔄 confirmResume decides what happens when an interrupted run is found
func confirmResume(o *opts.RootOpts, f *fixFlags) job.ResumeFunc {
	switch {
	case f.resume:
		return job.AlwaysResume
	case f.noResume:
		return job.NeverResume
	case !o.Interactive || o.Confirm == nil:
		return func(ctx context.Context, st *progress.State) (bool, error) {
			zerolog.Ctx(ctx).Warn().
				Str("job", st.ID).
				Int("remaining", len(st.Files.Remaining)).
				Msg("interrupted run found, starting over; pass --resume to continue it")
			return false, nil
		}
	}

	return func(ctx context.Context, st *progress.State) (bool, error) {
		desc := fmt.Sprintf("Started %s: %d completed, %d failed, %d remaining.",
			st.StartTime.Local().Format("2006-01-02 15:04:05"),
			st.Completed, st.Failed, len(st.Files.Remaining))
		return o.Confirm(ctx, "Resume the interrupted "+st.Operation+" run?", desc)
	}
}
