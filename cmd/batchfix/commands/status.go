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
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
	"github.com/walteh/batchfix/pkg/progress"
)

// NewStatusCmd creates the status command
func NewStatusCmd(opts *opts.RootOpts) *cobra.Command {
	var showFiles bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the interrupted run, if any",
		Long: `Status reads the progress snapshot left behind by an interrupted run.
It will:
1. Load the snapshot from the configured progress file
2. Report how many files completed, failed and remain
3. List the remaining and failed files with --files`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts, showFiles)
		},
	}

	cmd.Flags().BoolVar(&showFiles, "files", false, "list remaining and failed files")

	return cmd
}

func runStatus(ctx context.Context, o *opts.RootOpts, showFiles bool) error {
	store := o.Store()

	st, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, progress.ErrCorruptSnapshot) {
			o.Console.Warningf("%s is unusable, run clean to remove it", store.Path())
			return nil
		}
		return errors.Errorf("loading snapshot: %w", err)
	}
	if st == nil {
		o.Console.Info("no interrupted run")
		return nil
	}

	writeStateTable(o.Out, st)

	if showFiles {
		for _, f := range st.Files.Failed {
			o.Console.Errorf("%s: %s", f, st.Errors[f])
		}
		for _, f := range st.Files.Remaining {
			o.Console.Info(f)
		}
	}

	if len(st.Files.Remaining) > 0 {
		o.Console.Infof("run %s again to resume, or clean to start over", st.Operation)
	}
	return nil
}

// writeStateTable renders one snapshot as a key/value table
func writeStateTable(w io.Writer, st *progress.State) {
	data := pterm.TableData{
		{"job", st.ID},
		{"operation", st.Operation},
		{"started", st.StartTime.Local().Format(time.DateTime)},
		{"last update", st.LastUpdate.Local().Format(time.DateTime)},
		{"total", strconv.Itoa(st.Total)},
		{"completed", strconv.Itoa(st.Completed)},
		{"failed", strconv.Itoa(st.Failed)},
		{"remaining", strconv.Itoa(len(st.Files.Remaining))},
	}
	_ = pterm.DefaultTable.WithWriter(w).WithData(data).Render()
}
