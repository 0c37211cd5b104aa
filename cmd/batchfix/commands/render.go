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
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
	"github.com/walteh/batchfix/pkg/job"
	"github.com/walteh/batchfix/pkg/log"
)

// 📋 renderResult prints the per-file lines and the summary of a run
func renderResult(ctx context.Context, o *opts.RootOpts, res *job.Result, layers []int) {
	o.Console.StartJobOperation(ctx, log.JobOperation{
		Operation: res.Operation,
		Files:     len(res.Files),
		Layers:    layers,
		DryRun:    res.DryRun,
		Resumed:   res.Resumed,
	})
	for _, w := range res.Warnings {
		o.Console.Warning(w.String())
	}
	for _, fr := range res.Files {
		o.Console.LogFileOperation(ctx, fileOperation(fr, res.DryRun))
	}
	o.Console.EndJobOperation(ctx)
	o.Console.LogNewline()

	writeSummaryTable(o.Out, res)
	if len(res.Layers) > 0 {
		writeLayerTable(o.Out, res.Layers)
	}

	switch {
	case res.Failed > 0:
		o.Console.Errorf("%d file(s) failed", res.Failed)
	case res.DryRun:
		o.Console.Infof("dry run: %d file(s) would change", res.Changed)
	default:
		o.Console.Successf("%d file(s) changed in %s", res.Changed, res.Duration.Round(time.Millisecond))
	}
}

func fileOperation(fr job.FileResult, dryRun bool) log.FileOperation {
	op := log.FileOperation{
		Path:       fr.Path,
		IsChanged:  fr.Outcome == job.OutcomeChanged,
		IsDryRun:   dryRun,
		IsFailed:   fr.Outcome == job.OutcomeFailed,
		IsSkipped:  fr.Outcome == job.OutcomeSkipped,
		Insertions: fr.Insertions,
		Deletions:  fr.Deletions,
	}
	switch {
	case fr.Err != nil:
		op.Detail = fr.Err.Error()
	case fr.Attempts > 1:
		op.Detail = fmt.Sprintf("after %d attempts", fr.Attempts)
	}
	return op
}

// writeSummaryTable renders the outcome counters
func writeSummaryTable(w io.Writer, res *job.Result) {
	data := pterm.TableData{
		{"files", "changed", "unchanged", "failed", "skipped", "duration"},
		{
			strconv.Itoa(len(res.Files)),
			strconv.Itoa(res.Changed),
			strconv.Itoa(res.Unchanged),
			strconv.Itoa(res.Failed),
			strconv.Itoa(res.Skipped),
			res.Duration.Round(time.Millisecond).String(),
		},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// writeLayerTable renders per-layer statistics
func writeLayerTable(w io.Writer, layers []job.LayerStat) {
	data := pterm.TableData{{"layer", "name", "success", "skipped", "errors", "changes"}}
	for _, l := range layers {
		data = append(data, []string{
			strconv.Itoa(l.ID),
			l.Name,
			strconv.Itoa(l.Success),
			strconv.Itoa(l.Skipped),
			strconv.Itoa(l.Errors),
			strconv.Itoa(l.Changes),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithWriter(w).WithData(data).Render()
}
