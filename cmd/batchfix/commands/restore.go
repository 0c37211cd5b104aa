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
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
	"github.com/walteh/batchfix/pkg/backup"
)

// NewRestoreCmd creates the restore command
func NewRestoreCmd(opts *opts.RootOpts) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore <file>...",
		Short: "Restore files from their newest backup",
		Long: `Restore puts back the copy taken by fix --backup before a file was overwritten.
It will:
1. Find the backups of each file in its backup directory
2. Copy the newest one over the file atomically

With --list the backups are shown and nothing is restored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.Context(), opts, args, list)
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list backups instead of restoring")

	return cmd
}

func runRestore(ctx context.Context, o *opts.RootOpts, files []string, list bool) error {
	mgr := backup.New(o.Config.BackupOptions())

	var failed int
	for _, file := range files {
		if list {
			backups, err := mgr.List(ctx, file)
			if err != nil {
				return errors.Errorf("listing backups of %s: %w", file, err)
			}
			if len(backups) == 0 {
				o.Console.Warningf("%s: no backups in %s", file, mgr.DirFor(file))
				continue
			}
			writeBackupTable(o.Out, file, backups)
			continue
		}

		used, err := mgr.Restore(ctx, file)
		if err != nil {
			failed++
			if errors.Is(err, backup.ErrNoBackup) {
				o.Console.Errorf("%s: no backup found in %s", file, mgr.DirFor(file))
				continue
			}
			o.Console.Errorf("%s: %v", file, err)
			continue
		}
		o.Console.Successf("%s restored from %s", file, used)
	}

	if failed > 0 {
		return errors.Errorf("%d of %d file(s) not restored", failed, len(files))
	}
	return nil
}

// writeBackupTable renders the backups of one file, newest first
func writeBackupTable(w io.Writer, file string, backups []backup.Backup) {
	data := pterm.TableData{{file, "created"}}
	for _, b := range backups {
		data = append(data, []string{b.Path, b.CreatedAt.Local().Format(time.DateTime)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}
