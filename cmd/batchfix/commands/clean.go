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

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/cmd/batchfix/opts"
	"github.com/walteh/batchfix/pkg/progress"
)

// NewCleanCmd creates the clean command
func NewCleanCmd(opts *opts.RootOpts) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Forget the interrupted run",
		Long: `Clean abandons the interrupted run so the next fix starts over.
It will:
1. Load the progress snapshot
2. Ask for confirmation when attached to a terminal, unless --force
3. Remove the snapshot

Files already written and backups are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), opts, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")

	return cmd
}

func runClean(ctx context.Context, o *opts.RootOpts, force bool) error {
	store := o.Store()

	st, err := store.Load(ctx)
	if err != nil && !errors.Is(err, progress.ErrCorruptSnapshot) {
		return errors.Errorf("loading snapshot: %w", err)
	}
	if st == nil && err == nil {
		o.Console.Info("nothing to clean")
		return nil
	}

	if st != nil && !force && o.Interactive && o.Confirm != nil {
		ok, err := o.Confirm(ctx, "Abandon the interrupted "+st.Operation+" run?",
			"Its remaining files will be processed from scratch next time.")
		if err != nil {
			return errors.Errorf("confirming clean: %w", err)
		}
		if !ok {
			o.Console.Info("kept the snapshot")
			return nil
		}
	}

	if err := progress.Abandon(ctx, store); err != nil {
		return errors.Errorf("abandoning run: %w", err)
	}

	o.Console.Successf("removed %s", store.Path())
	return nil
}
