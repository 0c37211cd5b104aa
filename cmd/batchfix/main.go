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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/walteh/batchfix/cmd/batchfix/commands"
	"github.com/walteh/batchfix/cmd/batchfix/opts"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// the first signal cancels the job between batches, a second one kills
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootOpts := &opts.RootOpts{Out: os.Stdout, Err: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "batchfix",
		Short: "Apply a remote code transformation to many files, safely",
		Long: `batchfix sends source files to a transform service in small batches and
writes the results back atomically. Runs can be retried, backed up, previewed
with --dry-run and resumed after an interruption.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context())
			cmd.SetContext(ctx)
			if cmd.Name() == "version" {
				return nil
			}
			return newRootOpts(ctx, rootOpts)
		},
	}

	addRootFlags(rootCmd)

	rootCmd.AddCommand(
		commands.NewFixCmd(rootOpts),
		commands.NewStatusCmd(rootOpts),
		commands.NewCleanCmd(rootOpts),
		commands.NewRestoreCmd(rootOpts),
		newVersionCmd(),
	)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if rootOpts.Console != nil {
			rootOpts.Console.Errorf("%v", err)
		} else {
			logger := setupLogging(os.Stderr)
			logger.Error().Err(err).Msg("command failed")
		}
		return 1
	}
	return 0
}
