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

package opts

import (
	"context"
	"io"

	"github.com/walteh/batchfix/pkg/config"
	"github.com/walteh/batchfix/pkg/log"
	"github.com/walteh/batchfix/pkg/progress"
)

// RootOpts contains shared options used by all commands. It is filled in
// once flags are parsed, before any command runs.
type RootOpts struct {
	Config *config.Config
	// Console prints user facing lines
	Console *log.Logger
	// Out is where tables and summaries go
	Out io.Writer
	// Err is where live progress goes
	Err io.Writer
	// Interactive is set when both stdin and stdout are terminals
	Interactive bool
	// Confirm asks a yes/no question, only used when Interactive
	Confirm func(ctx context.Context, title, description string) (bool, error)
}

// Store opens the progress snapshot configured for this project
func (o *RootOpts) Store() *progress.FileStore {
	return progress.NewFileStore(o.Config.ProgressFile)
}
