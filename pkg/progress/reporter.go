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

package progress

import (
	"context"
	"io"
	"sync"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 📺 Reporter presents live progress to the user
type Reporter interface {
	Start(total int)
	Update(s Stats)
	Finish(s Summary)
}

// Nop discards all progress
type Nop struct{}

func (Nop) Start(int) {}

func (Nop) Update(Stats) {}

func (Nop) Finish(Summary) {}

// 📝 LogReporter writes one zerolog line per settled file
type LogReporter struct {
	logger *zerolog.Logger
}

// NewLogReporter reports through the logger stored in ctx
func NewLogReporter(ctx context.Context) *LogReporter {
	return &LogReporter{logger: zerolog.Ctx(ctx)}
}

func (r *LogReporter) Start(total int) {
	r.logger.Info().Int("total", total).Msg(Stats{Total: total}.String())
}

func (r *LogReporter) Update(s Stats) {
	r.logger.Info().
		Int("completed", s.Completed).
		Int("failed", s.Failed).
		Int("total", s.Total).
		Dur("eta", s.ETA).
		Msg(s.String())
}

func (r *LogReporter) Finish(s Summary) {
	ev := r.logger.Info()
	if s.Failed > 0 || !s.Success {
		ev = r.logger.Warn()
	}
	ev.Str("job", s.ID).
		Int("completed", s.Completed).
		Int("failed", s.Failed).
		Dur("elapsed", s.Elapsed).
		Msg(s.String())
}

// 📊 BarReporter draws a pterm progress bar
type BarReporter struct {
	w     io.Writer
	title string

	mu   sync.Mutex
	bar  *pterm.ProgressbarPrinter
	done int
}

// NewBarReporter draws to w with the given title
func NewBarReporter(w io.Writer, title string) *BarReporter {
	return &BarReporter{w: w, title: title}
}

func (r *BarReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(r.title).
		WithWriter(r.w).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return
	}
	r.bar = bar
}

func (r *BarReporter) Update(s Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	if delta := s.Done() - r.done; delta > 0 {
		r.bar.Add(delta)
		r.done = s.Done()
	}
	title := r.title
	if s.Failed > 0 {
		title = pterm.Sprintf("%s (%d failed)", r.title, s.Failed)
	}
	r.bar.UpdateTitle(title)
}

func (r *BarReporter) Finish(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	_, _ = r.bar.Stop()
	r.bar = nil
}
