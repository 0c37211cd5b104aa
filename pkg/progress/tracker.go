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
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Tracker
type Option func(*Tracker)

// WithStore persists every transition to store
func WithStore(store Store) Option {
	return func(t *Tracker) { t.store = store }
}

// WithReporter presents live progress through r
func WithReporter(r Reporter) Option {
	return func(t *Tracker) { t.reporter = r }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithAutoPersist toggles snapshot writes and the final cleanup (default on)
func WithAutoPersist(enabled bool) Option {
	return func(t *Tracker) { t.autoPersist = enabled }
}

// 🧭 Tracker owns the mutable state of one job. Each file moves at most
// once, from pending to completed or failed. Every move is persisted.
type Tracker struct {
	store       Store
	reporter    Reporter
	now         func() time.Time
	autoPersist bool

	mu        sync.Mutex
	id        string
	operation string
	order     []string
	states    map[string]FileState
	reasons   map[string]string
	completed int
	failed    int
	started   time.Time
	updated   time.Time
	running   bool
	summary   *Summary
}

// 🏭 NewTracker tracks files for operation. Duplicate paths are tracked once.
func NewTracker(operation string, files []string, opts ...Option) *Tracker {
	t := &Tracker{
		reporter:    Nop{},
		now:         time.Now,
		autoPersist: true,
		operation:   operation,
		states:      make(map[string]FileState, len(files)),
		reasons:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.order = make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := t.states[f]; ok {
			continue
		}
		t.states[f] = StatePending
		t.order = append(t.order, f)
	}

	t.started = t.now()
	t.updated = t.started
	t.id = fmt.Sprintf("%s-%d", operation, t.started.UnixMilli())

	return t
}

// ID returns the job identifier
func (t *Tracker) ID() string {
	return t.id
}

// ▶️ Start persists the initial snapshot and begins reporting
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.running = true
	t.started = t.now()
	t.updated = t.started

	t.persist(ctx)
	t.reporter.Start(len(t.order))
}

// ✅ MarkCompleted moves a pending file to completed. It reports false and
// changes nothing when the file is unknown or already settled.
func (t *Tracker) MarkCompleted(ctx context.Context, file string) bool {
	return t.mark(ctx, file, StateCompleted, "")
}

// ❌ MarkFailed moves a pending file to failed, remembering why
func (t *Tracker) MarkFailed(ctx context.Context, file string, reason string) bool {
	return t.mark(ctx, file, StateFailed, reason)
}

func (t *Tracker) mark(ctx context.Context, file string, to FileState, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[file]; !ok || state != StatePending {
		return false
	}

	t.states[file] = to
	switch to {
	case StateCompleted:
		t.completed++
	case StateFailed:
		t.failed++
		t.reasons[file] = reason
	}
	t.updated = t.now()

	t.persist(ctx)
	t.reporter.Update(t.stats())

	return true
}

// 🏁 Complete ends the job and reports the summary. A successful job clears
// its snapshot; an unsuccessful one keeps it as the resume point.
func (t *Tracker) Complete(ctx context.Context, success bool) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.summary != nil {
		return *t.summary
	}

	t.updated = t.now()
	s := Summary{
		ID:        t.id,
		Operation: t.operation,
		Total:     len(t.order),
		Completed: t.completed,
		Failed:    t.failed,
		Remaining: len(t.order) - t.completed - t.failed,
		Elapsed:   t.updated.Sub(t.started),
		Success:   success,
	}
	t.summary = &s
	t.running = false

	t.reporter.Finish(s)

	if t.autoPersist && t.store != nil {
		if success {
			if err := t.store.Clear(ctx); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("clearing progress snapshot")
			}
		} else {
			t.persist(ctx)
		}
	}

	return s
}

// State returns the current state of one file
func (t *Tracker) State(file string) (FileState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[file]
	return s, ok
}

// 📸 Snapshot builds the persisted form of the current state
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshot()
}

// Stats returns live counters and an ETA
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats()
}

func (t *Tracker) snapshot() State {
	st := State{
		ID:         t.id,
		Operation:  t.operation,
		Total:      len(t.order),
		Completed:  t.completed,
		Failed:     t.failed,
		StartTime:  t.started,
		LastUpdate: t.updated,
		Files: Files{
			Completed: make([]string, 0, t.completed),
			Failed:    make([]string, 0, t.failed),
			Remaining: make([]string, 0, len(t.order)-t.completed-t.failed),
		},
	}

	for _, f := range t.order {
		switch t.states[f] {
		case StateCompleted:
			st.Files.Completed = append(st.Files.Completed, f)
		case StateFailed:
			st.Files.Failed = append(st.Files.Failed, f)
		default:
			st.Files.Remaining = append(st.Files.Remaining, f)
		}
	}

	if len(t.reasons) > 0 {
		st.Errors = make(map[string]string, len(t.reasons))
		for f, r := range t.reasons {
			st.Errors[f] = r
		}
	}

	return st
}

func (t *Tracker) stats() Stats {
	s := Stats{
		Total:     len(t.order),
		Completed: t.completed,
		Failed:    t.failed,
		Elapsed:   t.now().Sub(t.started),
	}
	if done := s.Done(); done > 0 && done < s.Total {
		perFile := s.Elapsed / time.Duration(done)
		s.ETA = perFile * time.Duration(s.Total-done)
	}
	return s
}

// persist must be called with t.mu held. Failures are logged and otherwise
// ignored so that a disk hiccup never stops the job itself.
func (t *Tracker) persist(ctx context.Context) {
	if !t.autoPersist || t.store == nil {
		return
	}

	st := t.snapshot()
	if err := t.store.Save(ctx, &st); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("job", t.id).Msg("saving progress snapshot")
	}
}
