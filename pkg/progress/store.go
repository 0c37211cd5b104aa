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
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/walteh/batchfix/pkg/atomicfile"
	"gitlab.com/tozd/go/errors"
)

// DefaultFile is where the snapshot lives, relative to the working directory
const DefaultFile = ".batchfix-progress.json"

// ErrCorruptSnapshot is returned when a snapshot exists but cannot be used
var ErrCorruptSnapshot = errors.Base("corrupt progress snapshot")

// 🗃️ Store persists the snapshot of the running job
type Store interface {
	// Load returns the stored snapshot, or nil when there is none
	Load(ctx context.Context) (*State, error)
	// Save replaces the stored snapshot
	Save(ctx context.Context, s *State) error
	// Clear removes the stored snapshot
	Clear(ctx context.Context) error
}

// 📁 FileStore keeps the snapshot in a single JSON file
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// 🏭 NewFileStore creates a store at path (DefaultFile when empty)
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFile
	}
	return &FileStore{path: path}
}

// Path returns the snapshot location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Errorf("reading snapshot: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Errorf("%w: decoding %s: %s", ErrCorruptSnapshot, s.path, err.Error())
	}
	if err := st.Validate(); err != nil {
		return nil, errors.Errorf("%w: checking %s: %s", ErrCorruptSnapshot, s.path, err.Error())
	}

	zerolog.Ctx(ctx).Debug().Str("path", s.path).Str("job", st.ID).Msg("snapshot loaded")
	return &st, nil
}

// Save writes the snapshot with a temp-file-then-rename so a crash halfway
// through never leaves a truncated snapshot behind
func (s *FileStore) Save(ctx context.Context, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Errorf("encoding snapshot: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		return errors.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("removing snapshot: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("path", s.path).Msg("snapshot cleared")
	return nil
}

// 🔍 ResumeOperation returns the stored snapshot when it belongs to operation
// and still has files left to process. It only reads; deciding whether to
// resume is up to the caller. An unusable snapshot is reported as nothing
// to resume.
func ResumeOperation(ctx context.Context, store Store, operation string) (*State, error) {
	st, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorruptSnapshot) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("ignoring unusable progress snapshot")
			return nil, nil
		}
		return nil, errors.Errorf("loading snapshot: %w", err)
	}

	if st == nil || st.Operation != operation || len(st.Files.Remaining) == 0 {
		return nil, nil
	}

	return st, nil
}

// 🗑️ Abandon drops the stored snapshot so the next run starts fresh
func Abandon(ctx context.Context, store Store) error {
	return store.Clear(ctx)
}
