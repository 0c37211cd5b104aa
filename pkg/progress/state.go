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
	"fmt"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 📊 FileState is where a single file is in its lifecycle
type FileState int

const (
	StatePending   FileState = iota // not processed yet
	StateCompleted                  // processed successfully
	StateFailed                     // gave up on this file
)

// String returns a string representation of FileState
func (s FileState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// 📄 Files splits the input of a job by file state. Each list keeps the
// original input order.
type Files struct {
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`
	Remaining []string `json:"remaining"`
}

// 💾 State is the persisted snapshot of a job
type State struct {
	ID         string            `json:"id"`
	Operation  string            `json:"operation"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	StartTime  time.Time         `json:"startTime"`
	LastUpdate time.Time         `json:"lastUpdate"`
	Files      Files             `json:"files"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// ✅ Validate checks the bookkeeping invariants of a snapshot: the three file
// lists are disjoint, add up to Total, and agree with the counters.
func (s *State) Validate() error {
	if s.Operation == "" {
		return errors.New("operation is empty")
	}

	n := len(s.Files.Completed) + len(s.Files.Failed) + len(s.Files.Remaining)
	if n != s.Total {
		return errors.Errorf("file lists hold %d entries, total is %d", n, s.Total)
	}
	if len(s.Files.Completed) != s.Completed {
		return errors.Errorf("completed counter is %d, list holds %d", s.Completed, len(s.Files.Completed))
	}
	if len(s.Files.Failed) != s.Failed {
		return errors.Errorf("failed counter is %d, list holds %d", s.Failed, len(s.Files.Failed))
	}

	seen := make(map[string]string, n)
	for name, list := range map[string][]string{
		"completed": s.Files.Completed,
		"failed":    s.Files.Failed,
		"remaining": s.Files.Remaining,
	} {
		for _, f := range list {
			if prev, ok := seen[f]; ok {
				return errors.Errorf("%s is listed as both %s and %s", f, prev, name)
			}
			seen[f] = name
		}
	}

	return nil
}

// 📈 Stats is a point-in-time view of a running job
type Stats struct {
	Total     int
	Completed int
	Failed    int
	Elapsed   time.Duration
	// ETA is the estimated time left, zero until the first file settles
	ETA time.Duration
}

// Done returns how many files have settled
func (s Stats) Done() int {
	return s.Completed + s.Failed
}

// Percent returns how much of the job has settled, from 0 to 100
func (s Stats) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Done()) / float64(s.Total) * 100
}

// String formats the stats as a one-line progress message
func (s Stats) String() string {
	icon := "⏳"
	if s.Done() >= s.Total {
		icon = "✅"
	}
	msg := fmt.Sprintf("%s Progress: %d/%d (%.0f%%)", icon, s.Done(), s.Total, s.Percent())
	if s.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.ETA > 0 {
		msg += fmt.Sprintf(", eta %s", s.ETA.Round(time.Second))
	}
	return msg
}

// 🏁 Summary describes a finished job
type Summary struct {
	ID        string
	Operation string
	Total     int
	Completed int
	Failed    int
	Remaining int
	Elapsed   time.Duration
	Success   bool
}

// String formats the summary as a one-line message
func (s Summary) String() string {
	msg := fmt.Sprintf("%s finished in %s: %d completed, %d failed",
		s.Operation, s.Elapsed.Round(time.Millisecond), s.Completed, s.Failed)
	if s.Remaining > 0 {
		msg += fmt.Sprintf(", %d not processed", s.Remaining)
	}
	return msg
}
