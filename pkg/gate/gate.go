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

// Package gate bounds how many tasks run at the same time.
//
// A Gate is a counting semaphore. Waiters are served in the order they
// arrived: when a permit is released it is handed to the oldest waiter
// rather than to whichever goroutine happens to ask next.
package gate

import (
	"context"
	"sync/atomic"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/semaphore"
)

// 🚦 Gate is a FIFO counting semaphore
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// 🏭 New creates a gate with the given number of permits (at least one)
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Capacity returns the configured number of permits
func (g *Gate) Capacity() int {
	return g.capacity
}

// InUse returns the number of permits currently held
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// 🔒 Acquire blocks until a permit is free or ctx is done
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return errors.Errorf("acquiring permit: %w", err)
	}
	g.inUse.Add(1)
	return nil
}

// 🔓 Release returns a permit. Releasing a permit that was never acquired panics.
func (g *Gate) Release() {
	g.sem.Release(1)
	g.inUse.Add(-1)
}

// 🎯 Do runs fn while holding a permit. The permit is released on every
// exit path, including a panic inside fn.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	return fn(ctx)
}
