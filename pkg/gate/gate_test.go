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

package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/batchfix/pkg/gate"
	"gitlab.com/tozd/go/errors"
)

func TestGateBoundsInFlightTasks(t *testing.T) {
	g := gate.New(2)
	ctx := context.Background()

	var inFlight, maxInFlight atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(ctx, func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInFlight.Load(), int64(2), "no more than capacity tasks may run at once")
	assert.Equal(t, int64(2), maxInFlight.Load(), "both permits should have been used")
	assert.Equal(t, 0, g.InUse())
}

func TestGateServesWaitersInOrder(t *testing.T) {
	g := gate.New(1)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !assert.NoError(t, g.Acquire(ctx)) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			g.Release()
		}(i)
		// give the waiter time to queue up before the next one arrives
		time.Sleep(20 * time.Millisecond)
	}

	g.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestGateReleasesOnFailure(t *testing.T) {
	g := gate.New(1)
	ctx := context.Background()

	boom := errors.New("boom")
	err := g.Do(ctx, func(ctx context.Context) error {
		assert.Equal(t, 1, g.InUse())
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.InUse())

	assert.Panics(t, func() {
		_ = g.Do(ctx, func(ctx context.Context) error {
			panic("task exploded")
		})
	})
	assert.Equal(t, 0, g.InUse(), "permit must be returned after a panic")

	// the single permit is still usable
	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))
}

func TestGateOverReleaseKeepsCount(t *testing.T) {
	g := gate.New(2)
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()

	assert.Panics(t, g.Release)
	assert.Equal(t, 0, g.InUse())

	require.NoError(t, g.Acquire(context.Background()))
	assert.Equal(t, 1, g.InUse())
	g.Release()
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := gate.New(1)
	require.NoError(t, g.Acquire(context.Background()))
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.InUse())
}

func TestGateClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, gate.New(0).Capacity())
	assert.Equal(t, 1, gate.New(-3).Capacity())
	assert.Equal(t, 4, gate.New(4).Capacity())
}
