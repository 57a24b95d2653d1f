// Copyright 2025 Tom Barlow
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

package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReadinessFixture(procs ...*fakeProc) (*ReadinessWaiter, *fakeClock, *fakeTable) {
	clock := newFakeClock()
	table := newFakeTable(clock, procs...)
	detector := testDetector(PlatformLinux, table, SelfExclusion{})
	return NewReadinessWaiter(detector).WithClock(clock), clock, table
}

func TestWaitUntilRunning_AlreadyRunning(t *testing.T) {
	w, clock, _ := newReadinessFixture(target(100, 0))

	require.NoError(t, w.WaitUntilRunning(5*time.Second))
	assert.Zero(t, clock.total())
}

func TestWaitUntilRunning_AppearsLater(t *testing.T) {
	clock := newFakeClock()
	late := target(100, 0)
	late.startAt = clock.Now().Add(650 * time.Millisecond)
	table := newFakeTable(clock, late)
	w := NewReadinessWaiter(testDetector(PlatformLinux, table, SelfExclusion{})).WithClock(clock)

	var waits []time.Duration
	err := w.WaitUntilRunningWithCallback(5*time.Second, func(_ int, next time.Duration) {
		waits = append(waits, next)
	})

	require.NoError(t, err)
	// 100ms, 200ms, 400ms: visible at 700ms.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, waits)
	assert.Equal(t, 700*time.Millisecond, clock.total())
}

func TestWaitUntilRunning_Timeout(t *testing.T) {
	w, clock, _ := newReadinessFixture()

	err := w.WaitUntilRunning(3 * time.Second)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadinessTimeout))
	assert.LessOrEqual(t, clock.total(), 3*time.Second)
}

func TestWaitUntilRunning_CustomBackoff(t *testing.T) {
	w, clock, _ := newReadinessFixture()
	w.WithBackoff(time.Second, time.Second, 1.0)

	var attempts int
	err := w.WaitUntilRunningWithCallback(3500*time.Millisecond, func(attempt int, _ time.Duration) {
		attempts = attempt
	})

	require.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3*time.Second, clock.total())
}
