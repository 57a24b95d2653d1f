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
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrReadinessTimeout is returned when the application does not appear in time.
	ErrReadinessTimeout = errors.New("application did not start before the timeout")

	errNotYetRunning = errors.New("not running yet")
)

// ReadinessWaiter polls the detector until the application shows up in the
// process table. It backs off exponentially between checks.
type ReadinessWaiter struct {
	detector        *Detector
	clock           Clock
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
}

// NewReadinessWaiter creates a waiter. Default backoff: 100ms initial,
// 2x multiplier, 2s max interval.
func NewReadinessWaiter(detector *Detector) *ReadinessWaiter {
	return &ReadinessWaiter{
		detector:        detector,
		clock:           RealClock{},
		initialInterval: 100 * time.Millisecond,
		maxInterval:     2 * time.Second,
		multiplier:      2.0,
	}
}

// WithClock sets the time source.
func (w *ReadinessWaiter) WithClock(clock Clock) *ReadinessWaiter {
	w.clock = clock
	return w
}

// WithBackoff configures custom backoff parameters.
func (w *ReadinessWaiter) WithBackoff(initial, max time.Duration, multiplier float64) *ReadinessWaiter {
	w.initialInterval = initial
	w.maxInterval = max
	w.multiplier = multiplier
	return w
}

// WaitUntilRunning returns nil once the application is running, or
// ErrReadinessTimeout after timeout.
func (w *ReadinessWaiter) WaitUntilRunning(timeout time.Duration) error {
	return w.WaitUntilRunningWithCallback(timeout, nil)
}

// WaitUntilRunningWithCallback is like WaitUntilRunning but calls callback
// after every unsuccessful attempt. This is useful for progress output.
func (w *ReadinessWaiter) WaitUntilRunningWithCallback(timeout time.Duration, callback func(attempt int, next time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialInterval
	b.MaxInterval = w.maxInterval
	b.Multiplier = w.multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	b.Clock = w.clock

	attempts := 0
	check := func() error {
		attempts++
		if w.detector.IsRunning() {
			return nil
		}
		return errNotYetRunning
	}

	var notify backoff.Notify
	if callback != nil {
		notify = func(_ error, next time.Duration) {
			callback(attempts, next)
		}
	}

	if err := backoff.RetryNotifyWithTimer(check, b, notify, newClockTimer(w.clock)); err != nil {
		return fmt.Errorf("%w after %d attempts", ErrReadinessTimeout, attempts)
	}
	return nil
}
