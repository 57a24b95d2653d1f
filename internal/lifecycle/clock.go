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
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock is the time source for every wait in this package.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// clockTimer adapts a Clock to backoff.Timer. The wait happens in Start,
// which suits the single goroutine that drives a retry loop.
type clockTimer struct {
	clock Clock
	c     chan time.Time
}

var _ backoff.Timer = (*clockTimer)(nil)

func newClockTimer(clock Clock) *clockTimer {
	return &clockTimer{clock: clock}
}

func (t *clockTimer) Start(d time.Duration) {
	t.clock.Sleep(d)
	t.c = make(chan time.Time, 1)
	t.c <- t.clock.Now()
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}
