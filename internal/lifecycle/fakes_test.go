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
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.slept {
		sum += d
	}
	return sum
}

// fakeProc is one simulated process.
type fakeProc struct {
	handle ProcessHandle

	// exitAfterTerm is how long the process takes to exit after SIGTERM.
	// Negative means it ignores SIGTERM.
	exitAfterTerm time.Duration

	// survivesKill makes SIGKILL ineffective (zombie, permission).
	survivesKill bool

	// denySignals makes every signal fail with an access error.
	denySignals bool

	// startAt hides the process until the clock reaches it.
	startAt time.Time

	exitAt     time.Time
	dead       bool
	terminated int
	killed     int
}

// fakeTable is an in-memory process table driven by a fakeClock.
type fakeTable struct {
	clock        *fakeClock
	procs        []*fakeProc
	listErr      error
	enumerations int
	panicOnList  bool
}

var errAccessDenied = errors.New("access denied")

func newFakeTable(clock *fakeClock, procs ...*fakeProc) *fakeTable {
	return &fakeTable{clock: clock, procs: procs}
}

func (t *fakeTable) find(h ProcessHandle) *fakeProc {
	for _, p := range t.procs {
		if p.handle.PID == h.PID {
			return p
		}
	}
	return nil
}

func (t *fakeTable) alive(p *fakeProc) bool {
	if p.dead {
		return false
	}
	if !p.startAt.IsZero() && t.clock.Now().Before(p.startAt) {
		return false
	}
	if !p.exitAt.IsZero() && !t.clock.Now().Before(p.exitAt) {
		p.dead = true
		return false
	}
	return true
}

func (t *fakeTable) Processes() iter.Seq2[ProcessHandle, error] {
	return func(yield func(ProcessHandle, error) bool) {
		t.enumerations++
		if t.panicOnList {
			panic("process table corrupted")
		}
		if t.listErr != nil {
			yield(ProcessHandle{}, t.listErr)
			return
		}
		for _, p := range t.procs {
			if !t.alive(p) {
				continue
			}
			if !yield(p.handle, nil) {
				return
			}
		}
	}
}

func (t *fakeTable) Alive(h ProcessHandle) bool {
	p := t.find(h)
	return p != nil && t.alive(p)
}

func (t *fakeTable) Terminate(h ProcessHandle) error {
	p := t.find(h)
	if p == nil || !t.alive(p) {
		return ErrProcessNotRunning
	}
	if p.denySignals {
		return errAccessDenied
	}
	p.terminated++
	if p.exitAfterTerm >= 0 && p.exitAt.IsZero() {
		p.exitAt = t.clock.Now().Add(p.exitAfterTerm)
		if p.exitAfterTerm == 0 {
			p.dead = true
		}
	}
	return nil
}

func (t *fakeTable) Kill(h ProcessHandle) error {
	p := t.find(h)
	if p == nil || !t.alive(p) {
		return ErrProcessNotRunning
	}
	if p.denySignals {
		return errAccessDenied
	}
	p.killed++
	if !p.survivesKill {
		p.dead = true
	}
	return nil
}

func (t *fakeTable) totalSignals() int {
	n := 0
	for _, p := range t.procs {
		n += p.terminated + p.killed
	}
	return n
}

// runCall records one CommandRunner invocation.
type runCall struct {
	name     string
	args     []string
	deadline time.Duration
	spawn    bool
}

// fakeRunner returns canned results per tool name.
type fakeRunner struct {
	results  map[string]ToolResult
	spawnErr map[string]error
	calls    []runCall
	onRun    func(name string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results:  map[string]ToolResult{},
		spawnErr: map[string]error{},
	}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ToolResult {
	call := runCall{name: name, args: args}
	if dl, ok := ctx.Deadline(); ok {
		call.deadline = time.Until(dl).Round(time.Second)
	}
	r.calls = append(r.calls, call)
	if r.onRun != nil {
		r.onRun(name)
	}
	if res, ok := r.results[name]; ok {
		return res
	}
	return ToolResult{Status: ToolOK}
}

func (r *fakeRunner) Spawn(name string, args ...string) error {
	r.calls = append(r.calls, runCall{name: name, args: args, spawn: true})
	return r.spawnErr[name]
}

func (r *fakeRunner) callsTo(name string) []runCall {
	var out []runCall
	for _, c := range r.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// recordingRecorder captures Recorder calls.
type recordingRecorder struct {
	shutdowns []string
	signals   map[string]int
	launches  []string
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{signals: map[string]int{}}
}

func (r *recordingRecorder) ShutdownCompleted(status string, _ time.Duration) {
	r.shutdowns = append(r.shutdowns, status)
}

func (r *recordingRecorder) SignalsSent(kind string, count int) {
	r.signals[kind] += count
}

func (r *recordingRecorder) LaunchCompleted(method string, ok bool) {
	state := "fail"
	if ok {
		state = "ok"
	}
	r.launches = append(r.launches, method+":"+state)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
