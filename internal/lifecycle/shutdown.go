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
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultTimeoutSeconds is how long Phase 1 waits when the caller passes a
// negative timeout.
const DefaultTimeoutSeconds = 10

// ShutdownStatus is the overall outcome of Close.
type ShutdownStatus int

const (
	ShutdownSuccess ShutdownStatus = iota
	// ShutdownPartiallyFailed means every eligible process exited but
	// processes matching the target were left running because a configured
	// protected path excluded them.
	ShutdownPartiallyFailed
	ShutdownFailed
)

// String returns the status name used in logs, metrics and JSON output.
func (s ShutdownStatus) String() string {
	switch s {
	case ShutdownSuccess:
		return "success"
	case ShutdownPartiallyFailed:
		return "partially_failed"
	default:
		return "failed"
	}
}

// ShutdownResult is returned by Close. It is never nil-valued by panics:
// faults are folded into ShutdownFailed.
type ShutdownResult struct {
	Status ShutdownStatus

	// Remaining lists processes that could not be confirmed terminated.
	Remaining []ProcessHandle

	// Message is a one-line summary for the operator.
	Message string
}

// ShutdownOptions holds the timings of the protocol.
type ShutdownOptions struct {
	// PollInterval is the Phase 1 liveness check interval.
	PollInterval time.Duration

	// QuitToolTimeout bounds the Phase 0 utility invocation.
	QuitToolTimeout time.Duration

	// QuitGrace is waited after an accepted Phase 0 quit request.
	QuitGrace time.Duration

	// KillSettle is waited after the Phase 2 kill before re-checking.
	KillSettle time.Duration
}

// DefaultShutdownOptions returns the standard protocol timings.
func DefaultShutdownOptions() ShutdownOptions {
	return ShutdownOptions{
		PollInterval:    500 * time.Millisecond,
		QuitToolTimeout: 3 * time.Second,
		QuitGrace:       2 * time.Second,
		KillSettle:      1 * time.Second,
	}
}

// Recorder receives lifecycle outcomes, typically for metrics.
type Recorder interface {
	ShutdownCompleted(status string, duration time.Duration)
	SignalsSent(kind string, count int)
	LaunchCompleted(method string, ok bool)
}

type noopRecorder struct{}

func (noopRecorder) ShutdownCompleted(string, time.Duration) {}
func (noopRecorder) SignalsSent(string, int)                 {}
func (noopRecorder) LaunchCompleted(string, bool)            {}

var errStillRunning = errors.New("processes still running")

// Closer drives the three-phase shutdown of the target application:
// a cooperative app-level quit request, a cooperative termination signal
// with a bounded wait, and an optional forced kill.
type Closer struct {
	detector *Detector
	runner   CommandRunner
	clock    Clock
	opts     ShutdownOptions
	logger   *slog.Logger
	recorder Recorder
}

// NewCloser creates a closer that finds targets with detector and runs
// platform utilities with runner.
func NewCloser(detector *Detector, runner CommandRunner) *Closer {
	return &Closer{
		detector: detector,
		runner:   runner,
		clock:    RealClock{},
		opts:     DefaultShutdownOptions(),
		logger:   slog.Default(),
		recorder: noopRecorder{},
	}
}

// WithClock sets the time source.
func (c *Closer) WithClock(clock Clock) *Closer {
	c.clock = clock
	return c
}

// WithOptions overrides the protocol timings. Zero fields keep their defaults.
func (c *Closer) WithOptions(opts ShutdownOptions) *Closer {
	def := DefaultShutdownOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.QuitToolTimeout <= 0 {
		opts.QuitToolTimeout = def.QuitToolTimeout
	}
	if opts.QuitGrace <= 0 {
		opts.QuitGrace = def.QuitGrace
	}
	if opts.KillSettle <= 0 {
		opts.KillSettle = def.KillSettle
	}
	c.opts = opts
	return c
}

// WithLogger sets the logger.
func (c *Closer) WithLogger(logger *slog.Logger) *Closer {
	c.logger = logger
	return c
}

// WithRecorder sets the outcome recorder.
func (c *Closer) WithRecorder(recorder Recorder) *Closer {
	c.recorder = recorder
	return c
}

// Close shuts the target application down. It blocks for at most
// timeoutSeconds plus one poll interval and the fixed grace and settle
// periods, and always returns a result: faults become ShutdownFailed.
func (c *Closer) Close(timeoutSeconds int, forceKillAllowed bool) (result ShutdownResult) {
	start := c.clock.Now()
	app := "target application"

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unexpected fault while closing", "panic", r)
			result = ShutdownResult{
				Status:  ShutdownFailed,
				Message: fmt.Sprintf("error while closing %s processes: %v", app, r),
			}
		}
		c.recorder.ShutdownCompleted(result.Status.String(), c.clock.Now().Sub(start))
	}()

	app = c.detector.App().Name
	if timeoutSeconds < 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}

	platform := c.detector.Platform()
	if platform == PlatformOther {
		c.logger.Warn("unknown platform, using generic process handling", "platform", platform.String())
	}
	c.logger.Info(fmt.Sprintf("Attempting to close %s...", app))

	initial, _, err := c.detector.ShutdownTargets()
	if err != nil {
		return c.failed(fmt.Sprintf("error while closing %s processes: %v", app, err), nil)
	}
	if len(initial) == 0 {
		return c.closed(fmt.Sprintf("%s is not running", app))
	}

	c.requestQuit(platform)

	// Phase 1: cooperative termination signal.
	targets, protected, err := c.detector.ShutdownTargets()
	if err != nil {
		return c.failed(fmt.Sprintf("error while closing %s processes: %v", app, err), nil)
	}
	if len(targets) == 0 {
		return c.closedOrProtected(app, protected)
	}

	for _, h := range targets {
		c.logger.Info("found target process", "pid", h.PID, "name", h.Name, "exe", h.ExecutablePath)
	}
	c.logger.Info(fmt.Sprintf("Detected %d process(es) still running", len(targets)))

	c.logger.Info("Sending termination signal (SIGTERM)...")
	sent := c.signal(targets, c.detector.Table().Terminate)
	c.recorder.SignalsSent("terminate", sent)

	c.logger.Info(fmt.Sprintf("Waiting for processes to exit (up to %d seconds)...", timeoutSeconds))
	alive := c.waitForExit(targets, time.Duration(timeoutSeconds)*time.Second)
	if len(alive) == 0 {
		return c.closedOrProtected(app, protected)
	}

	c.logger.Warn(fmt.Sprintf("%d process(es) still running: %s", len(alive), joinHandles(alive)))

	// Phase 2: forced termination.
	if !forceKillAllowed {
		return c.failed("Some processes could not be closed, please close them manually and retry", alive)
	}

	c.logger.Info("Sending force kill signal (SIGKILL)...")
	sent = c.signal(alive, c.detector.Table().Kill)
	c.recorder.SignalsSent("kill", sent)

	c.clock.Sleep(c.opts.KillSettle)

	remaining := c.stillAlive(alive)
	if len(remaining) > 0 {
		return c.failed(fmt.Sprintf("Unable to terminate processes: %s", joinHandles(remaining)), remaining)
	}

	return c.closedOrProtected(app, protected)
}

// requestQuit runs Phase 0. Its outcome never decides the result.
func (c *Closer) requestQuit(platform Platform) {
	quit := c.detector.capabilities(platform).quit
	if quit == nil {
		return
	}

	res := quit(c)
	if !res.OK() {
		c.logger.Warn("graceful quit request failed, will use other methods",
			"status", res.Status.String(), "exit_code", res.ExitCode, "error", res.Err)
		return
	}

	c.logger.Info("Quit request sent, waiting for app to respond...")
	c.clock.Sleep(c.opts.QuitGrace)
}

// quitContext bounds a Phase 0 utility invocation.
func (c *Closer) quitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opts.QuitToolTimeout)
}

func quitViaAppleScript(c *Closer) ToolResult {
	c.logger.Info("Attempting graceful exit via AppleScript...")
	ctx, cancel := c.quitContext()
	defer cancel()

	script := fmt.Sprintf("tell application %q to quit", c.detector.App().Name)
	return c.runner.Run(ctx, "osascript", "-e", script)
}

func quitViaTaskkill(c *Closer) ToolResult {
	c.logger.Info("Attempting graceful exit via taskkill...")
	ctx, cancel := c.quitContext()
	defer cancel()

	// No /F: taskkill asks the windows to close instead of terminating.
	return c.runner.Run(ctx, "taskkill", "/IM", c.detector.App().ImageName(), "/T")
}

// signal applies send to every handle, skipping processes that already
// exited or refuse access. It returns how many signals were delivered.
func (c *Closer) signal(handles []ProcessHandle, send func(ProcessHandle) error) int {
	sent := 0
	for _, h := range handles {
		if err := send(h); err != nil {
			c.logger.Debug("signal not delivered", "pid", h.PID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// waitForExit polls liveness every PollInterval until every handle is gone
// or timeout has elapsed, and returns the handles still alive. The number
// of waits is ceil(timeout/interval), so the loop blocks for at least
// timeout and less than timeout plus one interval.
func (c *Closer) waitForExit(targets []ProcessHandle, timeout time.Duration) []ProcessHandle {
	alive := targets
	retries := uint64(math.Ceil(float64(timeout) / float64(c.opts.PollInterval)))
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.PollInterval), retries)

	check := func() error {
		alive = c.stillAlive(targets)
		if len(alive) == 0 {
			return nil
		}
		return errStillRunning
	}

	_ = backoff.RetryNotifyWithTimer(check, b, nil, newClockTimer(c.clock))
	return alive
}

func (c *Closer) stillAlive(handles []ProcessHandle) []ProcessHandle {
	var alive []ProcessHandle
	table := c.detector.Table()
	for _, h := range handles {
		if table.Alive(h) {
			alive = append(alive, h)
		}
	}
	return alive
}

func (c *Closer) closed(msg string) ShutdownResult {
	c.logger.Info(msg)
	return ShutdownResult{Status: ShutdownSuccess, Message: msg}
}

func (c *Closer) closedOrProtected(app string, protected int) ShutdownResult {
	if protected > 0 {
		msg := fmt.Sprintf("All eligible %s processes have been closed; %d protected process(es) left running", app, protected)
		c.logger.Warn(msg)
		return ShutdownResult{Status: ShutdownPartiallyFailed, Message: msg}
	}
	return c.closed(fmt.Sprintf("All %s processes have been closed", app))
}

func (c *Closer) failed(msg string, remaining []ProcessHandle) ShutdownResult {
	c.logger.Error(msg)
	return ShutdownResult{Status: ShutdownFailed, Remaining: remaining, Message: msg}
}

func joinHandles(handles []ProcessHandle) string {
	parts := make([]string, len(handles))
	for i, h := range handles {
		parts[i] = h.String()
	}
	return strings.Join(parts, ", ")
}
