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

// Package app implements the status, start and stop commands that drive the
// controlled desktop application.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/config"
	"github.com/tombee/agctl/internal/lifecycle"
	"github.com/tombee/agctl/internal/log"
	"github.com/tombee/agctl/internal/metrics"
)

// Deps are the OS-facing collaborators of an Env.
type Deps struct {
	Platform lifecycle.Platform
	Table    lifecycle.ProcessTable
	Runner   lifecycle.CommandRunner
	Self     lifecycle.SelfExclusion
	Clock    lifecycle.Clock

	// Locator overrides the Windows executable lookup when set.
	Locator lifecycle.Locator

	Out io.Writer
	Err io.Writer

	// NewOperationID generates the ID that ties log lines, the lifecycle
	// log and JSON output of one invocation together.
	NewOperationID func() string
}

// SystemDeps returns the collaborators backed by the running OS.
func SystemDeps(out, errOut io.Writer) Deps {
	return Deps{
		Platform:       lifecycle.CurrentPlatform(),
		Table:          lifecycle.NewSystemProcessTable(),
		Runner:         lifecycle.NewExecRunner(nil),
		Self:           lifecycle.CurrentSelf(),
		Clock:          lifecycle.RealClock{},
		Out:            out,
		Err:            errOut,
		NewOperationID: uuid.NewString,
	}
}

// Env is everything one agctl invocation needs to query, start and stop
// the application.
type Env struct {
	Config   *config.Config
	App      lifecycle.AppSpec
	Platform lifecycle.Platform
	Logger   *slog.Logger

	Detector *lifecycle.Detector
	Closer   *lifecycle.Closer
	Launcher *lifecycle.Launcher
	Waiter   *lifecycle.ReadinessWaiter
	Lock     *lifecycle.OperationLock
	Audit    *lifecycle.LifecycleLogger
	Metrics  *metrics.Collector

	clock lifecycle.Clock
	newID func() string
	out   io.Writer
	err   io.Writer
}

// LoadEnv loads the configuration named by --config and wires the system
// collaborators.
func LoadEnv(out, errOut io.Writer) (*Env, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, shared.NewUsageError("invalid configuration", err)
	}
	return NewEnv(cfg, SystemDeps(out, errOut))
}

// NewEnv wires the lifecycle components for cfg.
func NewEnv(cfg *config.Config, deps Deps) (*Env, error) {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Err == nil {
		deps.Err = os.Stderr
	}
	if deps.Clock == nil {
		deps.Clock = lifecycle.RealClock{}
	}
	if deps.NewOperationID == nil {
		deps.NewOperationID = uuid.NewString
	}

	appSpec := cfg.AppSpec()
	logger := log.WithTarget(newLogger(cfg, deps.Err), appSpec.Name, deps.Platform.String())

	detector, err := lifecycle.NewDetector(deps.Platform, appSpec, deps.Table, deps.Self).
		WithLogger(log.WithComponent(logger, "detector")).
		WithProtectedPaths(cfg.Shutdown.ProtectedPaths)
	if err != nil {
		return nil, shared.NewUsageError("invalid shutdown.protected_paths", err)
	}

	collector := metrics.NewCollector()

	closer := lifecycle.NewCloser(detector, deps.Runner).
		WithClock(deps.Clock).
		WithOptions(cfg.ShutdownOptions()).
		WithLogger(log.WithComponent(logger, "shutdown")).
		WithRecorder(collector)

	launcher := lifecycle.NewLauncher(deps.Platform, appSpec, deps.Runner).
		WithLogger(log.WithComponent(logger, "launch")).
		WithRecorder(collector)
	if deps.Locator != nil {
		launcher.WithLocator(deps.Locator)
	}

	return &Env{
		Config:   cfg,
		App:      appSpec,
		Platform: deps.Platform,
		Logger:   logger,
		Detector: detector,
		Closer:   closer,
		Launcher: launcher,
		Waiter:   lifecycle.NewReadinessWaiter(detector).WithClock(deps.Clock),
		Lock:     lifecycle.NewOperationLock(cfg.LockPath()),
		Audit:    lifecycle.NewLifecycleLogger(cfg.LifecycleLogPath(), appSpec, deps.Platform),
		Metrics:  collector,
		clock:    deps.Clock,
		newID:    deps.NewOperationID,
		out:      deps.Out,
		err:      deps.Err,
	}, nil
}

// newLogger builds the diagnostic logger: config file first, then the
// environment, then --verbose/--quiet.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	lc := log.ApplyEnv(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    w,
		AddSource: cfg.Log.AddSource,
	})

	switch {
	case shared.GetVerbose():
		lc.Level = "debug"
	case shared.GetQuiet():
		lc.Level = "error"
	}

	return log.New(lc)
}

// beginOperation tags the component loggers with a fresh operation ID.
func (e *Env) beginOperation() (string, *slog.Logger) {
	opID := e.newID()
	logger := log.WithOperationID(e.Logger, opID)

	e.Detector.WithLogger(log.WithComponent(logger, "detector"))
	e.Closer.WithLogger(log.WithComponent(logger, "shutdown"))
	e.Launcher.WithLogger(log.WithComponent(logger, "launch"))

	return opID, logger
}

// acquireLock takes the operation lock and returns its release function.
func (e *Env) acquireLock(opID string) (func(), error) {
	if err := e.Lock.Acquire(os.Getpid()); err != nil {
		if errors.Is(err, lifecycle.ErrLockHeld) {
			holder, _ := e.Lock.Holder()
			if logErr := e.Audit.LogLockHeld(opID, holder); logErr != nil {
				e.warnf("failed to write lifecycle log: %v", logErr)
			}
			return nil, shared.NewLockHeldError("cannot run two agctl operations at once", err)
		}
		return nil, shared.NewOperationError("failed to acquire operation lock", err)
	}

	return func() {
		if err := e.Lock.Release(); err != nil {
			e.warnf("failed to release operation lock: %v", err)
		}
	}, nil
}

// flushMetrics writes the textfile export when configured.
func (e *Env) flushMetrics() {
	path := e.Config.Metrics.Textfile
	if path == "" {
		return
	}
	if err := e.Metrics.WriteTextfile(path); err != nil {
		e.warnf("%v", err)
	}
}

func (e *Env) warnf(format string, args ...any) {
	fmt.Fprintf(e.err, "Warning: "+format+"\n", args...)
}

// SetOutput redirects command output, typically to the cobra command's writers.
func (e *Env) SetOutput(out, errOut io.Writer) {
	if out != nil {
		e.out = out
	}
	if errOut != nil {
		e.err = errOut
	}
}
