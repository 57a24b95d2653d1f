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
	"time"
)

var (
	// ErrExecutableNotFound is returned when the installed application cannot be located.
	ErrExecutableNotFound = errors.New("executable not found")
)

// DefaultURITimeout bounds the URI-open utility invocation.
const DefaultURITimeout = 10 * time.Second

// Launch methods reported to the Recorder.
const (
	LaunchMethodURI    = "uri"
	LaunchMethodNative = "native"
)

// Locator finds the installed executable of app.
type Locator func(app AppSpec) (string, error)

// Launcher starts the target application, preferring its registered URI
// handler and falling back to a native launch. "Launched" means the OS
// accepted the request; readiness is not confirmed.
type Launcher struct {
	platform   Platform
	caps       capabilities
	app        AppSpec
	runner     CommandRunner
	locate     Locator
	uriTimeout time.Duration
	logger     *slog.Logger
	recorder   Recorder
}

// NewLauncher creates a launcher for app on platform.
func NewLauncher(platform Platform, app AppSpec, runner CommandRunner) *Launcher {
	return &Launcher{
		platform:   platform,
		caps:       capabilitiesFor(platform),
		app:        app,
		runner:     runner,
		locate:     LocateExecutable,
		uriTimeout: DefaultURITimeout,
		logger:     slog.Default(),
		recorder:   noopRecorder{},
	}
}

// WithLocator overrides how the Windows executable is found.
func (l *Launcher) WithLocator(locate Locator) *Launcher {
	l.locate = locate
	return l
}

// WithURITimeout bounds the URI-open utility invocation.
func (l *Launcher) WithURITimeout(d time.Duration) *Launcher {
	if d > 0 {
		l.uriTimeout = d
	}
	return l
}

// WithLogger sets the logger.
func (l *Launcher) WithLogger(logger *slog.Logger) *Launcher {
	l.logger = logger
	return l
}

// WithRecorder sets the outcome recorder.
func (l *Launcher) WithRecorder(recorder Recorder) *Launcher {
	l.recorder = recorder
	return l
}

// Start launches the application and reports whether the OS accepted the
// request. With preferURILaunch the URI handler is tried first and the
// native launch once as fallback. Without it the native launch is tried
// first and, if it fails, the URI handler once. There is never more than
// one retry.
func (l *Launcher) Start(preferURILaunch bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("unexpected fault while starting", "panic", r)
			ok = false
		}
	}()

	l.logger.Info(fmt.Sprintf("Starting %s...", l.app.Name))

	if preferURILaunch {
		if l.launchViaURI() {
			return true
		}
		l.logger.Warn("URI launch failed, trying executable path...")
		return l.launchNative()
	}

	if l.launchNative() {
		return true
	}
	l.logger.Warn("Executable launch failed, trying URI protocol...")
	return l.launchViaURI()
}

func (l *Launcher) launchViaURI() bool {
	l.logger.Info("Launching via URI protocol...")

	res := l.caps.openURI(l, l.app.LaunchURI())
	ok := res.OK()
	l.recorder.LaunchCompleted(LaunchMethodURI, ok)

	if !ok {
		l.logger.Warn("URI open failed",
			"uri", l.app.LaunchURI(), "status", res.Status.String(), "exit_code", res.ExitCode, "error", res.Err)
		return false
	}

	l.logger.Info(fmt.Sprintf("%s URI launch command sent", l.app.Name))
	return true
}

func (l *Launcher) launchNative() bool {
	l.logger.Info("Launching via executable path...")

	err := l.caps.native(l)
	l.recorder.LaunchCompleted(LaunchMethodNative, err == nil)

	if err != nil {
		l.logger.Error(fmt.Sprintf("Error starting process: %v", err))
		return false
	}

	l.logger.Info(fmt.Sprintf("%s launch command sent", l.app.Name))
	return true
}

func openURIWith(tool string, prefix ...string) func(l *Launcher, uri string) ToolResult {
	return func(l *Launcher, uri string) ToolResult {
		ctx, cancel := context.WithTimeout(context.Background(), l.uriTimeout)
		defer cancel()

		args := append(append([]string{}, prefix...), uri)
		return l.runner.Run(ctx, tool, args...)
	}
}

func launchMacOS(l *Launcher) error {
	return l.runner.Spawn("open", "-a", l.app.Name)
}

func launchWindows(l *Launcher) error {
	path, err := l.locate(l.app)
	if err != nil {
		l.logger.Error(fmt.Sprintf("%s executable not found", l.app.Name))
		l.logger.Warn("Hint: Try using URI protocol to launch")
		return err
	}
	return l.runner.Spawn(path)
}

func launchLinux(l *Launcher) error {
	command := l.app.Command
	if command == "" {
		command = l.app.key()
	}
	return l.runner.Spawn(command)
}
