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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LifecycleEvent is one line of the lifecycle audit log.
type LifecycleEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Event       string    `json:"event"` // "stop", "stop_success", "start", "lock_held", etc.
	OperationID string    `json:"operation_id,omitempty"`
	App         string    `json:"app,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Remaining   []int     `json:"remaining,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// LifecycleLogger appends start/stop events to a JSON-lines file.
type LifecycleLogger struct {
	logPath  string
	app      string
	platform string
}

// NewLifecycleLogger creates a new lifecycle logger.
func NewLifecycleLogger(logPath string, app AppSpec, platform Platform) *LifecycleLogger {
	return &LifecycleLogger{
		logPath:  logPath,
		app:      app.Name,
		platform: platform.String(),
	}
}

// Path returns the log file path.
func (l *LifecycleLogger) Path() string {
	return l.logPath
}

// LogStop logs that a shutdown was requested.
func (l *LifecycleLogger) LogStop(opID string, timeoutSeconds int, force bool) error {
	message := fmt.Sprintf("Shutdown initiated (timeout: %ds)", timeoutSeconds)
	if !force {
		message += ", force kill disabled"
	}

	return l.writeEvent(LifecycleEvent{
		Event:       "stop",
		OperationID: opID,
		Success:     true,
		Message:     message,
	})
}

// LogStopResult logs the outcome of a shutdown.
func (l *LifecycleLogger) LogStopResult(opID string, result ShutdownResult, duration time.Duration) error {
	event := LifecycleEvent{
		Event:       "stop_" + result.Status.String(),
		OperationID: opID,
		Success:     result.Status == ShutdownSuccess,
		Message:     result.Message,
		DurationMS:  duration.Milliseconds(),
	}
	for _, h := range result.Remaining {
		event.Remaining = append(event.Remaining, h.PID)
	}
	return l.writeEvent(event)
}

// LogStart logs that a launch was requested.
func (l *LifecycleLogger) LogStart(opID string, preferURI bool) error {
	method := LaunchMethodNative
	if preferURI {
		method = LaunchMethodURI
	}

	return l.writeEvent(LifecycleEvent{
		Event:       "start",
		OperationID: opID,
		Success:     true,
		Message:     fmt.Sprintf("Launch initiated (preferred method: %s)", method),
	})
}

// LogStartResult logs whether the OS accepted the launch request.
func (l *LifecycleLogger) LogStartResult(opID string, ok bool, duration time.Duration) error {
	event := LifecycleEvent{
		Event:       "start_success",
		OperationID: opID,
		Success:     ok,
		Message:     "Launch request accepted",
		DurationMS:  duration.Milliseconds(),
	}
	if !ok {
		event.Event = "start_failure"
		event.Message = "All launch methods failed"
	}
	return l.writeEvent(event)
}

// LogReadiness logs the outcome of waiting for the application to appear.
func (l *LifecycleLogger) LogReadiness(opID string, err error, duration time.Duration) error {
	event := LifecycleEvent{
		Event:       "ready",
		OperationID: opID,
		Success:     err == nil,
		DurationMS:  duration.Milliseconds(),
	}
	if err != nil {
		event.Event = "ready_timeout"
		event.Error = err.Error()
	}
	return l.writeEvent(event)
}

// LogLockHeld logs that an operation was refused because another
// invocation holds the lock.
func (l *LifecycleLogger) LogLockHeld(opID string, holder int) error {
	return l.writeEvent(LifecycleEvent{
		Event:       "lock_held",
		OperationID: opID,
		PID:         holder,
		Success:     false,
		Message:     "Another operation is in progress",
	})
}

// writeEvent appends a lifecycle event to the log file.
func (l *LifecycleLogger) writeEvent(event LifecycleEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.App = l.app
	event.Platform = l.platform

	logDir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}
