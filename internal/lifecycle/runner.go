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
	"os/exec"
	"strings"
)

// ToolStatus classifies the outcome of invoking an external utility.
type ToolStatus int

const (
	ToolOK ToolStatus = iota
	// ToolMissing means the utility could not be found or executed.
	ToolMissing
	// ToolTimedOut means the invocation exceeded its deadline and was killed.
	ToolTimedOut
	// ToolNonZeroExit means the utility ran and reported failure.
	ToolNonZeroExit
)

// String returns the status name used in logs.
func (s ToolStatus) String() string {
	switch s {
	case ToolOK:
		return "ok"
	case ToolMissing:
		return "tool_missing"
	case ToolTimedOut:
		return "timed_out"
	case ToolNonZeroExit:
		return "non_zero_exit"
	default:
		return fmt.Sprintf("ToolStatus(%d)", int(s))
	}
}

// ToolResult is the outcome of a best-effort utility invocation.
type ToolResult struct {
	Status   ToolStatus
	ExitCode int
	Output   string
	Err      error
}

// OK reports whether the utility accepted the request.
func (r ToolResult) OK() bool {
	return r.Status == ToolOK
}

// CommandRunner invokes external utilities on behalf of the orchestrators.
type CommandRunner interface {
	// Run executes name and waits for it, bounded by ctx.
	Run(ctx context.Context, name string, args ...string) ToolResult

	// Spawn starts name detached and does not wait for it.
	Spawn(name string, args ...string) error
}

// ExecRunner runs utilities with os/exec.
type ExecRunner struct {
	spawner *Spawner
}

// NewExecRunner creates a runner that spawns through spawner.
func NewExecRunner(spawner *Spawner) *ExecRunner {
	if spawner == nil {
		spawner = NewSpawner()
	}
	return &ExecRunner{spawner: spawner}
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ToolResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return ToolResult{Status: ToolMissing, ExitCode: -1, Err: err}
	}

	cmd := exec.CommandContext(ctx, path, args...)
	hideWindow(cmd)

	out, err := cmd.CombinedOutput()
	return classify(ctx, strings.TrimSpace(string(out)), err)
}

// classify maps an exec error to a ToolResult. A deadline wins over the
// exit error produced by the kill that enforced it.
func classify(ctx context.Context, output string, err error) ToolResult {
	if err == nil {
		return ToolResult{Status: ToolOK, Output: output}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ToolResult{Status: ToolTimedOut, ExitCode: -1, Output: output, Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ToolResult{Status: ToolNonZeroExit, ExitCode: exitErr.ExitCode(), Output: output, Err: err}
	}

	return ToolResult{Status: ToolMissing, ExitCode: -1, Output: output, Err: err}
}

// Spawn implements CommandRunner.
func (r *ExecRunner) Spawn(name string, args ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", name, err)
	}
	_, err = r.spawner.SpawnDetached(path, args)
	return err
}
