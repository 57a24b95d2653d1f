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
	"iter"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrProcessNotRunning is returned when the process does not exist or
	// its pid now belongs to a different process.
	ErrProcessNotRunning = errors.New("process not running")
)

// ProcessHandle is a snapshot of one OS process. It goes stale as soon as it
// is produced; every operation on it tolerates the process being gone.
type ProcessHandle struct {
	PID int

	// Name is the image name reported by the OS. Empty when unreadable.
	Name string

	// ExecutablePath is the absolute path of the running binary. Empty when unreadable.
	ExecutablePath string

	// CreateTime is the process start time in milliseconds since the epoch.
	// Zero when unreadable. Used to detect pid reuse before signalling.
	CreateTime int64
}

// String renders the handle as name(pid) for progress messages.
func (h ProcessHandle) String() string {
	name := h.Name
	if name == "" {
		name = "<unknown>"
	}
	return fmt.Sprintf("%s(%d)", name, h.PID)
}

// ProcessTable is the OS process primitive the orchestrators depend on.
type ProcessTable interface {
	// Processes enumerates every visible process. Each range performs a
	// fresh listing. A failure to list at all is yielded once as an error.
	Processes() iter.Seq2[ProcessHandle, error]

	// Alive reports whether the process behind h still exists and has not
	// been replaced by a new process reusing the pid.
	Alive(h ProcessHandle) bool

	// Terminate sends the cooperative termination request (SIGTERM or
	// TerminateProcess on Windows).
	Terminate(h ProcessHandle) error

	// Kill sends the unconditional kill (SIGKILL).
	Kill(h ProcessHandle) error
}

// SystemProcessTable reads the live OS process table through gopsutil.
type SystemProcessTable struct{}

// NewSystemProcessTable creates a process table backed by the OS.
func NewSystemProcessTable() *SystemProcessTable {
	return &SystemProcessTable{}
}

// Processes implements ProcessTable.
func (t *SystemProcessTable) Processes() iter.Seq2[ProcessHandle, error] {
	return func(yield func(ProcessHandle, error) bool) {
		procs, err := process.Processes()
		if err != nil {
			yield(ProcessHandle{}, fmt.Errorf("failed to list processes: %w", err))
			return
		}

		for _, p := range procs {
			if !yield(snapshotOf(p), nil) {
				return
			}
		}
	}
}

// snapshotOf reads what it can about p. Permission and exit races leave
// the affected field empty rather than dropping the process.
func snapshotOf(p *process.Process) ProcessHandle {
	h := ProcessHandle{PID: int(p.Pid)}

	if name, err := p.Name(); err == nil {
		h.Name = name
	}
	if exe, err := p.Exe(); err == nil {
		h.ExecutablePath = exe
	}
	if created, err := p.CreateTime(); err == nil {
		h.CreateTime = created
	}

	return h
}

// Alive implements ProcessTable. Access denied while checking counts as not
// running, matching how the scan treats unreadable processes.
func (t *SystemProcessTable) Alive(h ProcessHandle) bool {
	_, err := t.lookup(h)
	return err == nil
}

// Terminate implements ProcessTable.
func (t *SystemProcessTable) Terminate(h ProcessHandle) error {
	p, err := t.lookup(h)
	if err != nil {
		return err
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", h.PID, err)
	}
	return nil
}

// Kill implements ProcessTable.
func (t *SystemProcessTable) Kill(h ProcessHandle) error {
	p, err := t.lookup(h)
	if err != nil {
		return err
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", h.PID, err)
	}
	return nil
}

// lookup resolves h to a live process, refusing pids that were reused.
func (t *SystemProcessTable) lookup(h ProcessHandle) (*process.Process, error) {
	p, err := process.NewProcess(int32(h.PID))
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrProcessNotRunning, h.PID)
	}

	if h.CreateTime != 0 {
		created, err := p.CreateTime()
		if err != nil {
			return nil, fmt.Errorf("%w: %d: %v", ErrProcessNotRunning, h.PID, err)
		}
		if created != h.CreateTime {
			return nil, fmt.Errorf("%w: pid %d was reused", ErrProcessNotRunning, h.PID)
		}
	}

	return p, nil
}

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
