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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Spawner starts detached processes that outlive the controller.
type Spawner struct {
	// Env is the environment passed to the child process.
	Env []string

	// LogPath receives the child's stdout and stderr. Empty discards them.
	LogPath string
}

// NewSpawner creates a new process spawner.
func NewSpawner() *Spawner {
	return &Spawner{
		Env: os.Environ(),
	}
}

// WithEnv sets the environment for the spawned process.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// WithLogPath redirects the spawned process output to logPath.
func (s *Spawner) WithLogPath(logPath string) *Spawner {
	s.LogPath = logPath
	return s
}

// SpawnDetached starts binary detached from the controller:
//   - on Unix it runs in a new session, so it survives the controller exiting
//   - on Windows it runs in a new process group with no console window
//   - stdin is closed, stdout/stderr go to LogPath when set
//
// Returns the PID of the spawned process.
func (s *Spawner) SpawnDetached(binary string, args []string) (int, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Stdin = nil

	if s.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.LogPath), 0700); err != nil {
			return 0, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile, err := os.OpenFile(s.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	// The child is detached; nothing will Wait on it.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("process started but failed to release: %w", err)
	}

	return pid, nil
}
