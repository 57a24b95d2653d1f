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
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrLockHeld is returned when another controller invocation holds the lock.
	ErrLockHeld = errors.New("another agctl operation is in progress")

	// ErrInvalidPID is returned when the lock file contains invalid data.
	ErrInvalidPID = errors.New("invalid PID in lock file")

	// ErrUnsafeDirectory is returned when the lock file parent is world-writable.
	ErrUnsafeDirectory = errors.New("lock file directory is world-writable")
)

// OperationLock serializes start/stop operations across controller
// invocations. The lock file holds the owner's PID; it is created with
// O_EXCL and, on Unix, additionally held with flock.
type OperationLock struct {
	path     string
	lockFile *os.File
}

// NewOperationLock creates a lock backed by the file at path.
func NewOperationLock(path string) *OperationLock {
	return &OperationLock{
		path: path,
	}
}

// Acquire takes the lock for pid. A lock file left behind by a process that
// is no longer running is removed and acquisition retried once. Returns an
// error wrapping ErrLockHeld when a live process owns the lock.
func (m *OperationLock) Acquire(pid int) error {
	parentDir := filepath.Dir(m.path)
	if err := verifyDirectorySafety(parentDir); err != nil {
		return fmt.Errorf("unsafe lock file location: %w", err)
	}

	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := m.create(pid)
	if !errors.Is(err, os.ErrExist) {
		return err
	}

	holder, readErr := m.Holder()
	if readErr == nil && IsProcessRunning(holder) {
		return fmt.Errorf("%w (PID %d)", ErrLockHeld, holder)
	}

	// Stale: the owner exited without releasing.
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock file: %w", err)
	}

	if err := m.create(pid); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrLockHeld
		}
		return err
	}
	return nil
}

func (m *OperationLock) create(pid int) error {
	// O_EXCL prevents symlink attacks and races; O_RDWR is needed for flock.
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return os.ErrExist
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		os.Remove(m.path)
		return err
	}

	if _, err := f.WriteString(fmt.Sprintf("%d\n", pid)); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to write PID: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to sync lock file: %w", err)
	}

	// Keep the file open to keep the lock.
	m.lockFile = f
	return nil
}

// Holder reads the PID of the current lock owner.
func (m *OperationLock) Holder() (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPID, pidStr)
	}

	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}

	return pid, nil
}

// Release unlocks and deletes the lock file.
func (m *OperationLock) Release() error {
	if m.lockFile != nil {
		unlockFile(m.lockFile)
		m.lockFile.Close()
		m.lockFile = nil
	}

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	return nil
}

// Exists returns true if the lock file exists.
func (m *OperationLock) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// verifyDirectorySafety checks that the directory is not world-writable,
// where another user could plant a symlink at the lock path.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	mode := info.Mode()
	if mode&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}
