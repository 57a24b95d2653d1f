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
	"os"
	"path/filepath"
	"strings"
)

// SelfExclusion identifies the controller's own process and install
// directory. It is computed once and never re-read during matching.
type SelfExclusion struct {
	PID int
	Dir string
}

// CurrentSelf returns the exclusion for the running controller binary.
// When the executable cannot be resolved only the pid is excluded.
func CurrentSelf() SelfExclusion {
	self := SelfExclusion{PID: os.Getpid()}

	exe, err := os.Executable()
	if err != nil {
		return self
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	self.Dir = filepath.Dir(exe)

	return self
}

// Excludes reports whether h belongs to the controller itself.
func (s SelfExclusion) Excludes(h ProcessHandle) bool {
	if h.PID == s.PID {
		return true
	}
	return s.covers(h.ExecutablePath)
}

// covers reports whether exePath lies in or below Dir. Comparison is
// case-insensitive and accepts either path separator.
func (s SelfExclusion) covers(exePath string) bool {
	if s.Dir == "" || exePath == "" {
		return false
	}

	dir := strings.ToLower(strings.TrimRight(s.Dir, `/\`))
	path := strings.ToLower(exePath)

	if !strings.HasPrefix(path, dir) {
		return false
	}
	rest := path[len(dir):]
	return rest == "" || rest[0] == '/' || rest[0] == '\\'
}
