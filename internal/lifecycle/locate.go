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
	"path/filepath"
)

// LocateExecutable finds the installed executable of app. It tries the
// configured path, then the install locations recorded by the installer
// (Windows registry), then the well-known per-user and machine-wide
// install directories. Only paths that exist on disk are returned.
func LocateExecutable(app AppSpec) (string, error) {
	var candidates []string
	if app.Executable != "" {
		candidates = append(candidates, app.Executable)
	}
	candidates = append(candidates, registryInstallPaths(app)...)
	candidates = append(candidates, candidatePaths(app, os.Getenv)...)

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, app.ImageName())
}

// candidatePaths lists the default install locations of app.
func candidatePaths(app AppSpec, getenv func(string) string) []string {
	var paths []string
	for _, env := range []string{"LOCALAPPDATA", "ProgramFiles", "ProgramFiles(x86)"} {
		base := getenv(env)
		if base == "" {
			continue
		}
		if env == "LOCALAPPDATA" {
			base = filepath.Join(base, "Programs")
		}
		paths = append(paths, filepath.Join(base, app.Name, app.ImageName()))
	}
	return paths
}
