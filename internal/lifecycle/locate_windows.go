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

//go:build windows

package lifecycle

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const uninstallKey = `Software\Microsoft\Windows\CurrentVersion\Uninstall`

// registryInstallPaths reads the installer's uninstall entries for app.
func registryInstallPaths(app AppSpec) []string {
	var paths []string

	for _, root := range []registry.Key{registry.CURRENT_USER, registry.LOCAL_MACHINE} {
		k, err := registry.OpenKey(root, uninstallKey, registry.ENUMERATE_SUB_KEYS)
		if err != nil {
			continue
		}
		names, err := k.ReadSubKeyNames(-1)
		k.Close()
		if err != nil {
			continue
		}

		for _, name := range names {
			paths = append(paths, installPathsFromEntry(root, uninstallKey+`\`+name, app)...)
		}
	}

	return paths
}

func installPathsFromEntry(root registry.Key, path string, app AppSpec) []string {
	k, err := registry.OpenKey(root, path, registry.QUERY_VALUE)
	if err != nil {
		return nil
	}
	defer k.Close()

	display, _, err := k.GetStringValue("DisplayName")
	if err != nil || !strings.EqualFold(strings.TrimSpace(display), app.Name) {
		return nil
	}

	var paths []string
	if loc, _, err := k.GetStringValue("InstallLocation"); err == nil && loc != "" {
		paths = append(paths, filepath.Join(strings.Trim(loc, `"`), app.ImageName()))
	}
	if icon, _, err := k.GetStringValue("DisplayIcon"); err == nil && icon != "" {
		// DisplayIcon is "path" or "path,index".
		if i := strings.LastIndex(icon, ","); i > 0 {
			icon = icon[:i]
		}
		icon = strings.Trim(icon, `"`)
		if strings.EqualFold(filepath.Ext(icon), ".exe") {
			paths = append(paths, icon)
		}
	}
	return paths
}
