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

package diagnostics

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/agctl/internal/lifecycle"
)

func writeConfig(t *testing.T, body string) (configPath, stateDir string) {
	t.Helper()

	dir := t.TempDir()
	stateDir = filepath.Join(dir, "state")
	configPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("state_dir: "+stateDir+"\n"+body), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath, stateDir
}

func findAll(string) (string, error) { return "/usr/bin/tool", nil }

func findCheck(t *testing.T, result DoctorResult, name string) Check {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", name, result.Checks)
	return Check{}
}

func TestDoctor_Healthy(t *testing.T) {
	configPath, stateDir := writeConfig(t, "")

	d := doctor{platform: lifecycle.PlatformLinux, lookPath: findAll}
	result := d.run(configPath)

	if !result.Healthy {
		t.Fatalf("expected healthy result, got %+v", result.Checks)
	}
	if !result.ConfigExists {
		t.Error("expected config to exist")
	}

	var names []string
	for _, c := range result.Checks {
		names = append(names, c.Name)
	}
	want := "config,platform,tool xdg-open,launch target,state dir,operation lock"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("checks = %s, want %s", got, want)
	}

	if c := findCheck(t, result, "state dir"); c.Detail != stateDir {
		t.Errorf("state dir detail = %q, want %q", c.Detail, stateDir)
	}
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestDoctor_MissingTool(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	d := doctor{
		platform: lifecycle.PlatformMacOS,
		lookPath: func(file string) (string, error) {
			if file == "osascript" {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + file, nil
		},
	}
	result := d.run(configPath)

	if result.Healthy {
		t.Fatal("expected unhealthy result")
	}
	c := findCheck(t, result, "tool osascript")
	if c.OK || c.Recommendation == "" {
		t.Errorf("unexpected osascript check: %+v", c)
	}
	if !findCheck(t, result, "tool open").OK {
		t.Error("open should be found")
	}
}

func TestDoctor_InvalidConfig(t *testing.T) {
	configPath, _ := writeConfig(t, "shutdown:\n  timeout_seconds: -5\n")

	d := doctor{platform: lifecycle.PlatformLinux, lookPath: findAll}
	result := d.run(configPath)

	if result.Healthy {
		t.Fatal("expected unhealthy result")
	}
	if len(result.Checks) != 1 || result.Checks[0].Name != "config" {
		t.Errorf("expected only the config check, got %+v", result.Checks)
	}
}

func TestDoctor_WindowsLaunchTarget(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	tests := []struct {
		name   string
		locate lifecycle.Locator
		wantOK bool
	}{
		{
			name:   "found",
			locate: func(lifecycle.AppSpec) (string, error) { return `C:\Apps\Antigravity.exe`, nil },
			wantOK: true,
		},
		{
			name:   "missing",
			locate: func(lifecycle.AppSpec) (string, error) { return "", lifecycle.ErrExecutableNotFound },
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := doctor{platform: lifecycle.PlatformWindows, lookPath: findAll, locate: tt.locate}
			c := findCheck(t, d.run(configPath), "launch target")
			if c.OK != tt.wantOK {
				t.Errorf("launch target OK = %v, want %v (%+v)", c.OK, tt.wantOK, c)
			}
		})
	}
}

func TestDoctor_OtherPlatform(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	d := doctor{platform: lifecycle.PlatformOther, lookPath: findAll}
	result := d.run(configPath)

	if result.Healthy {
		t.Error("unknown platforms are reported")
	}
	if findCheck(t, result, "platform").OK {
		t.Error("platform check should fail")
	}
}

func TestCheckLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agctl.lock")

	if c := checkLock(path); !c.OK || c.Detail != "free" {
		t.Errorf("free lock: %+v", c)
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		t.Fatal(err)
	}
	if c := checkLock(path); !c.OK || !strings.Contains(c.Detail, "held by PID") {
		t.Errorf("held lock: %+v", c)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if c := checkLock(path); !c.OK || !strings.Contains(c.Detail, "corrupt") {
		t.Errorf("corrupt lock: %+v", c)
	}
}

func TestOutputDoctorText(t *testing.T) {
	var buf bytes.Buffer
	outputDoctorText(&buf, DoctorResult{
		Checks: []Check{
			{Name: "config", OK: true, Detail: "using defaults"},
			{Name: "tool xdg-open", Detail: "not found on PATH", Recommendation: "Install xdg-open or add it to PATH"},
		},
	})

	output := buf.String()
	for _, want := range []string{"FAIL", "tool xdg-open", "Recommendations:", "Install xdg-open", "Issues Found"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}
