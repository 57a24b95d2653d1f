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

// Package diagnostics implements agctl doctor.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/config"
	"github.com/tombee/agctl/internal/lifecycle"
)

// Check is the outcome of one doctor check
type Check struct {
	Name           string `json:"name"`
	OK             bool   `json:"ok"`
	Detail         string `json:"detail,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DoctorResult contains the overall health check results
type DoctorResult struct {
	ConfigPath   string  `json:"config_path"`
	ConfigExists bool    `json:"config_exists"`
	Platform     string  `json:"platform"`
	Checks       []Check `json:"checks"`
	Healthy      bool    `json:"healthy"`
}

func (r *DoctorResult) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.OK {
		r.Healthy = false
	}
}

// doctor holds the OS lookups so tests can replace them.
type doctor struct {
	platform lifecycle.Platform
	lookPath func(file string) (string, error)
	locate   lifecycle.Locator
}

// NewDoctorCommand creates the doctor command
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use: "doctor",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Check that agctl can control the application on this machine",
		Long: `Check the agctl configuration and environment.

This command checks:
  - The config file, if any, loads and validates
  - The platform has dedicated process rules
  - The OS utilities used to quit and launch the application are installed
  - The application can be launched without its URI handler
  - The state directory is writable and the operation lock is free

Exits 1 when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := doctor{
				platform: lifecycle.CurrentPlatform(),
				lookPath: exec.LookPath,
				locate:   lifecycle.LocateExecutable,
			}
			result := d.run(shared.GetConfigPath())

			if shared.GetJSON() {
				if err := shared.EmitJSONTo(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					DoctorResult
				}{
					JSONResponse: shared.NewJSONResponse("doctor", result.Healthy),
					DoctorResult: result,
				}); err != nil {
					return err
				}
			} else {
				outputDoctorText(cmd.OutOrStdout(), result)
			}

			if !result.Healthy {
				return &shared.ExitError{Code: shared.ExitOperationFailed}
			}
			return nil
		},
	}
}

func (d doctor) run(cfgPath string) DoctorResult {
	result := DoctorResult{
		Platform: d.platform.String(),
		Healthy:  true,
	}

	result.ConfigPath = cfgPath
	if result.ConfigPath == "" {
		if path, err := config.ConfigPath(); err == nil {
			result.ConfigPath = path
		}
	}
	if _, err := os.Stat(result.ConfigPath); err == nil {
		result.ConfigExists = true
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		result.add(Check{
			Name:           "config",
			Detail:         err.Error(),
			Recommendation: "Fix the configuration file or the AGCTL_* environment variables",
		})
		return result
	}
	detail := "using defaults"
	if result.ConfigExists {
		detail = "loaded " + result.ConfigPath
	}
	result.add(Check{Name: "config", OK: true, Detail: detail})

	result.add(d.checkPlatform())
	for _, tool := range lifecycle.RequiredTools(d.platform) {
		result.add(d.checkTool(tool))
	}
	result.add(d.checkLaunchTarget(cfg.AppSpec()))
	result.add(checkStateDir(cfg.StateDir))
	result.add(checkLock(cfg.LockPath()))

	return result
}

func (d doctor) checkPlatform() Check {
	if d.platform == lifecycle.PlatformOther {
		return Check{
			Name:           "platform",
			Detail:         "no dedicated rules for this OS, Linux behavior is used",
			Recommendation: "Verify with 'agctl status' that the right processes are matched",
		}
	}
	return Check{Name: "platform", OK: true, Detail: d.platform.String()}
}

func (d doctor) checkTool(tool string) Check {
	path, err := d.lookPath(tool)
	if err != nil {
		return Check{
			Name:           "tool " + tool,
			Detail:         "not found on PATH",
			Recommendation: fmt.Sprintf("Install %s or add it to PATH", tool),
		}
	}
	return Check{Name: "tool " + tool, OK: true, Detail: path}
}

// checkLaunchTarget verifies the native launch fallback can find the
// application. macOS resolves bundles through LaunchServices, which cannot be
// queried without launching.
func (d doctor) checkLaunchTarget(app lifecycle.AppSpec) Check {
	switch d.platform {
	case lifecycle.PlatformMacOS:
		return Check{Name: "launch target", OK: true, Detail: "open -a " + app.Name}
	case lifecycle.PlatformWindows:
		path, err := d.locate(app)
		if err != nil {
			return Check{
				Name:           "launch target",
				Detail:         err.Error(),
				Recommendation: "Set app.executable in the config file",
			}
		}
		return Check{Name: "launch target", OK: true, Detail: path}
	default:
		path, err := d.lookPath(app.Command)
		if err != nil {
			return Check{
				Name:           "launch target",
				Detail:         app.Command + " not found on PATH",
				Recommendation: "Set app.command in the config file",
			}
		}
		return Check{Name: "launch target", OK: true, Detail: path}
	}
}

func checkStateDir(dir string) Check {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Check{Name: "state dir", Detail: err.Error(), Recommendation: "Set state_dir to a writable directory"}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: "state dir", Detail: err.Error(), Recommendation: "Set state_dir to a writable directory"}
	}
	probe.Close()
	os.Remove(probe.Name())

	return Check{Name: "state dir", OK: true, Detail: dir}
}

func checkLock(path string) Check {
	lock := lifecycle.NewOperationLock(path)
	if !lock.Exists() {
		return Check{Name: "operation lock", OK: true, Detail: "free"}
	}

	holder, err := lock.Holder()
	switch {
	case errors.Is(err, lifecycle.ErrInvalidPID):
		return Check{Name: "operation lock", OK: true, Detail: "corrupt lock file, replaced on next operation"}
	case err != nil:
		return Check{Name: "operation lock", Detail: err.Error(), Recommendation: "Remove " + path}
	case lifecycle.IsProcessRunning(holder):
		return Check{Name: "operation lock", OK: true, Detail: fmt.Sprintf("held by PID %d", holder)}
	default:
		return Check{Name: "operation lock", OK: true, Detail: fmt.Sprintf("stale (PID %d), replaced on next operation", holder)}
	}
}

func outputDoctorText(w io.Writer, result DoctorResult) {
	fmt.Fprintln(w, shared.Header.Render("agctl Health Check"))
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var recommendations []string
	for _, c := range result.Checks {
		label := "OK"
		if !c.OK {
			label = "FAIL"
			if c.Recommendation != "" {
				recommendations = append(recommendations, c.Recommendation)
			}
		}
		fmt.Fprintf(w, "  %-6s %-16s %s\n", shared.RenderStatus(c.OK, label), c.Name, shared.RenderLabel(c.Detail))
	}
	fmt.Fprintln(w)

	if len(recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	if result.Healthy {
		fmt.Fprintln(w, shared.RenderOK("Overall Status: Healthy"))
	} else {
		fmt.Fprintln(w, shared.RenderError("Overall Status: Issues Found"))
	}
}
