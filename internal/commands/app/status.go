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

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/lifecycle"
)

// ProcessInfo describes one matched process in status output.
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// StatusReport is the result of a status query.
type StatusReport struct {
	App       string        `json:"app"`
	Platform  string        `json:"platform"`
	Running   bool          `json:"running"`
	Processes []ProcessInfo `json:"processes,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the application is running",
		Long: `Show whether the application is running and list the matching processes.

Exits 0 when the application is running and 1 when it is not.`,
		Example: `  agctl status
  agctl status --json`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := LoadEnv(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			report, err := RunStatus(env)
			if err != nil {
				return err
			}
			if err := env.PrintStatus(report); err != nil {
				return err
			}
			if !report.Running {
				return &shared.ExitError{Code: shared.ExitOperationFailed}
			}
			return nil
		},
	}
}

// RunStatus queries the process table for the application.
func RunStatus(env *Env) (StatusReport, error) {
	report := StatusReport{
		App:      env.App.Name,
		Platform: env.Platform.String(),
	}

	for h, err := range env.Detector.Enumerate() {
		if err != nil {
			return report, shared.NewOperationError("failed to list processes", err)
		}
		if env.Detector.IsTarget(env.Platform, h) {
			report.Processes = append(report.Processes, processInfo(h))
		}
	}
	report.Running = len(report.Processes) > 0

	return report, nil
}

// PrintStatus renders report as text or JSON depending on --json.
func (e *Env) PrintStatus(report StatusReport) error {
	if shared.GetJSON() {
		return shared.EmitJSONTo(e.out, struct {
			shared.JSONResponse
			StatusReport
		}{
			JSONResponse: shared.NewJSONResponse("status", true),
			StatusReport: report,
		})
	}

	fmt.Fprintln(e.out, shared.RenderKV("App", report.App))
	fmt.Fprintln(e.out, shared.RenderKV("Platform", report.Platform))
	fmt.Fprintln(e.out, shared.RenderKV("State", shared.RenderRunning(report.Running)))
	for _, p := range report.Processes {
		fmt.Fprintln(e.out, shared.RenderKV("Process", formatProcess(p)))
	}
	return nil
}

func processInfo(h lifecycle.ProcessHandle) ProcessInfo {
	return ProcessInfo{PID: h.PID, Name: h.Name, Path: h.ExecutablePath}
}

func processInfos(handles []lifecycle.ProcessHandle) []ProcessInfo {
	if len(handles) == 0 {
		return nil
	}
	infos := make([]ProcessInfo, len(handles))
	for i, h := range handles {
		infos[i] = processInfo(h)
	}
	return infos
}

func formatProcess(p ProcessInfo) string {
	s := fmt.Sprintf("%d %s", p.PID, p.Name)
	if p.Path != "" {
		s += " " + shared.RenderLabel(p.Path)
	}
	return s
}
