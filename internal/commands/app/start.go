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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/agctl/internal/commands/completion"
	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/lifecycle"
	"github.com/tombee/agctl/internal/log"
)

// StartOptions are the parameters of one start operation.
type StartOptions struct {
	PreferURI bool

	// Wait polls the process table after a successful launch until the
	// application shows up or WaitTimeout passes.
	Wait        bool
	WaitTimeout time.Duration
}

// StartReport is the outcome of RunStart.
type StartReport struct {
	OperationID string
	Launched    bool
	Waited      bool
	ReadyErr    error
	Duration    time.Duration
}

// Ready reports whether the application was confirmed running.
func (r StartReport) Ready() bool {
	return r.Waited && r.ReadyErr == nil
}

// StartResponse is the JSON output of agctl start.
type StartResponse struct {
	shared.JSONResponse
	OperationID string `json:"operation_id"`
	Launched    bool   `json:"launched"`
	Running     *bool  `json:"running,omitempty"`
	Message     string `json:"message"`
	DurationMS  int64  `json:"duration_ms"`
}

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var (
		noURI       bool
		wait        bool
		waitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the application",
		Long: `Launch the application.

By default agctl opens the application's URI scheme and falls back to
launching the installed executable. A launch counts as successful once the
OS accepts the request; use --wait to also wait for the process to appear.`,
		Example: `  agctl start
  agctl start --no-uri
  agctl start --wait --wait-timeout 1m`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := LoadEnv(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := env.DefaultStartOptions()
			if noURI {
				opts.PreferURI = false
			}
			opts.Wait = wait
			if cmd.Flags().Changed("wait-timeout") {
				if waitTimeout <= 0 {
					return shared.NewUsageError("--wait-timeout must be positive", nil)
				}
				opts.WaitTimeout = waitTimeout
			}

			report, err := RunStart(env, opts)
			if err != nil {
				return err
			}
			return env.PrintStart(report)
		},
	}

	cmd.Flags().BoolVar(&noURI, "no-uri", false, "Launch the executable directly instead of opening the URI scheme")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the application is running")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 30*time.Second, "How long --wait waits")
	_ = cmd.RegisterFlagCompletionFunc("wait-timeout", completion.CompleteWaitTimeout)

	return cmd
}

// DefaultStartOptions returns the start parameters from configuration.
func (e *Env) DefaultStartOptions() StartOptions {
	return StartOptions{
		PreferURI:   e.Config.Launch.PreferURI,
		WaitTimeout: e.Config.Launch.WaitTimeout,
	}
}

// RunStart launches the application under the operation lock and, when
// asked, waits for it to appear.
func RunStart(env *Env, opts StartOptions) (StartReport, error) {
	opID, logger := env.beginOperation()
	report := StartReport{OperationID: opID}

	release, err := env.acquireLock(opID)
	if err != nil {
		return report, err
	}
	defer release()

	if err := env.Audit.LogStart(opID, opts.PreferURI); err != nil {
		env.warnf("failed to write lifecycle log: %v", err)
	}

	start := env.clock.Now()
	report.Launched = env.Launcher.Start(opts.PreferURI)
	if err := env.Audit.LogStartResult(opID, report.Launched, env.clock.Now().Sub(start)); err != nil {
		env.warnf("failed to write lifecycle log: %v", err)
	}

	if report.Launched && opts.Wait {
		report.Waited = true
		report.ReadyErr = env.waitForReady(opts.WaitTimeout, logger)
		if err := env.Audit.LogReadiness(opID, report.ReadyErr, env.clock.Now().Sub(start)); err != nil {
			env.warnf("failed to write lifecycle log: %v", err)
		}
	}

	report.Duration = env.clock.Now().Sub(start)
	env.flushMetrics()

	logger.Debug("start finished",
		"launched", report.Launched,
		"waited", report.Waited,
		log.Duration("duration_ms", report.Duration.Milliseconds()))

	return report, nil
}

func (e *Env) waitForReady(timeout time.Duration, logger *slog.Logger) error {
	var spinner *shared.Spinner
	if !shared.GetJSON() && !shared.GetQuiet() && !shared.IsNonInteractive() {
		spinner = shared.NewSpinner()
		spinner.Start(fmt.Sprintf("Waiting for %s", e.App.Name))
		defer spinner.Stop()
	}

	return e.Waiter.WaitUntilRunningWithCallback(timeout, func(attempt int, next time.Duration) {
		logger.Debug("application not running yet", "attempt", attempt, "next_check", next)
	})
}

// PrintStart renders report. A failed launch or readiness wait is returned
// as a silent exit error after the summary.
func (e *Env) PrintStart(report StartReport) error {
	ok := report.Launched && (!report.Waited || report.ReadyErr == nil)
	message := e.startMessage(report)

	if shared.GetJSON() {
		resp := StartResponse{
			JSONResponse: shared.NewJSONResponse("start", ok),
			OperationID:  report.OperationID,
			Launched:     report.Launched,
			Message:      message,
			DurationMS:   report.Duration.Milliseconds(),
		}
		if report.Waited {
			running := report.ReadyErr == nil
			resp.Running = &running
		}
		if err := shared.EmitJSONTo(e.out, resp); err != nil {
			return err
		}
	} else if ok {
		fmt.Fprintln(e.out, shared.RenderOK(message))
	} else {
		fmt.Fprintln(e.out, shared.RenderError(message))
	}

	if !ok {
		return &shared.ExitError{Code: shared.ExitOperationFailed}
	}
	return nil
}

func (e *Env) startMessage(report StartReport) string {
	switch {
	case !report.Launched:
		return fmt.Sprintf("Failed to start %s", e.App.Name)
	case !report.Waited:
		return fmt.Sprintf("Launch request for %s accepted", e.App.Name)
	case report.ReadyErr == nil:
		return fmt.Sprintf("%s is running", e.App.Name)
	case errors.Is(report.ReadyErr, lifecycle.ErrReadinessTimeout):
		return fmt.Sprintf("%s was launched but did not appear in time", e.App.Name)
	default:
		return fmt.Sprintf("%s was launched but readiness could not be confirmed: %v", e.App.Name, report.ReadyErr)
	}
}
