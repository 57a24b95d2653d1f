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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/agctl/internal/commands/completion"
	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/lifecycle"
	"github.com/tombee/agctl/internal/log"
)

// StopOptions are the parameters of one stop operation.
type StopOptions struct {
	TimeoutSeconds int
	ForceKill      bool
}

// StopReport is the outcome of RunStop.
type StopReport struct {
	OperationID string
	Result      lifecycle.ShutdownResult
	Duration    time.Duration
}

// StopResponse is the JSON output of agctl stop.
type StopResponse struct {
	shared.JSONResponse
	OperationID string        `json:"operation_id"`
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	Remaining   []ProcessInfo `json:"remaining,omitempty"`
	DurationMS  int64         `json:"duration_ms"`
}

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var (
		timeout int
		noForce bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Close the application",
		Long: `Close every instance of the application.

agctl first asks the application to quit, then sends a termination signal and
waits up to --timeout seconds. Processes that are still alive are force
killed unless --no-force is given. agctl never signals its own process or
anything installed next to it.`,
		Example: `  agctl stop
  agctl stop --timeout 30
  agctl stop --no-force --json`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := LoadEnv(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := env.DefaultStopOptions()
			if cmd.Flags().Changed("timeout") {
				if timeout < 0 {
					return shared.NewUsageError("--timeout must not be negative", nil)
				}
				opts.TimeoutSeconds = timeout
			}
			if noForce {
				opts.ForceKill = false
			}

			report, err := RunStop(env, opts)
			if err != nil {
				return err
			}
			return env.PrintStop(report)
		},
	}

	cmd.Flags().IntVarP(&timeout, "timeout", "t", lifecycle.DefaultTimeoutSeconds, "Seconds to wait for a graceful exit")
	cmd.Flags().BoolVar(&noForce, "no-force", false, "Never force kill processes that ignore the termination signal")
	_ = cmd.RegisterFlagCompletionFunc("timeout", completion.CompleteTimeoutSeconds)

	return cmd
}

// DefaultStopOptions returns the stop parameters from configuration.
func (e *Env) DefaultStopOptions() StopOptions {
	return StopOptions{
		TimeoutSeconds: e.Config.Shutdown.TimeoutSeconds,
		ForceKill:      e.Config.Shutdown.ForceKill,
	}
}

// RunStop closes the application under the operation lock and records the
// outcome in the lifecycle log and metrics.
func RunStop(env *Env, opts StopOptions) (StopReport, error) {
	opID, logger := env.beginOperation()

	release, err := env.acquireLock(opID)
	if err != nil {
		return StopReport{OperationID: opID}, err
	}
	defer release()

	if err := env.Audit.LogStop(opID, opts.TimeoutSeconds, opts.ForceKill); err != nil {
		env.warnf("failed to write lifecycle log: %v", err)
	}

	start := env.clock.Now()
	result := env.Closer.Close(opts.TimeoutSeconds, opts.ForceKill)
	duration := env.clock.Now().Sub(start)

	if err := env.Audit.LogStopResult(opID, result, duration); err != nil {
		env.warnf("failed to write lifecycle log: %v", err)
	}
	env.flushMetrics()

	logger.Debug("stop finished",
		"status", result.Status.String(),
		"remaining", len(result.Remaining),
		log.Duration("duration_ms", duration.Milliseconds()))

	return StopReport{OperationID: opID, Result: result, Duration: duration}, nil
}

// PrintStop renders report. Anything short of ShutdownSuccess is returned as
// a silent exit error since the summary has already been printed.
func (e *Env) PrintStop(report StopReport) error {
	result := report.Result
	ok := result.Status == lifecycle.ShutdownSuccess

	if shared.GetJSON() {
		if err := shared.EmitJSONTo(e.out, StopResponse{
			JSONResponse: shared.NewJSONResponse("stop", ok),
			OperationID:  report.OperationID,
			Status:       result.Status.String(),
			Message:      result.Message,
			Remaining:    processInfos(result.Remaining),
			DurationMS:   report.Duration.Milliseconds(),
		}); err != nil {
			return err
		}
	} else {
		switch result.Status {
		case lifecycle.ShutdownSuccess:
			fmt.Fprintln(e.out, shared.RenderOK(result.Message))
		case lifecycle.ShutdownPartiallyFailed:
			fmt.Fprintln(e.out, shared.RenderWarn(result.Message))
		default:
			fmt.Fprintln(e.out, shared.RenderError(result.Message))
		}
		for _, p := range processInfos(result.Remaining) {
			fmt.Fprintln(e.out, "  "+formatProcess(p))
		}
	}

	if !ok {
		return &shared.ExitError{Code: shared.ExitOperationFailed}
	}
	return nil
}
