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

// Package menu implements the interactive menu shown when agctl runs on a
// terminal without a subcommand.
package menu

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/agctl/internal/commands/app"
	"github.com/tombee/agctl/internal/commands/shared"
)

// Action is a menu choice.
type Action string

const (
	ActionStatus Action = "status"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionQuit   Action = "quit"
)

// Prompter asks the operator what to do next.
type Prompter interface {
	// SelectAction shows the main menu. running is the current state of
	// the application.
	SelectAction(appName string, running bool) (Action, error)

	// ConfirmForceKill asks whether processes that ignore the termination
	// request may be force killed.
	ConfirmForceKill(appName string, timeoutSeconds int) (bool, error)
}

// HuhPrompter renders prompts with huh forms.
type HuhPrompter struct{}

// SelectAction implements Prompter.
func (HuhPrompter) SelectAction(appName string, running bool) (Action, error) {
	state := "not running"
	if running {
		state = "running"
	}

	var choice Action
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Action]().
				Title(fmt.Sprintf("%s is %s", appName, state)).
				Description("What would you like to do?").
				Options(
					huh.NewOption("Start "+appName, ActionStart),
					huh.NewOption("Stop "+appName, ActionStop),
					huh.NewOption("Show status", ActionStatus),
					huh.NewOption("Quit", ActionQuit),
				).
				Value(&choice),
		),
	).WithTheme(Theme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

// ConfirmForceKill implements Prompter.
func (HuhPrompter) ConfirmForceKill(appName string, timeoutSeconds int) (bool, error) {
	force := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Force kill %s if it has not exited after %ds?", appName, timeoutSeconds)).
				Description("Unsaved work in the application may be lost.").
				Affirmative("Force kill").
				Negative("Leave running").
				Value(&force),
		),
	).WithTheme(Theme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return force, nil
}

// NewCommand creates the menu command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Choose an action interactively",
		Long: `Show an interactive menu to start, stop or inspect the application.

This is what agctl does when run on a terminal without a subcommand.`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInteractive(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// RunInteractive loads the environment and runs the menu with huh prompts.
func RunInteractive(out, errOut io.Writer) error {
	if shared.IsNonInteractive() {
		return shared.NewUsageError("the interactive menu needs a terminal; use agctl status, start or stop", nil)
	}
	if shared.GetJSON() {
		return shared.NewUsageError("--json cannot be used with the interactive menu", nil)
	}

	env, err := app.LoadEnv(out, errOut)
	if err != nil {
		return err
	}
	return Run(env, HuhPrompter{}, errOut)
}

// Run loops over the menu until the operator quits. Operation failures are
// reported and the menu shown again.
func Run(env *app.Env, prompter Prompter, errOut io.Writer) error {
	for {
		status, err := app.RunStatus(env)
		if err != nil {
			return err
		}

		action, err := prompter.SelectAction(env.App.Name, status.Running)
		if err != nil {
			return promptError(err)
		}

		switch action {
		case ActionQuit:
			return nil

		case ActionStatus:
			if err := env.PrintStatus(status); err != nil {
				return err
			}

		case ActionStart:
			report, err := app.RunStart(env, env.DefaultStartOptions())
			if err == nil {
				err = env.PrintStart(report)
			}
			reportFailure(errOut, err)

		case ActionStop:
			opts := env.DefaultStopOptions()
			if opts.ForceKill {
				opts.ForceKill, err = prompter.ConfirmForceKill(env.App.Name, opts.TimeoutSeconds)
				if err != nil {
					return promptError(err)
				}
			}

			report, err := app.RunStop(env, opts)
			if err == nil {
				err = env.PrintStop(report)
			}
			reportFailure(errOut, err)

		default:
			return fmt.Errorf("unknown menu action %q", action)
		}
	}
}

func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return shared.NewAbortError(err)
	}
	return shared.NewOperationError("menu prompt failed", err)
}

// reportFailure prints err unless it is the silent error of an operation
// that already rendered its summary.
func reportFailure(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) && exitErr.Message == "" {
		return
	}
	fmt.Fprintln(w, shared.RenderError(err.Error()))
}
