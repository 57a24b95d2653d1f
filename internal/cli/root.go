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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/agctl/internal/commands/menu"
	"github.com/tombee/agctl/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for agctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agctl",
		Short: "agctl - start and stop the Antigravity desktop application",
		Long: `agctl controls the lifecycle of the Antigravity desktop application.

It finds the application's processes, closes them gracefully with a bounded
escalation to a force kill, and launches the application through its URI
scheme or installed executable.

Run 'agctl' on a terminal without arguments for an interactive menu.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		RunE: func(cmd *cobra.Command, args []string) error {
			if shared.IsNonInteractive() || shared.GetJSON() {
				return cmd.Help()
			}
			return menu.RunInteractive(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/agctl/config.yaml)")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
