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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tombee/agctl/internal/commands/shared"
	"github.com/tombee/agctl/internal/config"
)

// CommandMetadata describes a command for JSON help output
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Examples    string         `json:"examples,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
	Group       string         `json:"group,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
}

// FlagMetadata describes a flag
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// ExitCodeMetadata documents one process exit code
type ExitCodeMetadata struct {
	Code    int    `json:"code"`
	Meaning string `json:"meaning"`
}

// HelpResponse is the JSON response for the help command
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata  `json:"commands,omitempty"`
	Command     *CommandMetadata   `json:"command,omitempty"`
	GlobalFlags []FlagMetadata     `json:"global_flags,omitempty"`
	ExitCodes   []ExitCodeMetadata `json:"exit_codes"`
	ConfigPath  string             `json:"config_path,omitempty"`
}

var exitCodes = []ExitCodeMetadata{
	{Code: shared.ExitSuccess, Meaning: "operation succeeded"},
	{Code: shared.ExitOperationFailed, Meaning: "operation failed or application not running (status)"},
	{Code: shared.ExitInvalidUsage, Meaning: "invalid flags or configuration"},
	{Code: shared.ExitLockHeld, Meaning: "another agctl operation is in progress"},
	{Code: shared.ExitUserAborted, Meaning: "interactive prompt cancelled"},
}

// NewHelpCommand creates the help command
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.

Run 'agctl help <command>' to see detailed help for a specific command.
Use --json for machine-readable output, including the exit codes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useJSON := shared.GetJSON() || jsonOutput

			if len(args) == 0 {
				if useJSON {
					return outputHelpJSON(cmd, rootCmd, nil)
				}
				return rootCmd.Help()
			}

			targetCmd, _, err := rootCmd.Find(args)
			if err != nil || targetCmd == rootCmd {
				return shared.NewUsageError(fmt.Sprintf("unknown command %q", args[0]), nil)
			}

			if useJSON {
				return outputHelpJSON(cmd, rootCmd, targetCmd)
			}
			return targetCmd.Help()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// outputHelpJSON writes either the full command list or, when target is
// set, the metadata of one command.
func outputHelpJSON(cmd, rootCmd, target *cobra.Command) error {
	name := "help"
	resp := HelpResponse{
		GlobalFlags: extractGlobalFlags(rootCmd),
		ExitCodes:   exitCodes,
	}
	if path, err := config.ConfigPath(); err == nil {
		resp.ConfigPath = path
	}

	if target != nil {
		metadata := extractCommandMetadata(target)
		resp.Command = &metadata
		name += " " + target.Name()
	} else {
		for _, c := range rootCmd.Commands() {
			if c.Hidden {
				continue
			}
			resp.Commands = append(resp.Commands, extractCommandMetadata(c))
		}
	}
	resp.JSONResponse = shared.NewJSONResponse(name, true)

	return shared.EmitJSONTo(cmd.OutOrStdout(), resp)
}

func extractCommandMetadata(cmd *cobra.Command) CommandMetadata {
	metadata := CommandMetadata{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Examples: cmd.Example,
		Aliases:  cmd.Aliases,
		Group:    cmd.Annotations["group"],
		Flags:    visibleFlags(cmd.Flags()),
	}

	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			metadata.Subcommands = append(metadata.Subcommands, sub.Name())
		}
	}

	return metadata
}

func extractGlobalFlags(rootCmd *cobra.Command) []FlagMetadata {
	return visibleFlags(rootCmd.PersistentFlags())
}

func visibleFlags(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		flags = append(flags, FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		})
	})
	return flags
}
