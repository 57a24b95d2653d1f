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

/*
Package cli provides the root command and shared configuration for agctl's CLI.

This package creates the main Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	agctl           Interactive menu on a terminal, help otherwise
	├── status      Show whether the application is running
	├── start       Launch the application
	├── stop        Close the application
	├── menu        Interactive menu
	├── doctor      Check configuration and required OS utilities
	├── completion  Generate shell completion scripts
	├── version     Show version
	└── help        Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable debug logging
	--quiet, -q      Only log errors
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - Exit 0: Success
  - Exit 1: Operation failed, or the application is not running (status)
  - Exit 2: Invalid usage or configuration
  - Exit 3: Another agctl operation holds the lock
  - Exit 130: Interactive prompt cancelled
*/
package cli
