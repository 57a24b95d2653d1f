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

package shared

// Error codes for structured JSON output
const (
	// Configuration errors (E001-E099)
	ErrorCodeInvalidConfig = "E001" // Config file or environment override invalid
	ErrorCodeInvalidUsage  = "E002" // Invalid flag value

	// Operation errors (E100-E199)
	ErrorCodeShutdownFailed   = "E101" // Processes survived the shutdown
	ErrorCodeLaunchFailed     = "E102" // Every launch method failed
	ErrorCodeReadinessTimeout = "E103" // Application did not appear in time

	// Coordination errors (E200-E299)
	ErrorCodeLockHeld = "E201" // Another agctl operation is in progress

	// Interaction errors (E300-E399)
	ErrorCodeAborted = "E301" // Prompt cancelled

	// Internal errors (E400-E499)
	ErrorCodeInternal = "E401"
)

// mapExitErrorToCode maps ExitError codes to JSON error codes
func mapExitErrorToCode(exitErr *ExitError) string {
	if exitErr == nil {
		return ""
	}

	switch exitErr.Code {
	case ExitInvalidUsage:
		return ErrorCodeInvalidUsage
	case ExitLockHeld:
		return ErrorCodeLockHeld
	case ExitUserAborted:
		return ErrorCodeAborted
	case ExitOperationFailed:
		return ErrorCodeInternal
	default:
		return ErrorCodeInternal
	}
}
