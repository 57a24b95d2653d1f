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

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes for agctl commands
const (
	ExitSuccess         = 0
	ExitOperationFailed = 1   // The application could not be stopped or started
	ExitInvalidUsage    = 2   // Bad flags or configuration
	ExitLockHeld        = 3   // Another agctl operation is in progress
	ExitUserAborted     = 130 // Interactive prompt cancelled (128 + SIGINT)
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error

	// Suggestion is printed after the error when set.
	Suggestion string
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewOperationError creates an error for a failed start or stop
func NewOperationError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitOperationFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewUsageError creates an error for invalid flags or configuration
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidUsage,
		Message: msg,
		Cause:   cause,
	}
}

// NewLockHeldError creates an error for a concurrent agctl invocation
func NewLockHeldError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:       ExitLockHeld,
		Message:    msg,
		Cause:      cause,
		Suggestion: "Wait for the other agctl command to finish, then retry",
	}
}

// NewAbortError creates an error for a cancelled interactive prompt
func NewAbortError(cause error) *ExitError {
	return &ExitError{
		Code:    ExitUserAborted,
		Message: "aborted",
		Cause:   cause,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitOperationFailed
}

// HandleExitError prints err and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		emitJSONExitError(os.Stdout, err)
	} else {
		printExitError(os.Stderr, err)
	}
	os.Exit(ExitCode(err))
}

func printExitError(w io.Writer, err error) {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(w, "Error:", err.Error())
		return
	}

	// A failed operation already printed its summary.
	if exitErr.Message != "" {
		fmt.Fprintln(w, "Error:", exitErr.Error())
	}
	if exitErr.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", exitErr.Suggestion)
	}
}

// emitJSONExitError writes err as a JSON error response unless it is the
// silent error of a command that already wrote its own response.
func emitJSONExitError(w io.Writer, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Message == "" {
		return
	}
	_ = EmitJSONErrorTo(w, "agctl", []JSONError{JSONErrorFrom(err, "")})
}
