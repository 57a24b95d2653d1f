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
	"encoding/json"
	"errors"
	"io"
	"os"
)

// JSONVersion is the envelope version of every JSON response.
const JSONVersion = "1.0"

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewJSONResponse creates the envelope for command.
func NewJSONResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: JSONVersion, Command: command, Success: success}
}

// JSONError represents a structured error with code, message and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// JSONErrorFrom converts err to a JSONError, using the exit code for the
// error code unless code is given.
func JSONErrorFrom(err error, code string) JSONError {
	je := JSONError{Code: code, Message: err.Error()}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if je.Code == "" {
			je.Code = mapExitErrorToCode(exitErr)
		}
		je.Suggestion = exitErr.Suggestion
	}
	if je.Code == "" {
		je.Code = ErrorCodeInternal
	}
	return je
}

// EmitJSONTo marshals a response as indented JSON to w
func EmitJSONTo(w io.Writer, response any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSON marshals a response as indented JSON to stdout
func EmitJSON(response any) error {
	return EmitJSONTo(os.Stdout, response)
}

// EmitJSONErrorTo creates and emits a JSON error response
func EmitJSONErrorTo(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	return EmitJSONTo(w, errorResponse{
		JSONResponse: NewJSONResponse(command, false),
		Errors:       errs,
	})
}
