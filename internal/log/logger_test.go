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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"AGCTL_DEBUG", "AGCTL_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
		t.Setenv(key, "")
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format 'text', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		level     string
		format    Format
		addSource bool
	}{
		{
			name:   "defaults when no env vars",
			level:  "info",
			format: FormatText,
		},
		{
			name:    "LOG_LEVEL=DEBUG (case insensitive)",
			envVars: map[string]string{"LOG_LEVEL": "DEBUG"},
			level:   "debug",
			format:  FormatText,
		},
		{
			name:    "LOG_FORMAT=json",
			envVars: map[string]string{"LOG_FORMAT": "JSON"},
			level:   "info",
			format:  FormatJSON,
		},
		{
			name:      "LOG_SOURCE=1",
			envVars:   map[string]string{"LOG_SOURCE": "1"},
			level:     "info",
			format:    FormatText,
			addSource: true,
		},
		{
			name:    "AGCTL_LOG_LEVEL wins over LOG_LEVEL",
			envVars: map[string]string{"AGCTL_LOG_LEVEL": "warn", "LOG_LEVEL": "error"},
			level:   "warn",
			format:  FormatText,
		},
		{
			name:      "AGCTL_DEBUG wins over everything",
			envVars:   map[string]string{"AGCTL_DEBUG": "true", "AGCTL_LOG_LEVEL": "error", "LOG_LEVEL": "error"},
			level:     "debug",
			format:    FormatText,
			addSource: true,
		},
		{
			name:      "AGCTL_DEBUG=1",
			envVars:   map[string]string{"AGCTL_DEBUG": "1"},
			level:     "debug",
			format:    FormatText,
			addSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.level {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.level)
			}
			if cfg.Format != tt.format {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.format)
			}
			if cfg.AddSource != tt.addSource {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.addSource)
			}
		})
	}
}

func TestApplyEnv_KeepsConfiguredValues(t *testing.T) {
	clearEnv(t)

	cfg := ApplyEnv(&Config{Level: "warn", Format: FormatJSON})
	if cfg.Level != "warn" || cfg.Format != FormatJSON {
		t.Errorf("ApplyEnv changed values without env: %+v", cfg)
	}

	t.Setenv("AGCTL_LOG_LEVEL", "debug")
	if cfg := ApplyEnv(&Config{Level: "warn"}); cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Level)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("Sending termination signal (SIGTERM)...", "pid", 100)

	entry := decodeLine(t, &buf)
	if entry["msg"] != "Sending termination signal (SIGTERM)..." {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("unexpected level %v", entry["level"])
	}
	if entry["pid"] != float64(100) {
		t.Errorf("unexpected pid %v", entry["pid"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Warn("graceful quit request failed", "status", "tool_missing")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=tool_missing") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestNilConfig(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("New(nil) returned nil")
	}
	if New(&Config{}) == nil {
		t.Fatal("New with zero config returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	out := buf.String()
	for _, hidden := range []string{"debug line", "info line"} {
		if strings.Contains(out, hidden) {
			t.Errorf("output contains %q below level", hidden)
		}
	}
	for _, shown := range []string{"warn line", "error line"} {
		if !strings.Contains(out, shown) {
			t.Errorf("output missing %q", shown)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger = WithComponent(logger, "shutdown")
	logger = WithOperationID(logger, "op-123")
	logger = WithTarget(logger, "Antigravity", "linux")
	logger.Info("closing", Duration("wait", 1500), Error(errors.New("boom")))

	entry := decodeLine(t, &buf)
	want := map[string]any{
		ComponentKey:   "shutdown",
		OperationIDKey: "op-123",
		AppKey:         "Antigravity",
		PlatformKey:    "linux",
		"wait_ms":      float64(1500),
		"error":        "boom",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestAddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf, AddSource: true})

	logger.Info("with source")

	if _, ok := decodeLine(t, &buf)["source"]; !ok {
		t.Error("expected source field")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger should not be enabled at error level")
	}
	logger.Error("dropped")
}
