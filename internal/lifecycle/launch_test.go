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

package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLauncher(platform Platform, runner *fakeRunner, recorder Recorder) *Launcher {
	return NewLauncher(platform, DefaultApp, runner).
		WithLogger(discardLogger()).
		WithRecorder(recorder)
}

func TestStart_PreferURI(t *testing.T) {
	tests := []struct {
		platform Platform
		tool     string
		args     []string
	}{
		{PlatformMacOS, "open", []string{"antigravity://oauth-success"}},
		{PlatformWindows, "rundll32", []string{"url.dll,FileProtocolHandler", "antigravity://oauth-success"}},
		{PlatformLinux, "xdg-open", []string{"antigravity://oauth-success"}},
		{PlatformOther, "xdg-open", []string{"antigravity://oauth-success"}},
	}

	for _, tt := range tests {
		t.Run(tt.platform.String(), func(t *testing.T) {
			runner := newFakeRunner()
			recorder := newRecordingRecorder()

			ok := newTestLauncher(tt.platform, runner, recorder).Start(true)

			assert.True(t, ok)
			require.Len(t, runner.calls, 1)
			assert.Equal(t, tt.tool, runner.calls[0].name)
			assert.Equal(t, tt.args, runner.calls[0].args)
			assert.False(t, runner.calls[0].spawn)
			assert.Equal(t, 10*time.Second, runner.calls[0].deadline)
			assert.Equal(t, []string{"uri:ok"}, recorder.launches)
		})
	}
}

func TestStart_URIFailsFallsBackToNativeOnce(t *testing.T) {
	tests := []struct {
		name       string
		nativeErr  error
		wantOK     bool
		wantLaunch []string
	}{
		{
			name:       "native succeeds",
			wantOK:     true,
			wantLaunch: []string{"uri:fail", "native:ok"},
		},
		{
			name:       "native fails too",
			nativeErr:  errors.New("exec: \"antigravity\": executable file not found in $PATH"),
			wantOK:     false,
			wantLaunch: []string{"uri:fail", "native:fail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.results["xdg-open"] = ToolResult{Status: ToolNonZeroExit, ExitCode: 4}
			runner.spawnErr["antigravity"] = tt.nativeErr
			recorder := newRecordingRecorder()

			ok := newTestLauncher(PlatformLinux, runner, recorder).Start(true)

			assert.Equal(t, tt.wantOK, ok)
			assert.Len(t, runner.callsTo("xdg-open"), 1)
			spawns := runner.callsTo("antigravity")
			require.Len(t, spawns, 1, "native launch is attempted exactly once")
			assert.True(t, spawns[0].spawn)
			assert.Equal(t, tt.wantLaunch, recorder.launches)
		})
	}
}

func TestStart_NativeFirst(t *testing.T) {
	t.Run("native succeeds without touching the URI handler", func(t *testing.T) {
		runner := newFakeRunner()

		ok := newTestLauncher(PlatformLinux, runner, newRecordingRecorder()).Start(false)

		assert.True(t, ok)
		assert.Empty(t, runner.callsTo("xdg-open"))
		assert.Len(t, runner.callsTo("antigravity"), 1)
	})

	t.Run("native fails then URI once", func(t *testing.T) {
		runner := newFakeRunner()
		runner.spawnErr["antigravity"] = errors.New("not found")
		recorder := newRecordingRecorder()

		ok := newTestLauncher(PlatformLinux, runner, recorder).Start(false)

		assert.True(t, ok)
		assert.Equal(t, []string{"native:fail", "uri:ok"}, recorder.launches)
	})

	t.Run("both fail", func(t *testing.T) {
		runner := newFakeRunner()
		runner.spawnErr["antigravity"] = errors.New("not found")
		runner.results["xdg-open"] = ToolResult{Status: ToolMissing, ExitCode: -1}

		ok := newTestLauncher(PlatformLinux, runner, newRecordingRecorder()).Start(false)

		assert.False(t, ok)
		assert.Len(t, runner.calls, 2, "no further retries")
	})
}

func TestStart_MacOSNative(t *testing.T) {
	runner := newFakeRunner()

	ok := newTestLauncher(PlatformMacOS, runner, newRecordingRecorder()).Start(false)

	assert.True(t, ok)
	spawns := runner.callsTo("open")
	require.Len(t, spawns, 1)
	assert.True(t, spawns[0].spawn)
	assert.Equal(t, []string{"-a", "Antigravity"}, spawns[0].args)
}

func TestStart_WindowsNative(t *testing.T) {
	exe := `C:\Users\me\AppData\Local\Programs\Antigravity\Antigravity.exe`

	t.Run("located executable is spawned", func(t *testing.T) {
		runner := newFakeRunner()
		launcher := newTestLauncher(PlatformWindows, runner, newRecordingRecorder()).
			WithLocator(func(AppSpec) (string, error) { return exe, nil })

		ok := launcher.Start(false)

		assert.True(t, ok)
		spawns := runner.callsTo(exe)
		require.Len(t, spawns, 1)
		assert.Empty(t, spawns[0].args)
	})

	t.Run("not installed falls back to URI", func(t *testing.T) {
		runner := newFakeRunner()
		recorder := newRecordingRecorder()
		launcher := newTestLauncher(PlatformWindows, runner, recorder).
			WithLocator(func(AppSpec) (string, error) { return "", ErrExecutableNotFound })

		ok := launcher.Start(false)

		assert.True(t, ok)
		assert.Len(t, runner.callsTo("rundll32"), 1)
		assert.Equal(t, []string{"native:fail", "uri:ok"}, recorder.launches)
	})

	t.Run("URI first then not installed", func(t *testing.T) {
		runner := newFakeRunner()
		runner.results["rundll32"] = ToolResult{Status: ToolTimedOut, ExitCode: -1}
		launcher := newTestLauncher(PlatformWindows, runner, newRecordingRecorder()).
			WithLocator(func(AppSpec) (string, error) { return "", ErrExecutableNotFound })

		assert.False(t, launcher.Start(true))
		assert.Len(t, runner.calls, 1, "nothing to spawn")
	})
}

func TestStart_LinuxEmptyCommandUsesName(t *testing.T) {
	runner := newFakeRunner()
	app := AppSpec{Name: "Antigravity"}

	ok := NewLauncher(PlatformLinux, app, runner).WithLogger(discardLogger()).Start(false)

	assert.True(t, ok)
	assert.Len(t, runner.callsTo("antigravity"), 1)
}

func TestStart_RecoversFromPanic(t *testing.T) {
	launcher := NewLauncher(PlatformLinux, DefaultApp, nil).WithLogger(discardLogger())

	var ok bool
	require.NotPanics(t, func() {
		ok = launcher.Start(true)
	})
	assert.False(t, ok)
}

func TestWithURITimeout(t *testing.T) {
	runner := newFakeRunner()
	launcher := newTestLauncher(PlatformLinux, runner, newRecordingRecorder()).WithURITimeout(4 * time.Second)

	launcher.Start(true)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, 4*time.Second, runner.calls[0].deadline)
}

func TestAppSpec_LaunchURI(t *testing.T) {
	assert.Equal(t, "antigravity://oauth-success", DefaultApp.LaunchURI())
	assert.Equal(t, "other://oauth-success", AppSpec{Name: "Other"}.LaunchURI())
	assert.Equal(t, "Other.exe", AppSpec{Name: "Other"}.ImageName())
}
