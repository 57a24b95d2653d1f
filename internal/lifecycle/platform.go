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
	"runtime"
	"slices"
	"strings"
)

// Platform identifies which process model and packaging conventions apply.
type Platform int

const (
	// PlatformOther is any OS without dedicated rules. Linux behavior is used.
	PlatformOther Platform = iota
	PlatformMacOS
	PlatformWindows
	PlatformLinux
)

// String returns the platform name used in logs.
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macos"
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	default:
		return "other"
	}
}

// PlatformFor maps a GOOS value to a Platform.
func PlatformFor(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	default:
		return PlatformOther
	}
}

// CurrentPlatform returns the Platform of the running binary.
// Callers resolve it once at startup and pass it down.
func CurrentPlatform() Platform {
	return PlatformFor(runtime.GOOS)
}

// AppSpec names the target application and the identifiers derived from it.
type AppSpec struct {
	// Name is the registered application name, e.g. "Antigravity".
	Name string

	// Scheme is the custom URI scheme the application handles.
	Scheme string

	// Command is the executable name looked up on PATH on Linux.
	Command string

	// Executable is an explicit install path used on Windows before any lookup.
	Executable string
}

// DefaultApp is the Antigravity desktop application.
var DefaultApp = AppSpec{
	Name:    "Antigravity",
	Scheme:  "antigravity",
	Command: "antigravity",
}

// key is the lower-cased name all matching is done against.
func (a AppSpec) key() string {
	return strings.ToLower(a.Name)
}

func (a AppSpec) bundleSegment() string {
	return a.key() + ".app"
}

// ImageName is the Windows image name of the main executable.
func (a AppSpec) ImageName() string {
	return a.Name + ".exe"
}

// LaunchURI is the activation link the application registers for.
func (a AppSpec) LaunchURI() string {
	scheme := a.Scheme
	if scheme == "" {
		scheme = a.key()
	}
	return scheme + "://oauth-success"
}

// capabilities is the per-platform behavior selected once at construction.
type capabilities struct {
	// match is the read-only "is this the target" rule.
	match func(app AppSpec, name, exe string) bool

	// shutdownMatch is the stricter rule applied after self exclusion.
	shutdownMatch func(app AppSpec, name, exe string) bool

	// quit asks the application to exit on its own. Nil skips Phase 0.
	quit func(c *Closer) ToolResult

	// openURI dispatches the activation link to the OS handler.
	openURI func(l *Launcher, uri string) ToolResult

	// native spawns the application without going through the URI handler.
	native func(l *Launcher) error

	// tools are the OS utilities the entry shells out to.
	tools []string
}

var capabilityTable = map[Platform]capabilities{
	PlatformMacOS: {
		match:         matchMacOS,
		shutdownMatch: matchMacOS,
		quit:          quitViaAppleScript,
		openURI:       openURIWith("open"),
		native:        launchMacOS,
		tools:         []string{"osascript", "open"},
	},
	PlatformWindows: {
		match:         matchWindows,
		shutdownMatch: matchWindowsForShutdown,
		quit:          quitViaTaskkill,
		openURI:       openURIWith("rundll32", "url.dll,FileProtocolHandler"),
		native:        launchWindows,
		tools:         []string{"taskkill", "rundll32"},
	},
	PlatformLinux: {
		match:         matchLinux,
		shutdownMatch: matchLinux,
		openURI:       openURIWith("xdg-open"),
		native:        launchLinux,
		tools:         []string{"xdg-open"},
	},
}

// RequiredTools lists the utilities the platform's quit and launch steps run.
func RequiredTools(p Platform) []string {
	return slices.Clone(capabilitiesFor(p).tools)
}

// capabilitiesFor returns the table entry, using Linux rules for PlatformOther.
func capabilitiesFor(p Platform) capabilities {
	if c, ok := capabilityTable[p]; ok {
		return c
	}
	return capabilityTable[PlatformLinux]
}

func matchMacOS(app AppSpec, _, exe string) bool {
	return strings.Contains(exe, app.bundleSegment())
}

func matchWindows(app AppSpec, name, exe string) bool {
	key := app.key()
	return name == key+".exe" || name == key || strings.Contains(exe, key)
}

// matchWindowsForShutdown keeps exact image name matches but drops path-only
// matches whose name contains "manager", so a companion manager process that
// lives in a similarly named directory survives.
func matchWindowsForShutdown(app AppSpec, name, exe string) bool {
	key := app.key()
	if name == key+".exe" || name == key {
		return true
	}
	return strings.Contains(exe, key) && !strings.Contains(name, "manager")
}

func matchLinux(app AppSpec, name, exe string) bool {
	key := app.key()
	return name == key || strings.Contains(exe, key)
}
