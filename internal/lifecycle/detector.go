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
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Detector enumerates OS processes and classifies them against the target
// application. Nothing is cached: every call re-reads the process table.
type Detector struct {
	platform  Platform
	caps      capabilities
	app       AppSpec
	table     ProcessTable
	self      SelfExclusion
	protected []string
	logger    *slog.Logger
}

// NewDetector creates a detector for app on platform.
func NewDetector(platform Platform, app AppSpec, table ProcessTable, self SelfExclusion) *Detector {
	return &Detector{
		platform: platform,
		caps:     capabilitiesFor(platform),
		app:      app,
		table:    table,
		self:     self,
		logger:   slog.Default(),
	}
}

// WithProtectedPaths adds doublestar globs whose matching executables are
// never eligible for shutdown. Patterns are matched case-insensitively
// against forward-slash paths.
func (d *Detector) WithProtectedPaths(patterns []string) (*Detector, error) {
	protected := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid protected path pattern %q", p)
		}
		protected = append(protected, p)
	}
	d.protected = protected
	return d, nil
}

// WithLogger sets the logger.
func (d *Detector) WithLogger(logger *slog.Logger) *Detector {
	d.logger = logger
	return d
}

// Platform returns the platform the detector classifies for.
func (d *Detector) Platform() Platform {
	return d.platform
}

// App returns the target application.
func (d *Detector) App() AppSpec {
	return d.app
}

// Table returns the underlying process table.
func (d *Detector) Table() ProcessTable {
	return d.table
}

// Enumerate returns a fresh, restartable sequence over all visible processes.
func (d *Detector) Enumerate() iter.Seq2[ProcessHandle, error] {
	return d.table.Processes()
}

// IsTarget applies the read-only classification rule for platform.
func (d *Detector) IsTarget(platform Platform, h ProcessHandle) bool {
	name, exe := strings.ToLower(h.Name), strings.ToLower(h.ExecutablePath)
	return d.capabilities(platform).match(d.app, name, exe)
}

// IsTargetForShutdown is the stricter rule used before any signal is sent:
// the controller's own pid and install directory are excluded, configured
// protected paths are excluded, and on Windows companion "manager"
// processes that only match by path are excluded.
func (d *Detector) IsTargetForShutdown(platform Platform, h ProcessHandle, self SelfExclusion) bool {
	if self.Excludes(h) {
		return false
	}
	if d.isProtected(h) {
		return false
	}
	name, exe := strings.ToLower(h.Name), strings.ToLower(h.ExecutablePath)
	return d.capabilities(platform).shutdownMatch(d.app, name, exe)
}

// capabilities returns the entry selected at construction for the
// detector's own platform.
func (d *Detector) capabilities(platform Platform) capabilities {
	if platform == d.platform {
		return d.caps
	}
	return capabilitiesFor(platform)
}

func (d *Detector) isProtected(h ProcessHandle) bool {
	if len(d.protected) == 0 || h.ExecutablePath == "" {
		return false
	}
	path := strings.ToLower(strings.ReplaceAll(h.ExecutablePath, `\`, "/"))
	for _, pattern := range d.protected {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// IsRunning reports whether any process matches the read-only rule.
// Enumeration failures are logged and reported as not running.
func (d *Detector) IsRunning() bool {
	for h, err := range d.Enumerate() {
		if err != nil {
			d.logger.Warn("process enumeration failed", "error", err)
			return false
		}
		if d.IsTarget(d.platform, h) {
			return true
		}
	}
	return false
}

// ShutdownTargets returns the shutdown-eligible set for the current process
// table, plus the number of processes that matched the target rule but were
// left alone because of a configured protected path.
func (d *Detector) ShutdownTargets() (targets []ProcessHandle, protected int, err error) {
	for h, err := range d.Enumerate() {
		if err != nil {
			return nil, 0, err
		}
		if d.IsTargetForShutdown(d.platform, h, d.self) {
			targets = append(targets, h)
			continue
		}
		if !d.self.Excludes(h) && d.isProtected(h) && d.IsTarget(d.platform, h) {
			protected++
		}
	}
	return targets, protected, nil
}
