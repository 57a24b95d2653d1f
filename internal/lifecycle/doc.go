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
Package lifecycle starts, stops and detects the target desktop application.

A Detector classifies OS processes against the application on each
platform. The read-only query uses the plain target rule; shutdown uses a
stricter rule that never selects the controller itself, anything installed
next to it, or configured protected paths:

	detector := lifecycle.NewDetector(lifecycle.CurrentPlatform(), lifecycle.DefaultApp,
	    lifecycle.NewSystemProcessTable(), lifecycle.CurrentSelf())
	if detector.IsRunning() {
	    // ...
	}

# Shutdown

Close runs three phases: an app-level quit request (AppleScript on macOS,
taskkill without /F on Windows), a cooperative termination signal with a
bounded liveness poll, and an optional forced kill. Close always returns a
ShutdownResult; faults are reported as ShutdownFailed:

	closer := lifecycle.NewCloser(detector, lifecycle.NewExecRunner(nil))
	result := closer.Close(10, true)
	if result.Status != lifecycle.ShutdownSuccess {
	    // result.Remaining lists the processes that survived
	}

# Launch

Start tries the registered URI handler and falls back to a native launch,
or the reverse, with at most one retry:

	launcher := lifecycle.NewLauncher(lifecycle.CurrentPlatform(), lifecycle.DefaultApp, runner)
	ok := launcher.Start(true)

# Operation Lock

OperationLock keeps two controller invocations from driving the application
at the same time. LifecycleLogger appends every start and stop to a
JSON-lines audit log.
*/
package lifecycle
