/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package consistency stops workspace runtimes that lost their cluster resources.
//
// A runtime is recorded as RUNNING in a WorkspaceRuntime object, but the pods
// backing its machines can disappear behind the system's back: a node is
// drained, an operator deletes a deployment, or a namespace is wiped. The
// Checker notices such drift and tears the runtime down so its state matches
// the cluster again.
//
// Key features:
//   - Periodic sweep based on configurable interval (default: 1 minute)
//   - Checks every runtime tracked by this process
//   - Leaves runtimes that are already stopping alone
//   - Publishes abnormal stopping and stopped events around each forced stop
//   - One failing workspace never blocks the rest of a sweep
//
// Tracking:
//
// Runtimes are added to the sweep when they reach RUNNING and removed when
// they begin stopping. The recovery controller tracks RUNNING runtimes found
// after a restart, so a sweep covers every runtime marked RUNNING.
//
// Example usage:
//
//	checker := consistency.NewChecker(registry, bus, time.Minute)
//	deps.Tracker = checker
//	if err := mgr.Add(checker); err != nil {
//		return err
//	}
package consistency
