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

package events

import (
	"time"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
)

// MachineStatusEvent reports a machine status transition.
type MachineStatusEvent struct {
	Identity    workspacev1alpha1.RuntimeIdentity
	MachineName string
	Status      workspacev1alpha1.MachineStatus
	// Error is set for FAILED transitions
	Error string
}

// RuntimeStoppingEvent is published when a runtime begins stopping.
type RuntimeStoppingEvent struct {
	Identity workspacev1alpha1.RuntimeIdentity
}

// RuntimeStoppedEvent is published when a runtime has been stopped.
type RuntimeStoppedEvent struct {
	Identity workspacev1alpha1.RuntimeIdentity
}

// RuntimeAbnormalStoppingEvent is published before a runtime that drifted
// from the cluster state is forcibly stopped.
type RuntimeAbnormalStoppingEvent struct {
	Identity workspacev1alpha1.RuntimeIdentity
	Reason   string
}

// RuntimeAbnormalStoppedEvent is published once a forced stop finished,
// whether or not it succeeded.
type RuntimeAbnormalStoppedEvent struct {
	Identity workspacev1alpha1.RuntimeIdentity
	Reason   string
	// Error is set when the forced stop failed
	Error string
}

// MachineLogEvent carries a cluster event about a machine's container as a log line.
type MachineLogEvent struct {
	Identity    workspacev1alpha1.RuntimeIdentity
	MachineName string
	Text        string
	Time        time.Time
}

// ServerStatusEvent reports a changed server status.
type ServerStatusEvent struct {
	Identity    workspacev1alpha1.RuntimeIdentity
	MachineName string
	ServerName  string
	Status      workspacev1alpha1.ServerStatus
	URL         string
}
