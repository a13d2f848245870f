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
	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
)

// Event reasons recorded on WorkspaceRuntime objects.
const (
	ReasonAbnormalStopping = "AbnormalStopping"
	ReasonAbnormalStopped  = "AbnormalStopped"
	ReasonMachineFailed    = "MachineFailed"
)

// ObjectResolver returns the object Kubernetes Events about a workspace are attached to.
type ObjectResolver func(workspaceID string) runtime.Object

// MirrorToRecorder records abnormal stops and machine failures published on
// b as Warning Events. It returns the function that stops mirroring.
func MirrorToRecorder(b *Bus, recorder record.EventRecorder, objectFor ObjectResolver) func() {
	unsubscribers := []func(){
		Subscribe(b, func(e RuntimeAbnormalStoppingEvent) {
			recorder.Eventf(objectFor(e.Identity.WorkspaceID), corev1.EventTypeWarning, ReasonAbnormalStopping,
				"Stopping runtime of workspace %s: %s", e.Identity.WorkspaceID, e.Reason)
		}),
		Subscribe(b, func(e RuntimeAbnormalStoppedEvent) {
			if e.Error != "" {
				recorder.Eventf(objectFor(e.Identity.WorkspaceID), corev1.EventTypeWarning, ReasonAbnormalStopped,
					"Runtime of workspace %s stopped with error: %s", e.Identity.WorkspaceID, e.Error)
				return
			}
			recorder.Eventf(objectFor(e.Identity.WorkspaceID), corev1.EventTypeWarning, ReasonAbnormalStopped,
				"Runtime of workspace %s stopped: %s", e.Identity.WorkspaceID, e.Reason)
		}),
		Subscribe(b, func(e MachineStatusEvent) {
			if e.Status != workspacev1alpha1.MachineFailed {
				return
			}
			recorder.Eventf(objectFor(e.Identity.WorkspaceID), corev1.EventTypeWarning, ReasonMachineFailed,
				"Machine %s failed: %s", e.MachineName, e.Error)
		}),
	}

	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}
