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

// Package events carries workspace runtime notifications between components.
//
// The Bus is an in-process publish/subscribe hub keyed by event type: a
// subscriber for MachineStatusEvent only ever sees MachineStatusEvent values.
// Handlers run synchronously on the publishing goroutine, in subscription
// order, and may unsubscribe themselves while being called.
//
// Example usage:
//
//	bus := events.NewBus()
//	unsubscribe := events.Subscribe(bus, func(e events.MachineStatusEvent) {
//		log.Info("machine status changed", "machine", e.MachineName, "status", e.Status)
//	})
//	defer unsubscribe()
//
//	events.Publish(bus, events.MachineStatusEvent{MachineName: "app/web", Status: v1alpha1.MachineRunning})
//
// Abnormal stops and machine failures can additionally be mirrored as
// Kubernetes Events on the WorkspaceRuntime object with MirrorToRecorder.
package events
