// Copyright 2025 The Workspaced Authors
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

package namespace

import (
	"context"
	"regexp"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var containerFieldPath = regexp.MustCompile(`^spec\.(?:initContainers|containers)\{(.+)\}$`)

// PodEvent is a cluster Event about a workspace pod.
type PodEvent struct {
	PodName string
	// Workload is the Deployment the pod belongs to, or the pod name for bare pods.
	Workload      string
	ContainerName string
	Reason        string
	Message       string
	Time          time.Time
}

// PodEventHandler receives pod events. Handlers run on the watch goroutine and must not block.
type PodEventHandler func(PodEvent)

// podEventWatch owns the single Event watch of a Deployments manager.
type podEventWatch struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	handlers []PodEventHandler
}

// WatchEvents registers handler for Events about pods in the namespace. The
// first call starts the watch; later calls only add handlers. Events older
// than the watch are dropped, and so are events about pods of other
// workspaces sharing the namespace.
func (d *Deployments) WatchEvents(ctx context.Context, handler PodEventHandler) error {
	d.events.mu.Lock()
	defer d.events.mu.Unlock()

	d.events.handlers = append(d.events.handlers, handler)
	if d.events.cancel != nil {
		return nil
	}

	w, err := openWatch(ctx, d.client, &corev1.EventList{}, d.namespace)
	if err != nil {
		d.events.handlers = nil
		return err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	d.events.cancel = cancel
	since := time.Now().Truncate(time.Second)

	go d.dispatchEvents(watchCtx, w, since)
	return nil
}

// StopWatch stops the Event watch and drops every handler. It is a no-op when no watch runs.
func (d *Deployments) StopWatch() {
	d.events.mu.Lock()
	defer d.events.mu.Unlock()

	if d.events.cancel != nil {
		d.events.cancel()
		d.events.cancel = nil
	}
	d.events.handlers = nil
}

func (d *Deployments) dispatchEvents(ctx context.Context, w watch.Interface, since time.Time) {
	defer w.Stop()
	logger := logf.FromContext(ctx).WithValues("namespace", d.namespace)
	// pod name to workload, "" for pods of other workspaces
	owners := make(map[string]string)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-w.ResultChan():
			if !ok {
				logger.V(1).Info("pod event watch closed")
				return
			}
			if e.Type != watch.Added && e.Type != watch.Modified {
				continue
			}
			event, ok := e.Object.(*corev1.Event)
			if !ok || event.InvolvedObject.Kind != "Pod" {
				continue
			}
			podEvent := toPodEvent(event)
			if podEvent.Time.Before(since) {
				continue
			}
			workload, ok := owners[podEvent.PodName]
			if !ok {
				var err error
				if workload, ok, err = d.workloadOf(ctx, podEvent.PodName); err != nil {
					logger.V(1).Info("Failed to resolve pod of event", "pod", podEvent.PodName, "error", err.Error())
					continue
				}
				if ok {
					owners[podEvent.PodName] = workload
				}
			}
			if workload == "" {
				continue
			}
			podEvent.Workload = workload

			d.events.mu.Lock()
			handlers := append([]PodEventHandler(nil), d.events.handlers...)
			d.events.mu.Unlock()
			for _, handle := range handlers {
				handle(podEvent)
			}
		}
	}
}

// workloadOf resolves the workload of pod name from its labels. It reports
// false while the pod cannot be found, and "" for a pod of another workspace.
func (d *Deployments) workloadOf(ctx context.Context, name string) (string, bool, error) {
	pod := &corev1.Pod{}
	if err := d.client.Get(ctx, d.key(name), pod); err != nil {
		if apierrors.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if pod.Labels[WorkspaceIDLabel] != d.workspaceID {
		return "", true, nil
	}
	if workload := pod.Labels[DeploymentNameLabel]; workload != "" {
		return workload, true, nil
	}
	return pod.Name, true, nil
}

func toPodEvent(event *corev1.Event) PodEvent {
	pe := PodEvent{
		PodName: event.InvolvedObject.Name,
		Reason:  event.Reason,
		Message: event.Message,
	}
	if m := containerFieldPath.FindStringSubmatch(event.InvolvedObject.FieldPath); m != nil {
		pe.ContainerName = m[1]
	}
	switch {
	case !event.LastTimestamp.IsZero():
		pe.Time = event.LastTimestamp.Time
	case !event.EventTime.IsZero():
		pe.Time = event.EventTime.Time
	default:
		pe.Time = event.CreationTimestamp.Time
	}
	return pe
}
