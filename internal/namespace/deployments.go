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
	"fmt"
	"strings"

	"github.com/mikelane/workspaced/internal/infra"
	"go.uber.org/multierr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const terminatedCommandMessage = "Pod container has been terminated. Container must be configured to use a non-terminating command."

// Deployments manages workspace pods. Workspace pods are never created bare:
// each is wrapped into a single-replica Deployment named after the pod.
type Deployments struct {
	client      client.WithWatch
	namespace   string
	workspaceID string
	timeouts    Timeouts
	logs        LogReader
	logLines    int64
	events      podEventWatch
}

func newDeployments(c client.WithWatch, namespace, workspaceID string, timeouts Timeouts, logs LogReader, logLines int64) *Deployments {
	return &Deployments{
		client:      c,
		namespace:   namespace,
		workspaceID: workspaceID,
		timeouts:    timeouts,
		logs:        logs,
		logLines:    logLines,
	}
}

// Deploy wraps pod into a Deployment and returns the pod the Deployment materializes.
func (d *Deployments) Deploy(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	putLabel(pod, WorkspaceIDLabel, d.workspaceID)
	putLabel(pod, DeploymentNameLabel, pod.Name)

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        pod.Name,
			Labels:      copyLabels(pod.Labels),
			Annotations: pod.Annotations,
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{MatchLabels: copyLabels(pod.Labels)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      copyLabels(pod.Labels),
					Annotations: pod.Annotations,
				},
				Spec: pod.Spec,
			},
		},
	}
	return d.DeployDeployment(ctx, deployment)
}

// DeployDeployment creates deployment with a single replica and blocks until its pod exists.
// Success is judged by the pod appearing, not by the Deployment status, which lags behind.
func (d *Deployments) DeployDeployment(ctx context.Context, deployment *appsv1.Deployment) (*corev1.Pod, error) {
	name := deployment.Name
	deployment.Namespace = d.namespace
	putLabel(deployment, WorkspaceIDLabel, d.workspaceID)
	putLabel(&deployment.Spec.Template.ObjectMeta, WorkspaceIDLabel, d.workspaceID)
	putLabel(&deployment.Spec.Template.ObjectMeta, DeploymentNameLabel, name)
	if deployment.Spec.Selector == nil {
		deployment.Spec.Selector = &metav1.LabelSelector{MatchLabels: map[string]string{DeploymentNameLabel: name}}
	}
	deployment.Spec.Replicas = ptr.To[int32](1)
	deployment.Spec.Template.Spec.RestartPolicy = corev1.RestartPolicyAlways

	w, err := openWatch(ctx, d.client, &corev1.PodList{}, d.namespace)
	if err != nil {
		return nil, err
	}
	defer w.Stop()

	if err := d.client.Create(ctx, deployment); err != nil {
		return nil, infra.Wrap(err, "failed to create deployment %q in namespace %q", name, d.namespace)
	}

	pod, err := d.podOf(ctx, deployment)
	if err != nil || pod != nil {
		return pod, err
	}

	return awaitEvent(ctx, w, d.timeouts.PodCreation, fmt.Sprintf("pod of deployment %q to be created", name),
		func(event watch.EventType, p *corev1.Pod) (bool, error) {
			return event != watch.Deleted && p.Labels[DeploymentNameLabel] == name, nil
		})
}

// Get returns the pod with the given name, or the pod of the Deployment with
// that name. It returns nil when neither exists.
func (d *Deployments) Get(ctx context.Context, name string) (*corev1.Pod, error) {
	pod := &corev1.Pod{}
	err := d.client.Get(ctx, d.key(name), pod)
	switch {
	case err == nil:
		return pod, nil
	case !apierrors.IsNotFound(err):
		return nil, infra.Wrap(err, "failed to get pod %q in namespace %q", name, d.namespace)
	}

	deployment, err := d.GetDeployment(ctx, name)
	if err != nil || deployment == nil {
		return nil, err
	}
	return d.podOf(ctx, deployment)
}

// GetDeployment returns the named Deployment, or nil if it does not exist.
func (d *Deployments) GetDeployment(ctx context.Context, name string) (*appsv1.Deployment, error) {
	deployment := &appsv1.Deployment{}
	if err := d.client.Get(ctx, d.key(name), deployment); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, infra.Wrap(err, "failed to get deployment %q in namespace %q", name, d.namespace)
	}
	return deployment, nil
}

// List returns all workspace pods.
func (d *Deployments) List(ctx context.Context) ([]corev1.Pod, error) {
	pods := &corev1.PodList{}
	if err := d.client.List(ctx, pods, client.InNamespace(d.namespace),
		client.MatchingLabels{WorkspaceIDLabel: d.workspaceID}); err != nil {
		return nil, infra.Wrap(err, "failed to list pods in namespace %q", d.namespace)
	}
	return pods.Items, nil
}

func (d *Deployments) podOf(ctx context.Context, deployment *appsv1.Deployment) (*corev1.Pod, error) {
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, infra.WrapInternal(err, "deployment %q has an invalid selector", deployment.Name)
	}

	pods := &corev1.PodList{}
	if err := d.client.List(ctx, pods, client.InNamespace(d.namespace),
		client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return nil, infra.Wrap(err, "failed to list pods of deployment %q", deployment.Name)
	}
	switch len(pods.Items) {
	case 0:
		return nil, nil
	case 1:
		return &pods.Items[0], nil
	default:
		return nil, infra.New(infra.KindInfrastructure, "found multiple pods in deployment %q", deployment.Name)
	}
}

// WaitRunningAsync waits in the background until the named pod is running
// with every container up. The watch is open when it returns.
func (d *Deployments) WaitRunningAsync(ctx context.Context, name string) *Future[*corev1.Pod] {
	return waitAsync(ctx, d.client, &corev1.PodList{}, &corev1.Pod{}, d.key(name), d.timeouts.PodRunning,
		fmt.Sprintf("pod %q to be running", name), d.running(ctx))
}

func (d *Deployments) running(ctx context.Context) Condition[*corev1.Pod] {
	return func(event watch.EventType, pod *corev1.Pod) (bool, error) {
		if event == watch.Deleted {
			return false, infra.New(infra.KindInfrastructure, "Pod '%s' was deleted while starting", pod.Name)
		}

		switch pod.Status.Phase {
		case corev1.PodSucceeded:
			return false, infra.New(infra.KindInfrastructure, "%s", terminatedCommandMessage)
		case corev1.PodFailed:
			return false, d.failedPodError(ctx, pod)
		}

		if failed := failedContainers(pod); len(failed) > 0 {
			return false, d.failedContainersError(ctx, pod, failed)
		}
		if pod.Status.Phase != corev1.PodRunning {
			return false, nil
		}
		for _, status := range pod.Status.ContainerStatuses {
			if status.State.Waiting != nil {
				return false, nil
			}
		}
		return true, nil
	}
}

// failedContainers returns the statuses of containers that terminated or restarted.
func failedContainers(pod *corev1.Pod) []corev1.ContainerStatus {
	var failed []corev1.ContainerStatus
	for _, status := range pod.Status.ContainerStatuses {
		if status.State.Terminated != nil || status.RestartCount > 0 {
			failed = append(failed, status)
		}
	}
	return failed
}

func (d *Deployments) failedPodError(ctx context.Context, pod *corev1.Pod) error {
	msg := fmt.Sprintf("Pod '%s' failed to start.", pod.Name)
	if pod.Status.Reason != "" {
		return infra.New(infra.KindInfrastructure, "%s Reason: %s", msg, pod.Status.Reason)
	}
	if d.logs == nil {
		return infra.New(infra.KindInfrastructure, "%s", msg)
	}

	var logs []string
	for _, container := range pod.Spec.Containers {
		tail, err := d.logs.TailLogs(ctx, d.namespace, pod.Name, container.Name, d.logLines)
		if err != nil {
			return infra.New(infra.KindInfrastructure, "%s Error occurred while fetching pod logs.", msg)
		}
		logs = append(logs, tail)
	}
	return infra.New(infra.KindInfrastructure, "%s Pod logs: %s", msg, strings.Join(logs, "\n"))
}

func (d *Deployments) failedContainersError(ctx context.Context, pod *corev1.Pod, failed []corev1.ContainerStatus) error {
	details := make([]string, 0, len(failed))
	for _, status := range failed {
		detail := fmt.Sprintf("container '%s'", status.Name)
		if t := status.State.Terminated; t != nil {
			detail += fmt.Sprintf(" terminated (reason: %s, exit code: %d)", t.Reason, t.ExitCode)
			if t.Message != "" {
				detail += ": " + t.Message
			}
		} else {
			detail += fmt.Sprintf(" restarted %d time(s)", status.RestartCount)
		}
		if d.logs != nil {
			if tail, err := d.logs.TailLogs(ctx, d.namespace, pod.Name, status.Name, d.logLines); err == nil && tail != "" {
				detail += fmt.Sprintf(". Logs: %s", tail)
			}
		}
		details = append(details, detail)
	}
	return infra.New(infra.KindInfrastructure, "Pod '%s' failed to start: %s", pod.Name, strings.Join(details, "; "))
}

// Delete removes every workspace pod together with its owning Deployment and
// waits for each pod to be gone. Deletions run concurrently. All are awaited
// and their failures combined.
func (d *Deployments) Delete(ctx context.Context) error {
	pods, err := d.List(ctx)
	if err != nil {
		return err
	}
	deployments := &appsv1.DeploymentList{}
	if err := d.client.List(ctx, deployments, client.InNamespace(d.namespace),
		client.MatchingLabels{WorkspaceIDLabel: d.workspaceID}); err != nil {
		return infra.Wrap(err, "failed to list deployments in namespace %q", d.namespace)
	}

	owned := make(map[string]bool)
	futures := make([]*Future[struct{}], 0, len(pods))
	for i := range pods {
		if name := pods[i].Labels[DeploymentNameLabel]; name != "" {
			owned[name] = true
		}
		futures = append(futures, d.deleteAsync(ctx, &pods[i]))
	}

	var errs error
	for i := range deployments.Items {
		deployment := &deployments.Items[i]
		if owned[deployment.Name] {
			continue
		}
		if _, err := deleteObject(ctx, d.client, deployment); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	for _, f := range futures {
		if _, err := f.Get(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return infra.Wrap(errs, "failed to delete deployments")
	}
	return nil
}

// deleteAsync deletes pod, or the Deployment owning it, and resolves once the
// pod is observed gone.
func (d *Deployments) deleteAsync(ctx context.Context, pod *corev1.Pod) *Future[struct{}] {
	w, err := openWatch(ctx, d.client, &corev1.PodList{}, d.namespace)
	if err != nil {
		return failedFuture[struct{}](err)
	}

	target, err := d.deletionTarget(ctx, pod)
	if err == nil {
		var deleted bool
		deleted, err = deleteObject(ctx, d.client, target)
		if err == nil && !deleted {
			w.Stop()
			return resolvedFuture(struct{}{})
		}
	}
	if err != nil {
		w.Stop()
		return failedFuture[struct{}](infra.Wrap(err, "failed to delete pod %q", pod.Name))
	}

	if err := d.client.Get(ctx, d.key(pod.Name), &corev1.Pod{}); apierrors.IsNotFound(err) {
		w.Stop()
		return resolvedFuture(struct{}{})
	}

	return goFuture(ctx, func(ctx context.Context) (struct{}, error) {
		defer w.Stop()
		_, err := awaitEvent(ctx, w, d.timeouts.PodRemoval, fmt.Sprintf("pod %q to be deleted", pod.Name),
			func(event watch.EventType, p *corev1.Pod) (bool, error) {
				return event == watch.Deleted && p.Name == pod.Name, nil
			})
		return struct{}{}, err
	})
}

// deletionTarget resolves the object whose deletion removes pod. Pods owned
// by a Deployment must be removed through it or they would be recreated.
func (d *Deployments) deletionTarget(ctx context.Context, pod *corev1.Pod) (client.Object, error) {
	if name := pod.Labels[DeploymentNameLabel]; name != "" {
		return &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: d.namespace}}, nil
	}

	ref := metav1.GetControllerOf(pod)
	if ref == nil || ref.Kind != "ReplicaSet" {
		return pod, nil
	}
	replicaSet := &appsv1.ReplicaSet{}
	if err := d.client.Get(ctx, d.key(ref.Name), replicaSet); err != nil {
		if apierrors.IsNotFound(err) {
			return pod, nil
		}
		return nil, fmt.Errorf("failed to get replica set %q: %w", ref.Name, err)
	}
	if owner := metav1.GetControllerOf(replicaSet); owner != nil && owner.Kind == "Deployment" {
		return &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: owner.Name, Namespace: d.namespace}}, nil
	}
	return replicaSet, nil
}

func (d *Deployments) key(name string) types.NamespacedName {
	return types.NamespacedName{Namespace: d.namespace, Name: name}
}
