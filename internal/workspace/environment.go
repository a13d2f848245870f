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

package workspace

import (
	"maps"
	"slices"
	"strings"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// ServerConfig describes a server exposed by a machine.
type ServerConfig struct {
	URL        string
	Attributes map[string]string
}

// MachineConfig is the desired configuration of one machine.
type MachineConfig struct {
	Servers    map[string]ServerConfig
	Attributes map[string]string
}

// Environment is the desired state of a workspace runtime.
//
// Pods and Deployments are keyed by workload name. Bare pods are deployed
// wrapped in a single-replica Deployment of the same name. Machines are keyed
// by MachineName(workload, container).
type Environment struct {
	Pods        map[string]*corev1.Pod
	Deployments map[string]*appsv1.Deployment
	Services    []*corev1.Service
	Ingresses   []*networkingv1.Ingress
	Secrets     []*corev1.Secret
	ConfigMaps  []*corev1.ConfigMap
	PVCs        []*corev1.PersistentVolumeClaim

	// InjectablePods maps a machine to the pods whose containers must run
	// alongside it, keyed by injected pod name.
	InjectablePods map[string]map[string]*corev1.Pod

	Machines map[string]MachineConfig
	Commands []workspacev1alpha1.Command
}

// MachineName returns the name of the machine running container in workload.
func MachineName(workload, container string) string {
	return workload + "/" + container
}

func splitMachineName(machine string) (workload, container string) {
	workload, container, _ = strings.Cut(machine, "/")
	return workload, container
}

func (e *Environment) podSpec(workload string) *corev1.PodSpec {
	if pod, ok := e.Pods[workload]; ok {
		return &pod.Spec
	}
	if d, ok := e.Deployments[workload]; ok {
		return &d.Spec.Template.Spec
	}
	return nil
}

// mergeInjectablePods folds injected pods into the workloads that own the
// requesting machines. An injected pod is merged once per workload no matter
// how many of its machines request it.
func (e *Environment) mergeInjectablePods() error {
	merged := make(map[string]bool)
	for _, machine := range sortedKeys(e.InjectablePods) {
		workload, _ := splitMachineName(machine)
		spec := e.podSpec(workload)
		if spec == nil {
			return infra.Internalf("machine %q requests injected pods, but workload %q does not exist", machine, workload)
		}
		injected := e.InjectablePods[machine]
		for _, name := range sortedKeys(injected) {
			key := workload + "/" + name
			if merged[key] {
				continue
			}
			merged[key] = true
			pod := injected[name]
			spec.InitContainers = append(spec.InitContainers, pod.Spec.InitContainers...)
			spec.Containers = append(spec.Containers, pod.Spec.Containers...)
			for _, v := range pod.Spec.Volumes {
				if !slices.ContainsFunc(spec.Volumes, func(existing corev1.Volume) bool { return existing.Name == v.Name }) {
					spec.Volumes = append(spec.Volumes, v)
				}
			}
		}
	}
	e.InjectablePods = nil
	return nil
}

// machineRecord builds the initial record of the machine running container.
func (e *Environment) machineRecord(machine string, pod *corev1.Pod, deployment, container string) workspacev1alpha1.MachineRecord {
	cfg := e.Machines[machine]
	record := workspacev1alpha1.MachineRecord{
		PodName:        pod.Name,
		DeploymentName: deployment,
		ContainerName:  container,
		Status:         workspacev1alpha1.MachineStarting,
		Attributes:     cfg.Attributes,
	}
	if len(cfg.Servers) > 0 {
		record.Servers = make(map[string]workspacev1alpha1.ServerRecord, len(cfg.Servers))
		for name, server := range cfg.Servers {
			record.Servers[name] = workspacev1alpha1.ServerRecord{
				URL:        server.URL,
				Status:     workspacev1alpha1.ServerUnknown,
				Attributes: server.Attributes,
			}
		}
	}
	return record
}

// hasWorkload reports whether name is a pod or Deployment of the environment.
func (e *Environment) hasWorkload(name string) bool {
	_, pod := e.Pods[name]
	_, deployment := e.Deployments[name]
	return pod || deployment
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
