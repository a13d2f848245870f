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
	"context"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// Provisioner adds tooling or external contributions to an environment
// before it is applied to the cluster.
type Provisioner interface {
	Provision(ctx context.Context, env *Environment, id workspacev1alpha1.RuntimeIdentity) error
}

// ProbeStatus is the outcome of a single server probe.
type ProbeStatus string

const (
	ProbePassed ProbeStatus = "PASSED"
	ProbeFailed ProbeStatus = "FAILED"
)

// ProbeResult reports the liveness of one server of a machine.
type ProbeResult struct {
	MachineName string
	ServerName  string
	Status      ProbeStatus
}

// ProbeScheduler runs liveness probes against the servers of running machines.
type ProbeScheduler interface {
	// Schedule starts probing the servers of machines and reports every result.
	Schedule(ctx context.Context, id workspacev1alpha1.RuntimeIdentity,
		machines map[string]workspacev1alpha1.MachineRecord, report func(ProbeResult)) error
	Cancel(workspaceID string)
	IsScheduled(workspaceID string) bool
}

// PlatformResources places objects annotated for the platform namespace.
type PlatformResources interface {
	CreateConfigMaps(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, configMaps []*corev1.ConfigMap) error
	CreateIngresses(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, ingresses []*networkingv1.Ingress) error
	CleanUp(ctx context.Context, workspaceID string) error
}

// Tracker keeps the set of runtimes checked for consistency.
type Tracker interface {
	Track(workspaceID string)
	StopTracking(workspaceID string)
}

type noopProbes struct{}

func (noopProbes) Schedule(context.Context, workspacev1alpha1.RuntimeIdentity,
	map[string]workspacev1alpha1.MachineRecord, func(ProbeResult)) error {
	return nil
}
func (noopProbes) Cancel(string)           {}
func (noopProbes) IsScheduled(string) bool { return true }

type noopPlatform struct{}

func (noopPlatform) CreateConfigMaps(_ context.Context, _ workspacev1alpha1.RuntimeIdentity, cms []*corev1.ConfigMap) error {
	if len(cms) > 0 {
		return infra.Internalf("config map %q requires a platform namespace, but none is configured", cms[0].Name)
	}
	return nil
}
func (noopPlatform) CreateIngresses(_ context.Context, _ workspacev1alpha1.RuntimeIdentity, ings []*networkingv1.Ingress) error {
	if len(ings) > 0 {
		return infra.Internalf("ingress %q requires a platform namespace, but none is configured", ings[0].Name)
	}
	return nil
}
func (noopPlatform) CleanUp(context.Context, string) error { return nil }

type noopTracker struct{}

func (noopTracker) Track(string)        {}
func (noopTracker) StopTracking(string) {}
