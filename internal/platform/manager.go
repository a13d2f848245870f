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

package platform

import (
	"context"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/namespace"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// OwnerNamespaceAnnotation records the workspace namespace of a platform object.
	OwnerNamespaceAnnotation = "workspace.workspaced.io/owner-namespace"

	// OwnerEnvironmentAnnotation records the environment a platform object was created from.
	OwnerEnvironmentAnnotation = "workspace.workspaced.io/owner-environment"
)

// Manager creates workspace objects in the platform namespace.
type Manager struct {
	client    client.Client
	namespace string
}

// NewManager creates a Manager placing objects in platformNamespace.
func NewManager(c client.Client, platformNamespace string) *Manager {
	return &Manager{
		client:    c,
		namespace: platformNamespace,
	}
}

// Namespace returns the platform namespace.
func (m *Manager) Namespace() string {
	return m.namespace
}

// CreateConfigMaps creates or updates configMaps in the platform namespace.
func (m *Manager) CreateConfigMaps(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, configMaps []*corev1.ConfigMap) error {
	for _, desired := range configMaps {
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: desired.Name, Namespace: m.namespace},
		}
		op, err := controllerutil.CreateOrUpdate(ctx, m.client, cm, func() error {
			if err := m.claim(cm, desired, id); err != nil {
				return err
			}
			cm.Data = desired.Data
			cm.BinaryData = desired.BinaryData
			return nil
		})
		if err != nil {
			return m.failure(err, "config map", desired.Name)
		}
		logf.FromContext(ctx).V(1).Info("Platform config map reconciled",
			"name", cm.Name, "namespace", m.namespace, "operation", op)
	}
	return nil
}

// CreateIngresses creates or updates ingresses in the platform namespace.
func (m *Manager) CreateIngresses(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, ingresses []*networkingv1.Ingress) error {
	for _, desired := range ingresses {
		ing := &networkingv1.Ingress{
			ObjectMeta: metav1.ObjectMeta{Name: desired.Name, Namespace: m.namespace},
		}
		op, err := controllerutil.CreateOrUpdate(ctx, m.client, ing, func() error {
			if err := m.claim(ing, desired, id); err != nil {
				return err
			}
			if !equality.Semantic.DeepEqual(ing.Spec, desired.Spec) {
				ing.Spec = *desired.Spec.DeepCopy()
			}
			return nil
		})
		if err != nil {
			return m.failure(err, "ingress", desired.Name)
		}
		logf.FromContext(ctx).V(1).Info("Platform ingress reconciled",
			"name", ing.Name, "namespace", m.namespace, "operation", op)
	}
	return nil
}

// CleanUp deletes every platform object labelled with workspaceID.
func (m *Manager) CleanUp(ctx context.Context, workspaceID string) error {
	opts := []client.DeleteAllOfOption{
		client.InNamespace(m.namespace),
		client.MatchingLabels{namespace.WorkspaceIDLabel: workspaceID},
	}
	var err error
	if derr := m.client.DeleteAllOf(ctx, &corev1.ConfigMap{}, opts...); derr != nil {
		err = multierr.Append(err, infra.Wrap(derr, "failed to delete platform config maps of workspace %q", workspaceID))
	}
	if derr := m.client.DeleteAllOf(ctx, &networkingv1.Ingress{}, opts...); derr != nil {
		err = multierr.Append(err, infra.Wrap(derr, "failed to delete platform ingresses of workspace %q", workspaceID))
	}
	return err
}

// claim copies metadata from desired onto obj and marks it as owned by id.
// It refuses objects already owned by another workspace.
func (m *Manager) claim(obj, desired metav1.Object, id workspacev1alpha1.RuntimeIdentity) error {
	if owner, ok := obj.GetLabels()[namespace.WorkspaceIDLabel]; ok && owner != id.WorkspaceID {
		return infra.New(infra.KindState, "%s/%s is owned by workspace %q", m.namespace, obj.GetName(), owner)
	}

	labels := obj.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	for k, v := range desired.GetLabels() {
		labels[k] = v
	}
	labels[namespace.WorkspaceIDLabel] = id.WorkspaceID
	labels[namespace.ManagedByLabel] = "workspaced"
	obj.SetLabels(labels)

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = make(map[string]string)
	}
	for k, v := range desired.GetAnnotations() {
		annotations[k] = v
	}
	annotations[OwnerNamespaceAnnotation] = id.InfrastructureNamespace
	if id.EnvironmentName != "" {
		annotations[OwnerEnvironmentAnnotation] = id.EnvironmentName
	}
	obj.SetAnnotations(annotations)
	return nil
}

func (m *Manager) failure(err error, kind, name string) error {
	if infra.Is(err, infra.KindState) {
		return err
	}
	return infra.Wrap(err, "failed to create platform %s %s/%s", kind, m.namespace, name)
}
