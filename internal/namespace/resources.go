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
	"time"

	"github.com/mikelane/workspaced/internal/infra"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Timeouts bounds every wait performed by the resource managers.
type Timeouts struct {
	PodCreation           time.Duration
	PodRemoval            time.Duration
	PodRunning            time.Duration
	DefaultServiceAccount time.Duration
	Ingress               time.Duration
	PVCBound              time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		PodCreation:           time.Minute,
		PodRemoval:            5 * time.Minute,
		PodRunning:            8 * time.Minute,
		DefaultServiceAccount: 3 * time.Second,
		Ingress:               5 * time.Minute,
		PVCBound:              10 * time.Minute,
	}
}

// resources implements the operations shared by every namespaced, workspace-labeled kind.
type resources[T client.Object, L client.ObjectList] struct {
	client      client.WithWatch
	namespace   string
	workspaceID string
	kind        string
	newObj      func() T
	newList     func() L
}

func (r *resources[T, L]) create(ctx context.Context, obj T) (T, error) {
	putLabel(obj, WorkspaceIDLabel, r.workspaceID)
	obj.SetNamespace(r.namespace)
	if err := r.client.Create(ctx, obj); err != nil {
		var zero T
		return zero, infra.Wrap(err, "failed to create %s %q in namespace %q", r.kind, obj.GetName(), r.namespace)
	}
	return obj, nil
}

// list returns the workspace objects that also carry every label in extra.
func (r *resources[T, L]) list(ctx context.Context, extra map[string]string) ([]T, error) {
	selector := client.MatchingLabels{WorkspaceIDLabel: r.workspaceID}
	for k, v := range extra {
		selector[k] = v
	}

	list := r.newList()
	if err := r.client.List(ctx, list, client.InNamespace(r.namespace), selector); err != nil {
		return nil, infra.Wrap(err, "failed to list %ss in namespace %q", r.kind, r.namespace)
	}
	items, err := meta.ExtractList(list)
	if err != nil {
		return nil, infra.WrapInternal(err, "failed to read %s list", r.kind)
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(T); ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

// get returns the zero value, not an error, when the object does not exist.
func (r *resources[T, L]) get(ctx context.Context, name string) (T, error) {
	var zero T
	obj := r.newObj()
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: r.namespace, Name: name}, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return zero, nil
		}
		return zero, infra.Wrap(err, "failed to get %s %q in namespace %q", r.kind, name, r.namespace)
	}
	return obj, nil
}

// delete removes every workspace object of this kind. All deletions are
// attempted and their failures combined.
func (r *resources[T, L]) delete(ctx context.Context) error {
	objs, err := r.list(ctx, nil)
	if err != nil {
		return err
	}

	var errs error
	for _, obj := range objs {
		if _, err := deleteObject(ctx, r.client, obj); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return infra.Wrap(errs, "failed to delete %ss", r.kind)
	}
	return nil
}

// deleteObject deletes obj with background propagation. It reports false,
// without an error, when there was nothing to delete.
func deleteObject(ctx context.Context, c client.Client, obj client.Object) (bool, error) {
	err := c.Delete(ctx, obj, client.PropagationPolicy(metav1.DeletePropagationBackground))
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete %s: %w", obj.GetName(), err)
	}
}

// Services manages the workspace services of one namespace.
type Services struct {
	resources[*corev1.Service, *corev1.ServiceList]
}

func newServices(c client.WithWatch, namespace, workspaceID string) *Services {
	return &Services{resources[*corev1.Service, *corev1.ServiceList]{
		client: c, namespace: namespace, workspaceID: workspaceID, kind: "service",
		newObj:  func() *corev1.Service { return &corev1.Service{} },
		newList: func() *corev1.ServiceList { return &corev1.ServiceList{} },
	}}
}

// Create creates svc labeled with the workspace ID.
func (s *Services) Create(ctx context.Context, svc *corev1.Service) (*corev1.Service, error) {
	return s.create(ctx, svc)
}

// List returns all workspace services.
func (s *Services) List(ctx context.Context) ([]*corev1.Service, error) {
	return s.list(ctx, nil)
}

// Get returns the named service, or nil if it does not exist.
func (s *Services) Get(ctx context.Context, name string) (*corev1.Service, error) {
	return s.get(ctx, name)
}

// Delete removes all workspace services.
func (s *Services) Delete(ctx context.Context) error {
	return s.delete(ctx)
}

// Secrets manages the workspace secrets of one namespace.
type Secrets struct {
	resources[*corev1.Secret, *corev1.SecretList]
}

func newSecrets(c client.WithWatch, namespace, workspaceID string) *Secrets {
	return &Secrets{resources[*corev1.Secret, *corev1.SecretList]{
		client: c, namespace: namespace, workspaceID: workspaceID, kind: "secret",
		newObj:  func() *corev1.Secret { return &corev1.Secret{} },
		newList: func() *corev1.SecretList { return &corev1.SecretList{} },
	}}
}

// Create creates secret labeled with the workspace ID.
func (s *Secrets) Create(ctx context.Context, secret *corev1.Secret) (*corev1.Secret, error) {
	return s.create(ctx, secret)
}

// List returns all workspace secrets.
func (s *Secrets) List(ctx context.Context) ([]*corev1.Secret, error) {
	return s.list(ctx, nil)
}

// Get returns the named secret, or nil if it does not exist.
func (s *Secrets) Get(ctx context.Context, name string) (*corev1.Secret, error) {
	return s.get(ctx, name)
}

// Delete removes all workspace secrets.
func (s *Secrets) Delete(ctx context.Context) error {
	return s.delete(ctx)
}

// ConfigMaps manages the workspace config maps of one namespace.
type ConfigMaps struct {
	resources[*corev1.ConfigMap, *corev1.ConfigMapList]
}

func newConfigMaps(c client.WithWatch, namespace, workspaceID string) *ConfigMaps {
	return &ConfigMaps{resources[*corev1.ConfigMap, *corev1.ConfigMapList]{
		client: c, namespace: namespace, workspaceID: workspaceID, kind: "config map",
		newObj:  func() *corev1.ConfigMap { return &corev1.ConfigMap{} },
		newList: func() *corev1.ConfigMapList { return &corev1.ConfigMapList{} },
	}}
}

// Create creates cm labeled with the workspace ID.
func (m *ConfigMaps) Create(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	return m.create(ctx, cm)
}

// List returns all workspace config maps.
func (m *ConfigMaps) List(ctx context.Context) ([]*corev1.ConfigMap, error) {
	return m.list(ctx, nil)
}

// Get returns the named config map, or nil if it does not exist.
func (m *ConfigMaps) Get(ctx context.Context, name string) (*corev1.ConfigMap, error) {
	return m.get(ctx, name)
}

// Delete removes all workspace config maps.
func (m *ConfigMaps) Delete(ctx context.Context) error {
	return m.delete(ctx)
}
