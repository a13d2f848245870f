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

	"github.com/mikelane/workspaced/internal/infra"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const defaultServiceAccount = "default"

// Options configures the resource managers of a Namespace.
type Options struct {
	Timeouts     Timeouts
	Logs         LogReader
	LogTailLines int64
}

// Namespace composes the resource managers of one workspace namespace.
type Namespace struct {
	client      client.WithWatch
	name        string
	workspaceID string
	timeouts    Timeouts

	deployments *Deployments
	services    *Services
	ingresses   *Ingresses
	secrets     *Secrets
	configMaps  *ConfigMaps
	pvcs        *PVCs
}

// NewNamespace returns the aggregate for namespace name scoped to workspaceID.
// It performs no API calls.
func NewNamespace(c client.WithWatch, name, workspaceID string, opts Options) *Namespace {
	return &Namespace{
		client:      c,
		name:        name,
		workspaceID: workspaceID,
		timeouts:    opts.Timeouts,
		deployments: newDeployments(c, name, workspaceID, opts.Timeouts, opts.Logs, opts.LogTailLines),
		services:    newServices(c, name, workspaceID),
		ingresses:   newIngresses(c, name, workspaceID, opts.Timeouts.Ingress),
		secrets:     newSecrets(c, name, workspaceID),
		configMaps:  newConfigMaps(c, name, workspaceID),
		pvcs:        newPVCs(c, name, workspaceID, opts.Timeouts.PVCBound),
	}
}

// Name returns the namespace name.
func (n *Namespace) Name() string { return n.name }

// WorkspaceID returns the workspace the managers are scoped to.
func (n *Namespace) WorkspaceID() string { return n.workspaceID }

// Deployments returns the manager of the workspace pods and their Deployments.
func (n *Namespace) Deployments() *Deployments { return n.deployments }

// Services returns the manager of the workspace services.
func (n *Namespace) Services() *Services { return n.services }

// Ingresses returns the manager of the workspace ingresses.
func (n *Namespace) Ingresses() *Ingresses { return n.ingresses }

// Secrets returns the manager of the workspace secrets.
func (n *Namespace) Secrets() *Secrets { return n.secrets }

// ConfigMaps returns the manager of the workspace config maps.
func (n *Namespace) ConfigMaps() *ConfigMaps { return n.configMaps }

// PVCs returns the manager of the workspace persistent volume claims.
func (n *Namespace) PVCs() *PVCs { return n.pvcs }

// Prepare makes sure the namespace exists. A missing namespace is created
// only when canCreate is set, after which Prepare waits for the cluster to
// provision its default service account. An existing namespace is labeled
// managed when markManaged is set and the label is missing.
func (n *Namespace) Prepare(ctx context.Context, markManaged, canCreate bool) error {
	ns := &corev1.Namespace{}
	err := n.client.Get(ctx, types.NamespacedName{Name: n.name}, ns)
	switch {
	case apierrors.IsNotFound(err):
		if !canCreate {
			return infra.New(infra.KindInfrastructure, "namespace %q does not exist and cannot be created", n.name)
		}
		return n.create(ctx, markManaged)
	case apierrors.IsForbidden(err):
		return infra.WrapInternal(err, "cannot determine whether namespace %q exists", n.name)
	case err != nil:
		return infra.Wrap(err, "failed to get namespace %q", n.name)
	}

	if markManaged && ns.Labels[ManagedLabel] != "true" {
		putLabel(ns, ManagedLabel, "true")
		if err := n.client.Update(ctx, ns); err != nil {
			return infra.Wrap(err, "failed to label namespace %q as managed", n.name)
		}
	}
	return nil
}

func (n *Namespace) create(ctx context.Context, markManaged bool) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   n.name,
			Labels: map[string]string{ManagedByLabel: managedByValue},
		},
	}
	if markManaged {
		ns.Labels[ManagedLabel] = "true"
	}
	if err := n.client.Create(ctx, ns); err != nil && !apierrors.IsAlreadyExists(err) {
		return infra.Wrap(err, "failed to create namespace %q", n.name)
	}
	logf.FromContext(ctx).Info("Created workspace namespace", "namespace", n.name, "managed", markManaged)

	_, err := waitFor(ctx, n.client, &corev1.ServiceAccountList{}, &corev1.ServiceAccount{},
		types.NamespacedName{Namespace: n.name, Name: defaultServiceAccount}, n.timeouts.DefaultServiceAccount,
		fmt.Sprintf("default service account in namespace %q", n.name),
		func(event watch.EventType, _ *corev1.ServiceAccount) (bool, error) {
			return event != watch.Deleted, nil
		})
	return err
}

// DeleteIfManaged deletes the namespace when it carries the managed label.
// A namespace that does not exist is nothing to delete. An authorization
// failure on the lookup fails the operation, since the label cannot be checked.
func (n *Namespace) DeleteIfManaged(ctx context.Context) error {
	ns := &corev1.Namespace{}
	err := n.client.Get(ctx, types.NamespacedName{Name: n.name}, ns)
	switch {
	case apierrors.IsNotFound(err):
		return nil
	case apierrors.IsForbidden(err):
		return infra.WrapInternal(err, "cannot determine whether namespace %q is managed", n.name)
	case err != nil:
		return infra.Wrap(err, "failed to get namespace %q", n.name)
	}

	if ns.Labels[ManagedLabel] != "true" {
		logf.FromContext(ctx).V(1).Info("Namespace is not managed, keeping it", "namespace", n.name)
		return nil
	}
	if _, err := deleteObject(ctx, n.client, ns); err != nil {
		return infra.Wrap(err, "failed to delete namespace %q", n.name)
	}
	return nil
}

// CleanUp deletes the workspace ingresses, services, deployments, secrets
// and config maps. Persistent volume claims are kept. Every kind is attempted
// and all failures are reported together.
func (n *Namespace) CleanUp(ctx context.Context) error {
	steps := []func(context.Context) error{
		n.ingresses.Delete,
		n.services.Delete,
		n.deployments.Delete,
		n.secrets.Delete,
		n.configMaps.Delete,
	}

	var errs error
	for _, step := range steps {
		errs = multierr.Append(errs, step(ctx))
	}
	if errs != nil {
		return infra.Wrap(errs, "failed to clean up namespace %q", n.name)
	}
	return nil
}
