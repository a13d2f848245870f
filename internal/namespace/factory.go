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
	"strings"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	workspaceIDPlaceholder = "<workspaceid>"
	userIDPlaceholder      = "<userid>"
)

// FactoryConfig controls how workspace namespaces are named and provisioned.
type FactoryConfig struct {
	// NamespaceTemplate names workspace namespaces. Without placeholders every
	// workspace shares the one namespace it names.
	NamespaceTemplate string

	// ServiceAccountName is prepared in per-workspace namespaces when set.
	ServiceAccountName string

	// ClusterRoles are bound to the service account if they exist.
	ClusterRoles []string

	// CreateNamespaces allows missing namespaces to be created.
	CreateNamespaces bool

	// LabelNamespaces marks per-workspace namespaces as managed, which allows
	// deleting them on workspace removal.
	LabelNamespaces bool

	// Hardening is applied to per-workspace namespaces when set.
	Hardening *Hardening

	Timeouts     Timeouts
	LogTailLines int64
}

// Factory hands out prepared workspace namespaces.
type Factory struct {
	client client.WithWatch
	config FactoryConfig
	logs   LogReader
	roles  RoleBuilder
}

// NewFactory creates a namespace factory. logs may be nil, in which case
// start failures carry no container logs.
func NewFactory(c client.WithWatch, config FactoryConfig, logs LogReader, roles RoleBuilder) *Factory {
	if roles == nil {
		roles = KubernetesRoles{}
	}
	return &Factory{client: c, config: config, logs: logs, roles: roles}
}

// IsShared reports whether all workspaces share a predefined namespace.
func (f *Factory) IsShared() bool {
	return !strings.Contains(f.config.NamespaceTemplate, workspaceIDPlaceholder) &&
		!strings.Contains(f.config.NamespaceTemplate, userIDPlaceholder)
}

// IsCreatingNamespace reports whether missing namespaces are created.
func (f *Factory) IsCreatingNamespace() bool {
	return f.config.CreateNamespaces
}

// IsManagingNamespace reports whether namespaces are labeled as deletable.
// A namespace this system never creates is never managed by it.
func (f *Factory) IsManagingNamespace() bool {
	return f.config.CreateNamespaces && f.config.LabelNamespaces && !f.IsShared()
}

// NamespaceName resolves the namespace of the workspace identified by id.
func (f *Factory) NamespaceName(id workspacev1alpha1.RuntimeIdentity) (string, error) {
	name := strings.NewReplacer(
		workspaceIDPlaceholder, strings.ToLower(id.WorkspaceID),
		userIDPlaceholder, strings.ToLower(id.OwnerID),
	).Replace(f.config.NamespaceTemplate)

	if err := ValidateNamespaceName(name); err != nil {
		return "", err
	}
	return name, nil
}

// Create returns the prepared namespace of the workspace identified by id.
func (f *Factory) Create(ctx context.Context, id workspacev1alpha1.RuntimeIdentity) (*Namespace, error) {
	name, err := f.NamespaceName(id)
	if err != nil {
		return nil, err
	}

	ns := f.Get(id, name)
	if err := ns.Prepare(ctx, f.IsManagingNamespace(), f.IsCreatingNamespace()); err != nil {
		return nil, err
	}
	if f.IsShared() {
		return ns, nil
	}

	if f.config.Hardening != nil {
		if err := ns.Harden(ctx, *f.config.Hardening); err != nil {
			return nil, err
		}
	}
	if f.config.ServiceAccountName != "" {
		preparer := NewServiceAccountPreparer(f.client, name, f.config.ServiceAccountName, f.config.ClusterRoles, f.roles)
		if err := preparer.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	logf.FromContext(ctx).V(1).Info("Workspace namespace ready", "workspace", id.WorkspaceID, "namespace", name)
	return ns, nil
}

// Get returns the namespace of an already running workspace without preparing it.
func (f *Factory) Get(id workspacev1alpha1.RuntimeIdentity, namespaceName string) *Namespace {
	return NewNamespace(f.client, namespaceName, id.WorkspaceID, Options{
		Timeouts:     f.config.Timeouts,
		Logs:         f.logs,
		LogTailLines: f.config.LogTailLines,
	})
}

// DeleteNamespace deletes the workspace namespace if this system manages it.
// It is meant for workspace removal, not for stopping a workspace.
func (f *Factory) DeleteNamespace(ctx context.Context, id workspacev1alpha1.RuntimeIdentity) error {
	if f.IsShared() {
		return nil
	}
	name := id.InfrastructureNamespace
	if name == "" {
		var err error
		if name, err = f.NamespaceName(id); err != nil {
			return err
		}
	}
	return f.Get(id, name).DeleteIfManaged(ctx)
}
