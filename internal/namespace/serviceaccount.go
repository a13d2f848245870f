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

	"github.com/mikelane/workspaced/internal/infra"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// RoleBuilder builds the RBAC objects granted to workspace service accounts.
// Each platform flavor provides its own implementation.
type RoleBuilder interface {
	BuildRole(name, namespace string, rules []rbacv1.PolicyRule) *rbacv1.Role
	BuildBinding(name, namespace, serviceAccount string, roleRef rbacv1.RoleRef) *rbacv1.RoleBinding
}

// KubernetesRoles builds plain Kubernetes Roles and RoleBindings.
type KubernetesRoles struct{}

func (KubernetesRoles) BuildRole(name, namespace string, rules []rbacv1.PolicyRule) *rbacv1.Role {
	return &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{ManagedByLabel: managedByValue},
		},
		Rules: rules,
	}
}

func (KubernetesRoles) BuildBinding(name, namespace, serviceAccount string, roleRef rbacv1.RoleRef) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{ManagedByLabel: managedByValue},
		},
		RoleRef: roleRef,
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      serviceAccount,
			Namespace: namespace,
		}},
	}
}

type implicitRole struct {
	name          string
	bindingSuffix string
	rules         []rbacv1.PolicyRule
}

var implicitRoles = []implicitRole{
	{
		name:          "exec",
		bindingSuffix: "exec",
		rules: []rbacv1.PolicyRule{{
			APIGroups: []string{""},
			Resources: []string{"pods/exec"},
			Verbs:     []string{"create"},
		}},
	},
	{
		name:          "workspace-view",
		bindingSuffix: "view",
		rules: []rbacv1.PolicyRule{{
			APIGroups: []string{""},
			Resources: []string{"pods", "services"},
			Verbs:     []string{"list"},
		}},
	},
	{
		name:          "workspace-metrics",
		bindingSuffix: "metrics",
		rules: []rbacv1.PolicyRule{{
			APIGroups: []string{"metrics.k8s.io"},
			Resources: []string{"pods", "nodes"},
			Verbs:     []string{"list", "get", "watch"},
		}},
	},
}

// ServiceAccountPreparer provisions the service account workspace pods run as.
type ServiceAccountPreparer struct {
	client       client.Client
	namespace    string
	name         string
	clusterRoles []string
	roles        RoleBuilder
}

// NewServiceAccountPreparer returns a preparer for service account name in namespace.
// clusterRoles are bound in addition to the implicit exec, view and metrics roles.
func NewServiceAccountPreparer(c client.Client, namespace, name string, clusterRoles []string, roles RoleBuilder) *ServiceAccountPreparer {
	if roles == nil {
		roles = KubernetesRoles{}
	}
	return &ServiceAccountPreparer{
		client:       c,
		namespace:    namespace,
		name:         name,
		clusterRoles: clusterRoles,
		roles:        roles,
	}
}

// Prepare creates the service account and its bindings. An existing service
// account is left as is, together with whatever permissions it has.
func (p *ServiceAccountPreparer) Prepare(ctx context.Context) error {
	logger := logf.FromContext(ctx).WithValues("namespace", p.namespace, "serviceAccount", p.name)

	sa := &corev1.ServiceAccount{}
	err := p.client.Get(ctx, types.NamespacedName{Namespace: p.namespace, Name: p.name}, sa)
	switch {
	case err == nil:
		return nil
	case !apierrors.IsNotFound(err):
		return infra.Wrap(err, "failed to get service account %q", p.name)
	}

	sa = &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      p.name,
			Namespace: p.namespace,
			Labels:    map[string]string{ManagedByLabel: managedByValue},
		},
	}
	if err := p.client.Create(ctx, sa); client.IgnoreAlreadyExists(err) != nil {
		return infra.Wrap(err, "failed to create service account %q", p.name)
	}

	for _, role := range implicitRoles {
		if err := p.ensureRole(ctx, role.name, role.rules); err != nil {
			return err
		}
		ref := rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "Role", Name: role.name}
		if err := p.createBinding(ctx, p.name+"-"+role.bindingSuffix, ref); err != nil {
			return err
		}
	}

	for _, name := range p.clusterRoles {
		clusterRole := &rbacv1.ClusterRole{}
		if err := p.client.Get(ctx, types.NamespacedName{Name: name}, clusterRole); err != nil {
			if apierrors.IsNotFound(err) {
				logger.Info("Configured cluster role does not exist, skipping binding", "clusterRole", name)
				continue
			}
			return infra.Wrap(err, "failed to get cluster role %q", name)
		}
		ref := rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: name}
		if err := p.createBinding(ctx, p.name+"-"+name, ref); err != nil {
			return err
		}
	}

	logger.Info("Prepared workspace service account")
	return nil
}

// ensureRole creates the role unless a role with the same name exists.
func (p *ServiceAccountPreparer) ensureRole(ctx context.Context, name string, rules []rbacv1.PolicyRule) error {
	existing := &rbacv1.Role{}
	err := p.client.Get(ctx, types.NamespacedName{Namespace: p.namespace, Name: name}, existing)
	switch {
	case err == nil:
		return nil
	case !apierrors.IsNotFound(err):
		return infra.Wrap(err, "failed to get role %q", name)
	}

	role := p.roles.BuildRole(name, p.namespace, rules)
	if err := p.client.Create(ctx, role); client.IgnoreAlreadyExists(err) != nil {
		return infra.Wrap(err, "failed to create role %q", name)
	}
	return nil
}

func (p *ServiceAccountPreparer) createBinding(ctx context.Context, name string, ref rbacv1.RoleRef) error {
	binding := p.roles.BuildBinding(name, p.namespace, p.name, ref)
	if err := p.client.Create(ctx, binding); client.IgnoreAlreadyExists(err) != nil {
		return infra.Wrap(err, "failed to create role binding %q", name)
	}
	return nil
}
