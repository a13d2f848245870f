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
	"errors"
	"testing"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

func testIdentity() workspacev1alpha1.RuntimeIdentity {
	return workspacev1alpha1.RuntimeIdentity{WorkspaceID: "WS-1", OwnerID: "User-1"}
}

func TestFactory_NamespaceName(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		want       string
		wantShared bool
		wantErr    bool
	}{
		{name: "workspace placeholder", template: "<workspaceid>", want: "ws-1"},
		{name: "user placeholder", template: "<userid>-workspaces", want: "user-1-workspaces"},
		{name: "both placeholders", template: "<userid>-<workspaceid>", want: "user-1-ws-1"},
		{name: "predefined namespace", template: "workspaces", want: "workspaces", wantShared: true},
		{name: "invalid result", template: "<workspaceid>.dev", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFactory(setupTestClient(t, nil), FactoryConfig{NamespaceTemplate: tt.template}, nil, nil)

			if f.IsShared() != tt.wantShared {
				t.Errorf("IsShared() = %v, want %v", f.IsShared(), tt.wantShared)
			}
			got, err := f.NamespaceName(testIdentity())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NamespaceName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NamespaceName() = %q, want %q", got, tt.want)
			}
			var verr *ValidationError
			if tt.wantErr && !errors.As(err, &verr) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestFactory_IsManagingNamespace(t *testing.T) {
	tests := []struct {
		template string
		create   bool
		label    bool
		want     bool
	}{
		{template: "<workspaceid>", create: true, label: true, want: true},
		{template: "<workspaceid>", create: true, label: false, want: false},
		{template: "<workspaceid>", create: false, label: true, want: false},
		{template: "<workspaceid>", create: false, label: false, want: false},
		{template: "workspaces", create: true, label: true, want: false},
	}

	for _, tt := range tests {
		f := NewFactory(setupTestClient(t, nil), FactoryConfig{
			NamespaceTemplate: tt.template,
			CreateNamespaces:  tt.create,
			LabelNamespaces:   tt.label,
		}, nil, nil)
		if got := f.IsManagingNamespace(); got != tt.want {
			t.Errorf("IsManagingNamespace(template=%q, create=%v, label=%v) = %v, want %v",
				tt.template, tt.create, tt.label, got, tt.want)
		}
	}
}

func TestFactory_Create_per_workspace_namespace(t *testing.T) {
	c := setupTestClient(t, clusterSimulation())
	f := NewFactory(c, FactoryConfig{
		NamespaceTemplate:  "<workspaceid>",
		ServiceAccountName: "workspace",
		CreateNamespaces:   true,
		LabelNamespaces:    true,
		Hardening:          &Hardening{NetworkPolicies: true},
		Timeouts:           testTimeouts(),
	}, nil, nil)
	ctx := context.Background()

	ns, err := f.Create(ctx, testIdentity())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ns.Name() != "ws-1" || ns.WorkspaceID() != "WS-1" {
		t.Errorf("unexpected namespace %q for workspace %q", ns.Name(), ns.WorkspaceID())
	}

	created := getNamespace(t, c, "ws-1")
	if created.Labels[ManagedLabel] != "true" {
		t.Errorf("expected created namespace to be managed, got %v", created.Labels)
	}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "ws-1", Name: "workspace"}, &corev1.ServiceAccount{}); err != nil {
		t.Errorf("expected workspace service account to be prepared: %v", err)
	}
	if err := c.Get(ctx, types.NamespacedName{Namespace: "ws-1", Name: denyAllPolicy}, &networkingv1.NetworkPolicy{}); err != nil {
		t.Errorf("expected namespace to be hardened: %v", err)
	}
}

func TestFactory_Create_shared_namespace_is_not_provisioned(t *testing.T) {
	shared := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "workspaces"}}
	c := setupTestClient(t, nil, shared)
	f := NewFactory(c, FactoryConfig{
		NamespaceTemplate:  "workspaces",
		ServiceAccountName: "workspace",
		LabelNamespaces:    true,
		Hardening:          &Hardening{NetworkPolicies: true},
		Timeouts:           testTimeouts(),
	}, nil, nil)
	ctx := context.Background()

	if _, err := f.Create(ctx, testIdentity()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, ok := getNamespace(t, c, "workspaces").Labels[ManagedLabel]; ok {
		t.Error("expected shared namespace not to be labeled managed")
	}
	err := c.Get(ctx, types.NamespacedName{Namespace: "workspaces", Name: "workspace"}, &corev1.ServiceAccount{})
	if !apierrors.IsNotFound(err) {
		t.Errorf("expected no service account in a shared namespace, got %v", err)
	}
}

func TestFactory_Create_fails_for_missing_namespace_without_creation(t *testing.T) {
	f := NewFactory(setupTestClient(t, nil), FactoryConfig{
		NamespaceTemplate: "<workspaceid>",
		Timeouts:          testTimeouts(),
	}, nil, nil)

	if _, err := f.Create(context.Background(), testIdentity()); err == nil {
		t.Fatal("expected Create() to fail for a missing namespace")
	}
}

func TestFactory_DeleteNamespace(t *testing.T) {
	managed := func(name string) *corev1.Namespace {
		return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{ManagedLabel: "true"},
		}}
	}

	t.Run("deletes managed per-workspace namespace", func(t *testing.T) {
		c := setupTestClient(t, nil, managed("ws-1"))
		f := NewFactory(c, FactoryConfig{NamespaceTemplate: "<workspaceid>"}, nil, nil)

		if err := f.DeleteNamespace(context.Background(), testIdentity()); err != nil {
			t.Fatalf("DeleteNamespace() error = %v", err)
		}
		err := c.Get(context.Background(), types.NamespacedName{Name: "ws-1"}, &corev1.Namespace{})
		if !apierrors.IsNotFound(err) {
			t.Errorf("expected namespace to be deleted, got %v", err)
		}
	})

	t.Run("prefers the recorded infrastructure namespace", func(t *testing.T) {
		c := setupTestClient(t, nil, managed("recorded"), managed("ws-1"))
		f := NewFactory(c, FactoryConfig{NamespaceTemplate: "<workspaceid>"}, nil, nil)
		id := testIdentity()
		id.InfrastructureNamespace = "recorded"

		if err := f.DeleteNamespace(context.Background(), id); err != nil {
			t.Fatalf("DeleteNamespace() error = %v", err)
		}
		if err := c.Get(context.Background(), types.NamespacedName{Name: "ws-1"}, &corev1.Namespace{}); err != nil {
			t.Errorf("expected templated namespace to survive, got %v", err)
		}
	})

	t.Run("never deletes a shared namespace", func(t *testing.T) {
		c := setupTestClient(t, nil, managed("workspaces"))
		f := NewFactory(c, FactoryConfig{NamespaceTemplate: "workspaces"}, nil, nil)

		if err := f.DeleteNamespace(context.Background(), testIdentity()); err != nil {
			t.Fatalf("DeleteNamespace() error = %v", err)
		}
		if err := c.Get(context.Background(), types.NamespacedName{Name: "workspaces"}, &corev1.Namespace{}); err != nil {
			t.Errorf("expected shared namespace to survive, got %v", err)
		}
	})
}
