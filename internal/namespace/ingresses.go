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

	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Ingresses manages the workspace ingresses of one namespace.
type Ingresses struct {
	resources[*networkingv1.Ingress, *networkingv1.IngressList]
	timeout time.Duration
}

func newIngresses(c client.WithWatch, namespace, workspaceID string, timeout time.Duration) *Ingresses {
	return &Ingresses{
		resources: resources[*networkingv1.Ingress, *networkingv1.IngressList]{
			client: c, namespace: namespace, workspaceID: workspaceID, kind: "ingress",
			newObj:  func() *networkingv1.Ingress { return &networkingv1.Ingress{} },
			newList: func() *networkingv1.IngressList { return &networkingv1.IngressList{} },
		},
		timeout: timeout,
	}
}

// Create creates ing labeled with the workspace ID.
func (i *Ingresses) Create(ctx context.Context, ing *networkingv1.Ingress) (*networkingv1.Ingress, error) {
	return i.create(ctx, ing)
}

// List returns all workspace ingresses.
func (i *Ingresses) List(ctx context.Context) ([]*networkingv1.Ingress, error) {
	return i.list(ctx, nil)
}

// Get returns the named ingress, or nil if it does not exist.
func (i *Ingresses) Get(ctx context.Context, name string) (*networkingv1.Ingress, error) {
	return i.get(ctx, name)
}

// Delete removes all workspace ingresses.
func (i *Ingresses) Delete(ctx context.Context) error {
	return i.delete(ctx)
}

// Wait blocks until the named ingress satisfies cond.
func (i *Ingresses) Wait(ctx context.Context, name string, timeout time.Duration,
	cond func(*networkingv1.Ingress) bool) (*networkingv1.Ingress, error) {
	return waitFor(ctx, i.client, &networkingv1.IngressList{}, &networkingv1.Ingress{},
		types.NamespacedName{Namespace: i.namespace, Name: name}, timeout,
		fmt.Sprintf("ingress %q", name),
		func(event watch.EventType, ing *networkingv1.Ingress) (bool, error) {
			return event != watch.Deleted && cond(ing), nil
		})
}

// WaitLoadBalancer blocks until the named ingress has been assigned a load balancer address.
func (i *Ingresses) WaitLoadBalancer(ctx context.Context, name string) (*networkingv1.Ingress, error) {
	return i.Wait(ctx, name, i.timeout, func(ing *networkingv1.Ingress) bool {
		return len(ing.Status.LoadBalancer.Ingress) > 0
	})
}
