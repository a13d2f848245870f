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
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// PVCs manages the workspace persistent volume claims of one namespace.
// Claims outlive workspace stops, so they are never part of namespace cleanup.
type PVCs struct {
	resources[*corev1.PersistentVolumeClaim, *corev1.PersistentVolumeClaimList]
	timeout time.Duration
}

func newPVCs(c client.WithWatch, namespace, workspaceID string, timeout time.Duration) *PVCs {
	return &PVCs{
		resources: resources[*corev1.PersistentVolumeClaim, *corev1.PersistentVolumeClaimList]{
			client: c, namespace: namespace, workspaceID: workspaceID, kind: "persistent volume claim",
			newObj:  func() *corev1.PersistentVolumeClaim { return &corev1.PersistentVolumeClaim{} },
			newList: func() *corev1.PersistentVolumeClaimList { return &corev1.PersistentVolumeClaimList{} },
		},
		timeout: timeout,
	}
}

// Create creates pvc labeled with the workspace ID.
func (p *PVCs) Create(ctx context.Context, pvc *corev1.PersistentVolumeClaim) (*corev1.PersistentVolumeClaim, error) {
	return p.create(ctx, pvc)
}

// List returns all workspace claims.
func (p *PVCs) List(ctx context.Context) ([]*corev1.PersistentVolumeClaim, error) {
	return p.list(ctx, nil)
}

// Get returns the named claim, or nil if it does not exist.
func (p *PVCs) Get(ctx context.Context, name string) (*corev1.PersistentVolumeClaim, error) {
	return p.get(ctx, name)
}

// Delete removes all workspace claims.
func (p *PVCs) Delete(ctx context.Context) error {
	return p.delete(ctx)
}

// CreateIfNotExist creates the claims in pvcs whose names are not taken yet.
// Claims that already exist are left untouched, even if their spec differs.
func (p *PVCs) CreateIfNotExist(ctx context.Context, pvcs []*corev1.PersistentVolumeClaim) error {
	if len(pvcs) == 0 {
		return nil
	}

	existing := make(map[string]bool)
	claims := &corev1.PersistentVolumeClaimList{}
	if err := p.client.List(ctx, claims, client.InNamespace(p.namespace)); err != nil {
		return infra.Wrap(err, "failed to list persistent volume claims in namespace %q", p.namespace)
	}
	for _, claim := range claims.Items {
		existing[claim.Name] = true
	}

	for _, pvc := range pvcs {
		if existing[pvc.Name] {
			continue
		}
		if _, err := p.create(ctx, pvc); err != nil {
			return err
		}
	}
	return nil
}

// WaitBound blocks until the named claim is bound to a volume.
func (p *PVCs) WaitBound(ctx context.Context, name string) (*corev1.PersistentVolumeClaim, error) {
	return waitFor(ctx, p.client, &corev1.PersistentVolumeClaimList{}, &corev1.PersistentVolumeClaim{},
		types.NamespacedName{Namespace: p.namespace, Name: name}, p.timeout,
		fmt.Sprintf("persistent volume claim %q to be bound", name),
		func(event watch.EventType, pvc *corev1.PersistentVolumeClaim) (bool, error) {
			if event == watch.Deleted {
				return false, infra.New(infra.KindInfrastructure, "persistent volume claim %q was deleted while waiting for it to be bound", name)
			}
			return pvc.Status.Phase == corev1.ClaimBound, nil
		})
}
