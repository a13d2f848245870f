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

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const managedByLabel = "workspace.workspaced.io/managed-by"

// Store persists runtime states and machine records as WorkspaceRuntime objects.
type Store struct {
	client    client.Client
	namespace string
}

// New returns a store keeping its objects in namespace.
func New(c client.Client, namespace string) *Store {
	return &Store{client: c, namespace: namespace}
}

// Namespace returns the namespace holding the runtime objects.
func (s *Store) Namespace() string {
	return s.namespace
}

// ObjectName returns the name of the object holding the runtime of workspaceID.
// Workspace IDs that are not valid object names are replaced by a stable hash.
func ObjectName(workspaceID string) string {
	if len(validation.IsDNS1123Subdomain(workspaceID)) == 0 {
		return workspaceID
	}
	sum := sha256.Sum256([]byte(workspaceID))
	return "workspace-" + hex.EncodeToString(sum[:])[:16]
}

// Object returns a reference to the runtime object of workspaceID without reading it.
func (s *Store) Object(workspaceID string) *workspacev1alpha1.WorkspaceRuntime {
	return &workspacev1alpha1.WorkspaceRuntime{
		TypeMeta: metav1.TypeMeta{
			APIVersion: workspacev1alpha1.GroupVersion.String(),
			Kind:       "WorkspaceRuntime",
		},
		ObjectMeta: metav1.ObjectMeta{Name: ObjectName(workspaceID), Namespace: s.namespace},
	}
}

// PutIfAbsent records a STARTING runtime for id. It reports false when the
// workspace already has a runtime.
func (s *Store) PutIfAbsent(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, commands []workspacev1alpha1.Command) (bool, error) {
	now := metav1.Now()
	rt := &workspacev1alpha1.WorkspaceRuntime{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ObjectName(id.WorkspaceID),
			Namespace: s.namespace,
			Labels:    map[string]string{managedByLabel: "workspaced"},
		},
		Spec: workspacev1alpha1.WorkspaceRuntimeSpec{
			Identity: id,
			Commands: commands,
		},
		Status: workspacev1alpha1.WorkspaceRuntimeStatus{
			Phase:     workspacev1alpha1.RuntimeStarting,
			StartedAt: &now,
		},
	}

	if err := s.client.Create(ctx, rt); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, infra.Wrap(err, "failed to record runtime of workspace %q", id.WorkspaceID)
	}
	return true, nil
}

// Get returns the runtime object of workspaceID, or nil if the workspace has no runtime.
func (s *Store) Get(ctx context.Context, workspaceID string) (*workspacev1alpha1.WorkspaceRuntime, error) {
	rt := &workspacev1alpha1.WorkspaceRuntime{}
	if err := s.client.Get(ctx, s.key(workspaceID), rt); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, infra.Wrap(err, "failed to get runtime of workspace %q", workspaceID)
	}
	return rt, nil
}

// GetStatus returns the phase of the runtime of workspaceID. A workspace
// without a runtime is reported as RuntimeStopped.
func (s *Store) GetStatus(ctx context.Context, workspaceID string) (workspacev1alpha1.RuntimePhase, error) {
	rt, err := s.Get(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if rt == nil {
		return workspacev1alpha1.RuntimeStopped, nil
	}
	return rt.Status.Phase, nil
}

// UpdateStatus moves the runtime of workspaceID to phase if its current phase
// satisfies precondition. It reports whether the transition happened.
func (s *Store) UpdateStatus(ctx context.Context, workspaceID string,
	precondition func(workspacev1alpha1.RuntimePhase) bool, phase workspacev1alpha1.RuntimePhase) (bool, error) {
	return s.mutate(ctx, workspaceID, func(rt *workspacev1alpha1.WorkspaceRuntime) (bool, error) {
		if !precondition(rt.Status.Phase) {
			return false, nil
		}
		rt.Status.Phase = phase
		rt.Status.Reason = ""
		return true, nil
	})
}

// RemoveIf deletes the runtime of workspaceID when its phase satisfies
// precondition. It reports whether the runtime was removed. A write racing
// the delete re-reads the runtime and checks precondition again.
func (s *Store) RemoveIf(ctx context.Context, workspaceID string, precondition func(workspacev1alpha1.RuntimePhase) bool) (bool, error) {
	var removed bool
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		removed = false
		rt := &workspacev1alpha1.WorkspaceRuntime{}
		if err := s.client.Get(ctx, s.key(workspaceID), rt); err != nil {
			return err
		}
		if !precondition(rt.Status.Phase) {
			return nil
		}
		if err := s.client.Delete(ctx, rt, client.Preconditions{UID: &rt.UID, ResourceVersion: &rt.ResourceVersion}); err != nil {
			return err
		}
		removed = true
		return nil
	})

	switch {
	case err == nil:
		return removed, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, infra.Wrap(err, "failed to remove runtime of workspace %q", workspaceID)
	}
}

// FindByStatus returns the identities of runtimes in phase.
func (s *Store) FindByStatus(ctx context.Context, phase workspacev1alpha1.RuntimePhase) ([]workspacev1alpha1.RuntimeIdentity, error) {
	runtimes, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	var ids []workspacev1alpha1.RuntimeIdentity
	for _, rt := range runtimes {
		if rt.Status.Phase == phase {
			ids = append(ids, rt.Spec.Identity)
		}
	}
	return ids, nil
}

func (s *Store) list(ctx context.Context) ([]workspacev1alpha1.WorkspaceRuntime, error) {
	list := &workspacev1alpha1.WorkspaceRuntimeList{}
	if err := s.client.List(ctx, list, client.InNamespace(s.namespace)); err != nil {
		return nil, infra.Wrap(err, "failed to list workspace runtimes")
	}
	return list.Items, nil
}

// mutate applies fn to the current runtime object and writes it back when fn
// reports a change. Write conflicts re-read the object and apply fn again.
func (s *Store) mutate(ctx context.Context, workspaceID string,
	fn func(*workspacev1alpha1.WorkspaceRuntime) (bool, error)) (bool, error) {
	var changed bool
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		rt := &workspacev1alpha1.WorkspaceRuntime{}
		if err := s.client.Get(ctx, s.key(workspaceID), rt); err != nil {
			changed = false
			return err
		}
		var err error
		if changed, err = fn(rt); err != nil || !changed {
			return err
		}
		return s.client.Update(ctx, rt)
	})

	switch {
	case err == nil:
		return changed, nil
	case apierrors.IsNotFound(err):
		return false, nil
	case infra.KindOf(err) != infra.KindInfrastructure:
		return false, err
	default:
		return false, infra.Wrap(err, "failed to update runtime of workspace %q", workspaceID)
	}
}

func (s *Store) key(workspaceID string) types.NamespacedName {
	return types.NamespacedName{Namespace: s.namespace, Name: ObjectName(workspaceID)}
}

func machineNotFound(workspaceID, machine string) error {
	return infra.New(infra.KindInfrastructure, "machine %q of workspace %q not found", machine, workspaceID)
}

func runtimeNotActive(workspaceID string) error {
	return infra.New(infra.KindState, "runtime of workspace %q is not active", workspaceID)
}
