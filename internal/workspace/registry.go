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
	"sync"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/namespace"
)

// Handle identifies a runtime handed out to collaborators outside this package.
type Handle interface {
	Identity() workspacev1alpha1.RuntimeIdentity
}

// Registry owns the runtimes of this process. Runtimes started by an earlier
// process are recovered from the store on demand.
type Registry struct {
	deps Dependencies

	mu       sync.Mutex
	runtimes map[string]*Runtime
}

// NewRegistry returns a registry using deps for every runtime it creates.
func NewRegistry(deps Dependencies) *Registry {
	deps.setDefaults()
	return &Registry{
		deps:     deps,
		runtimes: make(map[string]*Runtime),
	}
}

// Prepare provisions the namespace of id and returns a runtime ready to start env.
// It fails if the workspace already has an active runtime, or while an
// earlier start or stop of the workspace is still unwinding.
func (r *Registry) Prepare(ctx context.Context, id workspacev1alpha1.RuntimeIdentity, env *Environment) (*Runtime, error) {
	if r.InFlight(id.WorkspaceID) {
		return nil, alreadyActive(id.WorkspaceID)
	}
	if err := r.ensureInactive(ctx, id.WorkspaceID); err != nil {
		return nil, err
	}

	ns, err := r.deps.Namespaces.Create(ctx, id)
	if err != nil {
		return nil, err
	}
	id.InfrastructureNamespace = ns.Name()
	rt := r.newRuntime(id, ns, env)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runtimes[id.WorkspaceID]; ok && existing.InFlight() {
		return nil, alreadyActive(id.WorkspaceID)
	}
	r.runtimes[id.WorkspaceID] = rt
	return rt, nil
}

func (r *Registry) ensureInactive(ctx context.Context, workspaceID string) error {
	phase, err := r.deps.Store.GetStatus(ctx, workspaceID)
	if err != nil {
		return err
	}
	if phase != workspacev1alpha1.RuntimeStopped {
		return alreadyActive(workspaceID)
	}
	return nil
}

func alreadyActive(workspaceID string) error {
	return infra.New(infra.KindState, "runtime of workspace %q is already active", workspaceID)
}

func (r *Registry) newRuntime(id workspacev1alpha1.RuntimeIdentity, ns *namespace.Namespace, env *Environment) *Runtime {
	rt := &Runtime{
		deps:     &r.deps,
		identity: id,
		ns:       ns,
		env:      env,
	}
	rt.release = func() { r.forget(rt) }
	return rt
}

func (r *Registry) forget(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtimes[rt.identity.WorkspaceID] == rt {
		delete(r.runtimes, rt.identity.WorkspaceID)
	}
}

// Get returns the runtime of workspaceID, recovering it from the store if
// this process did not start it. It returns nil if the workspace has no
// runtime.
func (r *Registry) Get(ctx context.Context, workspaceID string) (*Runtime, error) {
	r.mu.Lock()
	rt, ok := r.runtimes[workspaceID]
	r.mu.Unlock()
	if ok {
		return rt, nil
	}

	record, err := r.deps.Store.Get(ctx, workspaceID)
	if err != nil || record == nil {
		return nil, err
	}
	id := record.Spec.Identity
	ns := r.deps.Namespaces.Get(id, id.InfrastructureNamespace)

	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.runtimes[workspaceID]; ok {
		return rt, nil
	}
	rt = r.newRuntime(id, ns, nil)
	r.runtimes[workspaceID] = rt
	return rt, nil
}

// Lookup is Get for collaborators that only hold a Handle.
func (r *Registry) Lookup(ctx context.Context, workspaceID string) (Handle, error) {
	rt, err := r.Get(ctx, workspaceID)
	if err != nil || rt == nil {
		return nil, err
	}
	return rt, nil
}

// RunningWorkspaces returns the IDs of workspaces whose runtime is RUNNING.
func (r *Registry) RunningWorkspaces(ctx context.Context) ([]string, error) {
	ids, err := r.deps.Store.FindByStatus(ctx, workspacev1alpha1.RuntimeRunning)
	if err != nil {
		return nil, err
	}
	workspaces := make([]string, 0, len(ids))
	for _, id := range ids {
		workspaces = append(workspaces, id.WorkspaceID)
	}
	return workspaces, nil
}

// IsStarting reports whether this process is starting the runtime of workspaceID.
func (r *Registry) IsStarting(workspaceID string) bool {
	r.mu.Lock()
	rt, ok := r.runtimes[workspaceID]
	r.mu.Unlock()
	return ok && rt.IsStarting()
}

// InFlight reports whether this process is starting or stopping the runtime
// of workspaceID.
func (r *Registry) InFlight(workspaceID string) bool {
	r.mu.Lock()
	rt, ok := r.runtimes[workspaceID]
	r.mu.Unlock()
	return ok && rt.InFlight()
}

// DeleteNamespace removes the namespace of a stopped workspace if it is managed.
func (r *Registry) DeleteNamespace(ctx context.Context, id workspacev1alpha1.RuntimeIdentity) error {
	if err := r.ensureInactive(ctx, id.WorkspaceID); err != nil {
		return err
	}
	return r.deps.Namespaces.DeleteNamespace(ctx, id)
}
