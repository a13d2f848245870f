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

package consistency

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/metrics"
	"github.com/mikelane/workspaced/internal/workspace"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// InconsistentReason is the reason carried by abnormal stop events.
const InconsistentReason = "The runtime is inconsistent with the state of its cluster resources"

// RuntimeProvider resolves workspace IDs to runtime handles.
type RuntimeProvider interface {
	// Lookup returns nil when the workspace has no runtime.
	Lookup(ctx context.Context, workspaceID string) (workspace.Handle, error)
}

// ProviderFunc adapts a function to RuntimeProvider. It lets a Checker be
// built before the registry that both tracks into it and serves its lookups.
type ProviderFunc func(ctx context.Context, workspaceID string) (workspace.Handle, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, workspaceID string) (workspace.Handle, error) {
	return f(ctx, workspaceID)
}

// checkedRuntime is the capability a handle needs to be checked.
type checkedRuntime interface {
	workspace.Handle
	IsConsistent(ctx context.Context) (bool, error)
	Status(ctx context.Context) (workspacev1alpha1.RuntimePhase, error)
	StopAbnormally(ctx context.Context) error
}

var (
	_ checkedRuntime    = (*workspace.Runtime)(nil)
	_ RuntimeProvider   = (*workspace.Registry)(nil)
	_ workspace.Tracker = (*Checker)(nil)
)

// Checker periodically verifies tracked runtimes against the cluster and
// forcibly stops those whose pods are gone.
type Checker struct {
	runtimes RuntimeProvider
	bus      *events.Bus
	interval time.Duration
	log      logr.Logger

	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewChecker creates a consistency checker with the specified interval.
//
// Parameters:
//   - runtimes: Provider used to resolve tracked workspace IDs to runtimes
//   - bus: Event bus receiving the abnormal stop events
//   - interval: Duration between sweeps (e.g., time.Minute)
//
// Returns a configured Checker ready to start.
func NewChecker(runtimes RuntimeProvider, bus *events.Bus, interval time.Duration) *Checker {
	return &Checker{
		runtimes: runtimes,
		bus:      bus,
		interval: interval,
		log:      log.Log.WithName("consistency"),
		tracked:  make(map[string]struct{}),
	}
}

// WithLogger replaces the logger used by sweeps.
func (c *Checker) WithLogger(logger logr.Logger) *Checker {
	c.log = logger
	return c
}

// Track adds workspaceID to the sweep.
func (c *Checker) Track(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked[workspaceID] = struct{}{}
}

// StopTracking removes workspaceID from the sweep.
func (c *Checker) StopTracking(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, workspaceID)
}

// Tracked returns the tracked workspace IDs in sorted order.
func (c *Checker) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Start runs sweeps until the context is canceled. It implements
// manager.Runnable.
//
// Parameters:
//   - ctx: Context for cancellation and deadline control
//
// Returns nil on graceful shutdown.
func (c *Checker) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger := c.log
	ctx = logr.NewContext(ctx, logger)
	logger.Info("Starting consistency checker", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// NeedLeaderElection keeps forced stops on a single replica.
func (c *Checker) NeedLeaderElection() bool {
	return true
}

// sweep checks every tracked runtime. Failures are logged per workspace and
// never end the sweep early.
func (c *Checker) sweep(ctx context.Context) {
	logger := log.FromContext(ctx)
	for _, id := range c.Tracked() {
		if ctx.Err() != nil {
			return
		}
		if err := c.check(ctx, id); err != nil {
			metrics.RecordConsistencyCheck(metrics.CheckError)
			logger.Error(err, "Consistency check failed", "workspace", id)
		}
	}
}

// check verifies a single runtime and stops it when it is inconsistent and
// still starting or running.
func (c *Checker) check(ctx context.Context, workspaceID string) error {
	handle, err := c.runtimes.Lookup(ctx, workspaceID)
	if err != nil {
		return err
	}
	if handle == nil {
		c.StopTracking(workspaceID)
		return nil
	}
	rt, ok := handle.(checkedRuntime)
	if !ok {
		return infra.Internalf("runtime of workspace %q is a %T, which cannot be checked for consistency", workspaceID, handle)
	}

	consistent, err := rt.IsConsistent(ctx)
	if err != nil {
		return err
	}
	if consistent {
		metrics.RecordConsistencyCheck(metrics.CheckConsistent)
		return nil
	}
	metrics.RecordConsistencyCheck(metrics.CheckInconsistent)

	phase, err := rt.Status(ctx)
	if err != nil {
		return err
	}
	if !phase.IsActive() {
		log.FromContext(ctx).V(1).Info("Skipping inconsistent runtime that is not active",
			"workspace", workspaceID, "phase", phase)
		return nil
	}
	return c.stopAbnormally(ctx, rt)
}

func (c *Checker) stopAbnormally(ctx context.Context, rt checkedRuntime) (err error) {
	id := rt.Identity()
	log.FromContext(ctx).Info("Stopping inconsistent runtime", "workspace", id.WorkspaceID)

	events.Publish(c.bus, events.RuntimeAbnormalStoppingEvent{Identity: id, Reason: InconsistentReason})
	defer func() {
		stopped := events.RuntimeAbnormalStoppedEvent{Identity: id, Reason: InconsistentReason}
		if err != nil {
			stopped.Error = err.Error()
		}
		events.Publish(c.bus, stopped)
	}()

	if err := rt.StopAbnormally(ctx); err != nil {
		return infra.WrapInternal(err, "failed to stop inconsistent runtime of workspace %q", id.WorkspaceID)
	}
	return nil
}
