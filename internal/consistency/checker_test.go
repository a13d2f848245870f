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
	"errors"
	"sync"
	"testing"
	"time"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/workspace"
	"go.uber.org/goleak"
)

type fakeRuntime struct {
	id         workspacev1alpha1.RuntimeIdentity
	consistent bool
	phase      workspacev1alpha1.RuntimePhase
	stopErr    error

	mu      sync.Mutex
	stopped int
}

func newFakeRuntime(workspaceID string, consistent bool, phase workspacev1alpha1.RuntimePhase) *fakeRuntime {
	return &fakeRuntime{
		id:         workspacev1alpha1.RuntimeIdentity{WorkspaceID: workspaceID},
		consistent: consistent,
		phase:      phase,
	}
}

func (r *fakeRuntime) Identity() workspacev1alpha1.RuntimeIdentity { return r.id }

func (r *fakeRuntime) IsConsistent(context.Context) (bool, error) { return r.consistent, nil }

func (r *fakeRuntime) Status(context.Context) (workspacev1alpha1.RuntimePhase, error) {
	return r.phase, nil
}

func (r *fakeRuntime) StopAbnormally(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return r.stopErr
}

func (r *fakeRuntime) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// foreignHandle is a runtime of a kind the checker cannot inspect.
type foreignHandle struct{ id workspacev1alpha1.RuntimeIdentity }

func (h foreignHandle) Identity() workspacev1alpha1.RuntimeIdentity { return h.id }

type fakeProvider map[string]workspace.Handle

func (p fakeProvider) Lookup(_ context.Context, workspaceID string) (workspace.Handle, error) {
	h, ok := p[workspaceID]
	if !ok {
		return nil, nil
	}
	return h, nil
}

type abnormalEvents struct {
	mu       sync.Mutex
	stopping []string
	stopped  []events.RuntimeAbnormalStoppedEvent
}

func recordAbnormal(bus *events.Bus) *abnormalEvents {
	a := &abnormalEvents{}
	events.Subscribe(bus, func(e events.RuntimeAbnormalStoppingEvent) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stopping = append(a.stopping, e.Identity.WorkspaceID)
	})
	events.Subscribe(bus, func(e events.RuntimeAbnormalStoppedEvent) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stopped = append(a.stopped, e)
	})
	return a
}

func TestChecker_sweep_stops_only_inconsistent_active_runtimes(t *testing.T) {
	w1 := newFakeRuntime("w1", true, workspacev1alpha1.RuntimeRunning)
	w2 := newFakeRuntime("w2", false, workspacev1alpha1.RuntimeRunning)
	w3 := newFakeRuntime("w3", false, workspacev1alpha1.RuntimeStopping)
	bus := events.NewBus()
	abnormal := recordAbnormal(bus)

	checker := NewChecker(fakeProvider{"w1": w1, "w2": w2, "w3": w3}, bus, time.Minute)
	for _, id := range []string{"w1", "w2", "w3"} {
		checker.Track(id)
	}

	checker.sweep(context.Background())

	if w1.stopCount() != 0 {
		t.Error("expected the consistent runtime w1 to be left alone")
	}
	if w2.stopCount() != 1 {
		t.Errorf("w2 stopped %d time(s), want 1", w2.stopCount())
	}
	if w3.stopCount() != 0 {
		t.Error("expected the stopping runtime w3 to be left alone")
	}
	if len(abnormal.stopping) != 1 || abnormal.stopping[0] != "w2" {
		t.Errorf("abnormal stopping events = %v, want [w2]", abnormal.stopping)
	}
	if len(abnormal.stopped) != 1 || abnormal.stopped[0].Identity.WorkspaceID != "w2" || abnormal.stopped[0].Error != "" {
		t.Errorf("abnormal stopped events = %+v, want one successful stop of w2", abnormal.stopped)
	}
}

func TestChecker_check_publishes_both_events_when_stop_fails(t *testing.T) {
	w2 := newFakeRuntime("w2", false, workspacev1alpha1.RuntimeRunning)
	w2.stopErr = errors.New("namespace cleanup failed")
	bus := events.NewBus()
	abnormal := recordAbnormal(bus)
	checker := NewChecker(fakeProvider{"w2": w2}, bus, time.Minute)

	err := checker.check(context.Background(), "w2")

	if !infra.IsInternal(err) {
		t.Fatalf("check() = %v, want an internal error", err)
	}
	if len(abnormal.stopping) != 1 {
		t.Errorf("abnormal stopping events = %d, want 1", len(abnormal.stopping))
	}
	if len(abnormal.stopped) != 1 || abnormal.stopped[0].Error == "" {
		t.Errorf("abnormal stopped events = %+v, want one carrying the error", abnormal.stopped)
	}
}

func TestChecker_sweep_continues_past_failing_workspaces(t *testing.T) {
	broken := newFakeRuntime("a-broken", false, workspacev1alpha1.RuntimeRunning)
	broken.stopErr = errors.New("boom")
	last := newFakeRuntime("z-last", false, workspacev1alpha1.RuntimeRunning)
	provider := fakeProvider{
		"a-broken": broken,
		"m-foreign": foreignHandle{
			id: workspacev1alpha1.RuntimeIdentity{WorkspaceID: "m-foreign"},
		},
		"z-last": last,
	}
	checker := NewChecker(provider, events.NewBus(), time.Minute)
	for id := range provider {
		checker.Track(id)
	}

	checker.sweep(context.Background())

	if last.stopCount() != 1 {
		t.Error("expected the sweep to reach the last workspace")
	}
}

func TestChecker_check_rejects_foreign_handles(t *testing.T) {
	provider := fakeProvider{"w1": foreignHandle{id: workspacev1alpha1.RuntimeIdentity{WorkspaceID: "w1"}}}
	checker := NewChecker(provider, events.NewBus(), time.Minute)

	err := checker.check(context.Background(), "w1")
	if !infra.IsInternal(err) {
		t.Errorf("check() = %v, want an internal error", err)
	}
}

func TestChecker_check_untracks_vanished_runtimes(t *testing.T) {
	checker := NewChecker(fakeProvider{}, events.NewBus(), time.Minute)
	checker.Track("gone")

	if err := checker.check(context.Background(), "gone"); err != nil {
		t.Fatalf("check() error = %v", err)
	}
	if tracked := checker.Tracked(); len(tracked) != 0 {
		t.Errorf("Tracked() = %v, want none", tracked)
	}
}

func TestChecker_Track_and_StopTracking(t *testing.T) {
	checker := NewChecker(fakeProvider{}, events.NewBus(), time.Minute)
	checker.Track("b")
	checker.Track("a")
	checker.Track("a")
	checker.StopTracking("b")
	checker.StopTracking("missing")

	if got := checker.Tracked(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Tracked() = %v, want [a]", got)
	}
}

func TestChecker_Start_runs_periodically_and_stops_gracefully(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := newFakeRuntime("w1", false, workspacev1alpha1.RuntimeRunning)
	checker := NewChecker(fakeProvider{"w1": w}, events.NewBus(), 20*time.Millisecond)
	checker.Track("w1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- checker.Start(ctx)
	}()
	<-ctx.Done()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
	if w.stopCount() == 0 {
		t.Error("expected at least one sweep to stop the inconsistent runtime")
	}
}
