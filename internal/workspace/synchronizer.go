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
	"time"

	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/infra"
)

// StartSynchronizer gates one start of a workspace runtime. It resolves
// exactly once, either by the start sequence itself or by a stop request
// observed on the bus, in which case the start context is cancelled.
type StartSynchronizer struct {
	bus         *events.Bus
	workspaceID string
	done        chan struct{}

	mu          sync.Mutex
	started     bool
	resolved    bool
	err         error
	cancel      context.CancelFunc
	unsubscribe []func()
}

// NewStartSynchronizer returns an idle synchronizer for workspaceID.
func NewStartSynchronizer(bus *events.Bus, workspaceID string) *StartSynchronizer {
	return &StartSynchronizer{
		bus:         bus,
		workspaceID: workspaceID,
		done:        make(chan struct{}),
	}
}

// Start subscribes to stop events of the workspace. Calling it again has no effect.
func (s *StartSynchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.resolved {
		return
	}
	s.started = true

	s.unsubscribe = []func(){
		events.Subscribe(s.bus, func(e events.RuntimeStoppingEvent) {
			if e.Identity.WorkspaceID == s.workspaceID {
				s.stopRequested()
			}
		}),
		events.Subscribe(s.bus, func(e events.RuntimeStoppedEvent) {
			if e.Identity.WorkspaceID == s.workspaceID {
				s.stopRequested()
			}
		}),
	}
}

func (s *StartSynchronizer) stopRequested() {
	s.CompleteExceptionally(infra.Interrupted(nil))
	s.Interrupt()
}

// SetStartContext derives the context the start sequence runs under.
// Interrupt cancels it. It fails if a start context was already set.
func (s *StartSynchronizer) SetStartContext(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, infra.New(infra.KindState, "start of workspace %q is already in progress", s.workspaceID)
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	if s.resolved && s.err != nil {
		cancel()
	}
	return ctx, nil
}

// Interrupt cancels the start context, if one is set.
func (s *StartSynchronizer) Interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Complete resolves the synchronizer as successful. If it already failed,
// the original failure is returned instead.
func (s *StartSynchronizer) Complete() error {
	if s.resolve(nil) {
		return nil
	}
	return s.CheckFailure()
}

// CompleteExceptionally resolves the synchronizer with err and reports
// whether this call resolved it.
func (s *StartSynchronizer) CompleteExceptionally(err error) bool {
	return s.resolve(err)
}

func (s *StartSynchronizer) resolve(err error) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.err = err
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	return true
}

// CheckFailure returns the failure the synchronizer resolved with, or nil
// while it is unresolved or resolved successfully. It never blocks.
func (s *StartSynchronizer) CheckFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// AwaitInterruption blocks until the synchronizer resolves or timeout
// elapses. It reports whether the synchronizer resolved with a failure.
func (s *StartSynchronizer) AwaitInterruption(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return s.CheckFailure() != nil
	case <-timer.C:
		return false
	}
}

// Done is closed once the synchronizer has resolved.
func (s *StartSynchronizer) Done() <-chan struct{} {
	return s.done
}

// IsCompleted reports whether the synchronizer has resolved.
func (s *StartSynchronizer) IsCompleted() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// release cancels the start context once the start sequence has returned.
func (s *StartSynchronizer) release() {
	s.Interrupt()
}
