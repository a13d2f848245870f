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
	"time"

	"github.com/mikelane/workspaced/internal/infra"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	watchtools "k8s.io/client-go/tools/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var (
	// ErrWaitTimeout is wrapped by failures of waits that ran out of time.
	ErrWaitTimeout = errors.New("timed out waiting for condition")

	// ErrWatchClosed is wrapped by failures of waits whose watch closed before
	// the condition was met.
	ErrWatchClosed = errors.New("watch closed before condition was met")
)

// Condition decides whether an observed object satisfies a wait. Returning an
// error aborts the wait with that error. The Get performed before blocking is
// reported as watch.Added.
type Condition[T client.Object] func(event watch.EventType, obj T) (bool, error)

// openWatch subscribes to changes of list's kind in namespace. Callers must stop the watch.
func openWatch(ctx context.Context, c client.WithWatch, list client.ObjectList, namespace string) (watch.Interface, error) {
	w, err := c.Watch(ctx, list, client.InNamespace(namespace))
	if err != nil {
		return nil, infra.Wrap(err, "failed to watch %T in namespace %q", list, namespace)
	}
	return w, nil
}

// waitFor blocks until the object named by key satisfies cond or the timeout elapses.
// The watch is opened before the current value is read.
func waitFor[T client.Object](ctx context.Context, c client.WithWatch, list client.ObjectList, obj T,
	key types.NamespacedName, timeout time.Duration, what string, cond Condition[T]) (T, error) {
	w, err := openWatch(ctx, c, list, key.Namespace)
	if err != nil {
		var zero T
		return zero, err
	}
	defer w.Stop()

	return waitOnWatch(ctx, c, w, obj, key, timeout, what, cond)
}

// waitAsync is the non-blocking form of waitFor. The watch is opened before it returns.
func waitAsync[T client.Object](ctx context.Context, c client.WithWatch, list client.ObjectList, obj T,
	key types.NamespacedName, timeout time.Duration, what string, cond Condition[T]) *Future[T] {
	w, err := openWatch(ctx, c, list, key.Namespace)
	if err != nil {
		return failedFuture[T](err)
	}
	return goFuture(ctx, func(ctx context.Context) (T, error) {
		defer w.Stop()
		return waitOnWatch(ctx, c, w, obj, key, timeout, what, cond)
	})
}

func waitOnWatch[T client.Object](ctx context.Context, c client.Client, w watch.Interface, obj T,
	key types.NamespacedName, timeout time.Duration, what string, cond Condition[T]) (T, error) {
	var zero T
	err := c.Get(ctx, key, obj)
	switch {
	case err == nil:
		ok, condErr := cond(watch.Added, obj)
		if condErr != nil {
			return zero, condErr
		}
		if ok {
			return obj, nil
		}
	case !apierrors.IsNotFound(err):
		return zero, infra.Wrap(err, "failed to get %s", what)
	}

	return awaitEvent(ctx, w, timeout, what, func(event watch.EventType, o T) (bool, error) {
		if o.GetName() != key.Name {
			return false, nil
		}
		return cond(event, o)
	})
}

// awaitEvent consumes w until cond accepts an event, the watch closes or the timeout elapses.
func awaitEvent[T client.Object](ctx context.Context, w watch.Interface, timeout time.Duration, what string,
	cond Condition[T]) (T, error) {
	var zero T
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	event, err := watchtools.UntilWithoutRetry(waitCtx, w, func(e watch.Event) (bool, error) {
		if e.Type == watch.Error {
			return false, infra.Wrap(apierrors.FromObject(e.Object), "watch failed while waiting for %s", what)
		}
		obj, ok := e.Object.(T)
		if !ok {
			return false, nil
		}
		return cond(e.Type, obj)
	})
	if err == nil {
		obj, _ := event.Object.(T)
		return obj, nil
	}
	return zero, classifyWaitError(ctx, waitCtx, err, what)
}

// classifyWaitError separates cancellation, a closed watch and a timeout from
// failures reported by the condition itself.
func classifyWaitError(parent, waitCtx context.Context, err error, what string) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return infra.Interrupted(parent.Err())
	case errors.Is(err, watchtools.ErrWatchClosed):
		return infra.WrapInternal(ErrWatchClosed, "waiting for %s was interrupted", what)
	case waitCtx.Err() != nil:
		return infra.Wrap(ErrWaitTimeout, "waiting for %s reached timeout", what)
	default:
		return err
	}
}
