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

package controller

import (
	"context"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/workspace"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
)

// ReasonOrphaned is recorded on runtimes whose start or stop was abandoned.
const ReasonOrphaned = "OrphanedRuntime"

// WorkspaceRuntimeReconciler recovers workspace runtimes after a restart.
// Runtimes left STARTING or STOPPING by a previous process are stopped,
// RUNNING runtimes are reattached to consistency tracking and probes.
type WorkspaceRuntimeReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// Namespace holds the WorkspaceRuntime objects; others are ignored.
	Namespace string
	Runtimes  *workspace.Registry
	Tracker   workspace.Tracker
	Recorder  record.EventRecorder
}

// +kubebuilder:rbac:groups=workspace.workspaced.io,resources=workspaceruntimes,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile brings the in-process view of one runtime in line with its
// durable record.
func (r *WorkspaceRuntimeReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx)

	var wsr workspacev1alpha1.WorkspaceRuntime
	if err := r.Get(ctx, req.NamespacedName, &wsr); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	workspaceID := wsr.Spec.Identity.WorkspaceID
	log = log.WithValues("workspace", workspaceID)
	ctx = logf.IntoContext(ctx, log)

	if r.Runtimes.InFlight(workspaceID) {
		log.V(1).Info("Runtime is being started or stopped by this process, skipping")
		return ctrl.Result{}, nil
	}

	rt, err := r.Runtimes.Get(ctx, workspaceID)
	if err != nil {
		return ctrl.Result{}, err
	}
	if rt == nil {
		return ctrl.Result{}, nil
	}

	// The cached object may lag behind the store.
	phase, err := rt.Status(ctx)
	if err != nil {
		return ctrl.Result{}, err
	}

	switch phase {
	case workspacev1alpha1.RuntimeStarting, workspacev1alpha1.RuntimeStopping:
		return ctrl.Result{}, r.stopOrphaned(ctx, &wsr, rt, phase)
	case workspacev1alpha1.RuntimeRunning:
		r.Tracker.Track(workspaceID)
		if err := rt.ScheduleProbes(ctx); err != nil {
			log.Error(err, "Failed to schedule probes of recovered runtime")
			return ctrl.Result{}, err
		}
		log.V(1).Info("Running runtime reattached")
	}
	return ctrl.Result{}, nil
}

func (r *WorkspaceRuntimeReconciler) stopOrphaned(ctx context.Context, wsr *workspacev1alpha1.WorkspaceRuntime,
	rt *workspace.Runtime, phase workspacev1alpha1.RuntimePhase) error {
	log := logf.FromContext(ctx)
	log.Info("Stopping orphaned runtime", "phase", phase)
	if r.Recorder != nil {
		r.Recorder.Eventf(wsr, corev1.EventTypeWarning, ReasonOrphaned,
			"Runtime of workspace %s was left %s by a previous process and is stopped", rt.Identity().WorkspaceID, phase)
	}

	err := rt.StopOrphaned(ctx)
	if infra.Is(err, infra.KindState) {
		// another stop finished first
		log.V(1).Info("Runtime left the orphaned phase before it was stopped", "error", err.Error())
		return nil
	}
	return err
}

// SetupWithManager sets up the controller with the Manager.
func (r *WorkspaceRuntimeReconciler) SetupWithManager(mgr ctrl.Manager) error {
	inNamespace := predicate.NewPredicateFuncs(func(obj client.Object) bool {
		return r.Namespace == "" || obj.GetNamespace() == r.Namespace
	})
	return ctrl.NewControllerManagedBy(mgr).
		For(&workspacev1alpha1.WorkspaceRuntime{}, builder.WithPredicates(inNamespace)).
		Named("workspaceruntime").
		Complete(r)
}
