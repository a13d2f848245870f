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
	"sync"
	"time"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/consistency"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/namespace"
	"github.com/mikelane/workspaced/internal/store"
	"github.com/mikelane/workspaced/internal/workspace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
)

var _ = Describe("WorkspaceRuntime Controller", func() {
	var (
		ctx        context.Context
		bus        *events.Bus
		probes     *recordingProbes
		checker    *consistency.Checker
		recorder   *record.FakeRecorder
		reconciler *WorkspaceRuntimeReconciler

		mu      sync.Mutex
		stopped []string
		machine map[string]workspacev1alpha1.MachineStatus
	)

	request := func(workspaceID string) reconcile.Request {
		return reconcile.Request{NamespacedName: types.NamespacedName{
			Name:      store.ObjectName(workspaceID),
			Namespace: storeNamespace,
		}}
	}

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewBus()
		probes = &recordingProbes{}
		recorder = record.NewFakeRecorder(10)
		stopped = nil
		machine = make(map[string]workspacev1alpha1.MachineStatus)

		events.Subscribe(bus, func(e events.RuntimeStoppedEvent) {
			mu.Lock()
			defer mu.Unlock()
			stopped = append(stopped, e.Identity.WorkspaceID)
		})
		events.Subscribe(bus, func(e events.MachineStatusEvent) {
			mu.Lock()
			defer mu.Unlock()
			machine[e.MachineName] = e.Status
		})

		var registry *workspace.Registry
		checker = consistency.NewChecker(consistency.ProviderFunc(
			func(ctx context.Context, workspaceID string) (workspace.Handle, error) {
				return registry.Lookup(ctx, workspaceID)
			}), bus, time.Minute)
		registry = workspace.NewRegistry(newDependencies(bus, probes, checker))

		reconciler = &WorkspaceRuntimeReconciler{
			Client:    k8sClient,
			Scheme:    k8sClient.Scheme(),
			Namespace: storeNamespace,
			Runtimes:  registry,
			Tracker:   checker,
			Recorder:  recorder,
		}
	})

	Describe("Scenario: a runtime was left STARTING by a previous process", func() {
		It("stops the orphaned runtime and removes its record", func() {
			By("seeding a starting runtime with leftover resources")
			seedRuntime(ctx, "ws1", workspacev1alpha1.RuntimeStarting)
			leftover := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "ws1-credentials",
					Namespace: "ws1",
					Labels:    map[string]string{namespace.WorkspaceIDLabel: "ws1"},
				},
			}
			Expect(k8sClient.Create(ctx, leftover)).To(Succeed())

			By("reconciling the record")
			_, err := reconciler.Reconcile(ctx, request("ws1"))
			Expect(err).NotTo(HaveOccurred())

			By("checking the runtime is stopped")
			phase, err := store.New(k8sClient, storeNamespace).GetStatus(ctx, "ws1")
			Expect(err).NotTo(HaveOccurred())
			Expect(phase).To(Equal(workspacev1alpha1.RuntimeStopped))

			secret := &corev1.Secret{}
			err = k8sClient.Get(ctx, types.NamespacedName{Name: "ws1-credentials", Namespace: "ws1"}, secret)
			Expect(err).To(HaveOccurred())

			mu.Lock()
			Expect(stopped).To(ConsistOf("ws1"))
			Expect(machine).To(HaveKeyWithValue("app/web", workspacev1alpha1.MachineStopped))
			mu.Unlock()
			Expect(probes.wasCancelled("ws1")).To(BeTrue())

			By("checking a warning event was recorded")
			Expect(recorder.Events).To(Receive(ContainSubstring(ReasonOrphaned)))
		})
	})

	Describe("Scenario: a runtime was left STOPPING by a previous process", func() {
		It("finishes the stop", func() {
			seedRuntime(ctx, "ws2", workspacev1alpha1.RuntimeStopping)

			_, err := reconciler.Reconcile(ctx, request("ws2"))
			Expect(err).NotTo(HaveOccurred())

			wsr, err := store.New(k8sClient, storeNamespace).Get(ctx, "ws2")
			Expect(err).NotTo(HaveOccurred())
			Expect(wsr).To(BeNil())

			mu.Lock()
			Expect(stopped).To(ConsistOf("ws2"))
			mu.Unlock()
		})
	})

	Describe("Scenario: a RUNNING runtime is recovered", func() {
		It("tracks it for consistency and schedules probes once", func() {
			seedRuntime(ctx, "ws3", workspacev1alpha1.RuntimeRunning)

			_, err := reconciler.Reconcile(ctx, request("ws3"))
			Expect(err).NotTo(HaveOccurred())
			_, err = reconciler.Reconcile(ctx, request("ws3"))
			Expect(err).NotTo(HaveOccurred())

			Expect(checker.Tracked()).To(ConsistOf("ws3"))
			Expect(probes.schedules("ws3")).To(Equal(1))

			phase, err := store.New(k8sClient, storeNamespace).GetStatus(ctx, "ws3")
			Expect(err).NotTo(HaveOccurred())
			Expect(phase).To(Equal(workspacev1alpha1.RuntimeRunning))
			Expect(recorder.Events).NotTo(Receive())
		})
	})

	Describe("Scenario: the record no longer exists", func() {
		It("returns without error", func() {
			result, err := reconciler.Reconcile(ctx, request("gone"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(reconcile.Result{}))
			Expect(checker.Tracked()).To(BeEmpty())
		})
	})
})
