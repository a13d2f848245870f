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
	"errors"
	"sync/atomic"
	"time"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/namespace"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var _ = Describe("Runtime", func() {
	const (
		timeout  = time.Second * 10
		interval = time.Millisecond * 50
	)

	var (
		ctx      context.Context
		cluster  *fakeCluster
		c        client.WithWatch
		bus      *events.Bus
		log      *eventLog
		tracker  *recordingTracker
		platform *recordingPlatform
		probes   *recordingProbes
		deps     Dependencies
		registry *Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		cluster = newFakeCluster()
		c = cluster.client()
		bus = events.NewBus()
		var unsubscribe func()
		log, unsubscribe = recordEvents(bus)
		DeferCleanup(unsubscribe)

		tracker = &recordingTracker{}
		platform = &recordingPlatform{}
		probes = &recordingProbes{}
		deps = newTestDependencies(c, bus)
		deps.Tracker = tracker
		deps.Platform = platform
		deps.Probes = probes
		registry = NewRegistry(deps)
	})

	deploymentsIn := func(ns string) []string {
		list := &appsv1.DeploymentList{}
		Expect(c.List(ctx, list, client.InNamespace(ns))).To(Succeed())
		names := make([]string, 0, len(list.Items))
		for _, d := range list.Items {
			names = append(names, d.Name)
		}
		return names
	}

	Describe("Scenario: starting a workspace with two machines in one pod", func() {
		It("publishes STARTING then RUNNING per machine and creates one deployment", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Identity().InfrastructureNamespace).To(Equal("ws-1"))

			Expect(rt.Start(ctx, nil)).To(Succeed())

			By("checking the per-machine event order")
			Expect(log.statuses("app/web")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineRunning,
			}))
			Expect(log.statuses("app/db")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineRunning,
			}))

			By("checking exactly one deployment named app exists")
			Expect(cluster.deployments()).To(Equal([]string{"app"}))
			Expect(deploymentsIn("ws-1")).To(ConsistOf("app"))

			By("checking the recorded state")
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeRunning))
			machines, err := rt.Machines(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(machines).To(HaveLen(2))
			Expect(machines["app/web"].Status).To(Equal(workspacev1alpha1.MachineRunning))
			Expect(machines["app/web"].DeploymentName).To(Equal("app"))
			Expect(machines["app/web"].Servers["http"].Status).To(Equal(workspacev1alpha1.ServerUnknown))

			Expect(tracker.isTracked("ws-1")).To(BeTrue())
			Expect(probes.IsScheduled("ws-1")).To(BeTrue())
			Expect(registry.RunningWorkspaces(ctx)).To(ConsistOf("ws-1"))
		})
	})

	Describe("Scenario: the state machine rejects a second start", func() {
		It("fails to prepare or start a workspace that is already active", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			_, err = registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(infra.KindOf(err)).To(Equal(infra.KindState))

			err = rt.Start(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("already started")))
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeRunning))
		})
	})

	Describe("Scenario: a pod fails to start", func() {
		It("publishes FAILED once, cleans up and forgets the runtime", func() {
			cluster.setPodPhase(corev1.PodFailed, "Evicted")
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			err = rt.Start(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("Reason: Evicted")))
			Expect(infra.IsInterrupted(err)).To(BeFalse())

			Expect(log.statuses("app/web")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineFailed,
			}))
			Expect(log.statuses("app/db")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineFailed,
			}))

			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
			Expect(tracker.isTracked("ws-1")).To(BeFalse())
			Expect(platform.cleaned).To(ContainElement("ws-1"))

			By("allowing a new start after the failure")
			cluster.setPodPhase(corev1.PodRunning, "")
			rt, err = registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())
		})
	})

	Describe("Scenario: stopping a workspace while it starts", func() {
		It("interrupts the start and tears everything down", func() {
			cluster.setPodPhase(corev1.PodPending, "")
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			startErr := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				startErr <- rt.Start(ctx, nil)
			}()

			Eventually(func() []workspacev1alpha1.MachineStatus {
				return log.statuses("app/web")
			}, timeout, interval).Should(ContainElement(workspacev1alpha1.MachineStarting))
			Expect(rt.IsStarting()).To(BeTrue())
			Expect(registry.IsStarting("ws-1")).To(BeTrue())

			Expect(rt.Stop(ctx, nil)).To(Succeed())

			var err2 error
			Eventually(startErr, timeout).Should(Receive(&err2))
			Expect(infra.IsInterrupted(err2)).To(BeTrue())

			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
			Expect(log.stoppedCount()).To(Equal(1))
			Expect(log.statuses("app/web")).To(ContainElement(workspacev1alpha1.MachineStopped))
			Expect(log.statuses("app/web")).NotTo(ContainElement(workspacev1alpha1.MachineFailed))
		})
	})

	Describe("Scenario: a stop outlasts the wait for the start to unwind", func() {
		It("keeps the workspace busy until the interrupted start has cleaned up", func() {
			entered := make(chan struct{})
			unblock := make(chan struct{})
			var calls atomic.Int32
			deps.Provisioners = []Provisioner{provisionerFunc(
				func(ctx context.Context, _ *Environment, _ workspacev1alpha1.RuntimeIdentity) error {
					if calls.Add(1) > 1 {
						return nil
					}
					close(entered)
					<-unblock
					return ctx.Err()
				})}
			deps.Config.StopWait = 200 * time.Millisecond
			registry = NewRegistry(deps)

			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			startErr := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				startErr <- rt.Start(ctx, nil)
			}()
			Eventually(entered, timeout).Should(BeClosed())

			Expect(rt.Stop(ctx, nil)).To(Succeed())
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))

			By("refusing a new start while the old one is still running")
			Expect(registry.InFlight("ws-1")).To(BeTrue())
			_, err = registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(infra.KindOf(err)).To(Equal(infra.KindState))

			close(unblock)
			var err2 error
			Eventually(startErr, timeout).Should(Receive(&err2))
			Expect(infra.IsInterrupted(err2)).To(BeTrue())

			By("starting again once the old start has returned")
			var next *Runtime
			Eventually(func() error {
				next, err = registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
				return err
			}, timeout, interval).Should(Succeed())
			Expect(next.Start(ctx, nil)).To(Succeed())
			Consistently(func() []string { return deploymentsIn("ws-1") }, 300*time.Millisecond, interval).
				Should(ConsistOf("app"))
		})
	})

	Describe("Scenario: the caller cancels a start", func() {
		It("reports the start as interrupted and still cleans up", func() {
			cluster.setPodPhase(corev1.PodPending, "")
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			callerCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			startErr := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				startErr <- rt.Start(callerCtx, nil)
			}()

			Eventually(func() []workspacev1alpha1.MachineStatus {
				return log.statuses("app/web")
			}, timeout, interval).Should(ContainElement(workspacev1alpha1.MachineStarting))
			cancel()

			var err2 error
			Eventually(startErr, timeout).Should(Receive(&err2))
			Expect(infra.IsInterrupted(err2)).To(BeTrue())
			Expect(rt.IsStarting()).To(BeFalse())
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
			Expect(platform.cleaned).To(ContainElement("ws-1"))
		})
	})

	Describe("Scenario: recording RUNNING fails after all machines started", func() {
		It("tears the started machines down and forgets the runtime", func() {
			cluster.failUpdates(func(obj client.Object) error {
				if rt, ok := obj.(*workspacev1alpha1.WorkspaceRuntime); ok && rt.Status.Phase == workspacev1alpha1.RuntimeRunning {
					return errors.New("etcd unavailable")
				}
				return nil
			})
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			err = rt.Start(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("etcd unavailable")))
			Expect(infra.IsInterrupted(err)).To(BeFalse())

			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
			Expect(probes.IsScheduled("ws-1")).To(BeFalse())
			Expect(platform.cleaned).To(ContainElement("ws-1"))
			Expect(tracker.isTracked("ws-1")).To(BeFalse())
		})
	})

	Describe("Scenario: an unrecoverable event arrives during start", func() {
		It("fails the start with the event details", func() {
			cluster.setPodPhase(corev1.PodPending, "")
			deps.Config.UnrecoverableEvents = []string{"FailedMount", "Failed to pull image"}
			registry = NewRegistry(deps)

			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			startErr := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				startErr <- rt.Start(ctx, nil)
			}()

			Eventually(func() []workspacev1alpha1.MachineStatus {
				return log.statuses("app/db")
			}, timeout, interval).Should(ContainElement(workspacev1alpha1.MachineStarting))

			Expect(c.Create(ctx, &corev1.Event{
				ObjectMeta: metav1.ObjectMeta{Name: "app.pull", Namespace: "ws-1"},
				InvolvedObject: corev1.ObjectReference{
					Kind: "Pod", Name: "app-7d4b9c6f5-q8m2x", FieldPath: "spec.containers{web}",
				},
				Reason:        "Failed",
				Message:       "Failed to pull image \"quay.io/workspaced/web:latest\"",
				LastTimestamp: metav1.NewTime(time.Now().Add(time.Second)),
			})).To(Succeed())

			var err2 error
			Eventually(startErr, timeout).Should(Receive(&err2))
			Expect(err2).To(MatchError(ContainSubstring("Unrecoverable event occurred: 'Failed'")))
			Expect(err2).To(MatchError(ContainSubstring("app-7d4b9c6f5-q8m2x")))
			Expect(infra.IsInterrupted(err2)).To(BeFalse())

			Expect(log.logEvents()).To(ContainElement(HaveField("MachineName", "app/web")))
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
		})
	})

	Describe("Scenario: stopping a running workspace", func() {
		It("removes the record, stops tracking and cancels probes", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			Expect(rt.Stop(ctx, nil)).To(Succeed())

			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(tracker.isTracked("ws-1")).To(BeFalse())
			Expect(probes.IsScheduled("ws-1")).To(BeFalse())
			Expect(deploymentsIn("ws-1")).To(BeEmpty())
			Expect(log.statuses("app/db")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineRunning, workspacev1alpha1.MachineStopped,
			}))

			By("rejecting a second stop")
			err = rt.Stop(ctx, nil)
			Expect(infra.KindOf(err)).To(Equal(infra.KindState))
		})
	})

	Describe("IsConsistent", func() {
		It("reports whether the recorded pods still exist", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			Expect(rt.IsConsistent(ctx)).To(BeTrue())

			By("removing the only pod backing both machines")
			Expect(c.Delete(ctx, &appsv1.Deployment{
				ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ws-1"},
			})).To(Succeed())

			Expect(rt.IsConsistent(ctx)).To(BeFalse())
		})

		It("is consistent for a runtime without machines", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-2"), &Environment{})
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			Expect(rt.IsConsistent(ctx)).To(BeTrue())
		})
	})

	Describe("HandleProbeResult", func() {
		It("publishes a server event only when the status changes", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			report := probes.reporter("ws-1")
			Expect(report).NotTo(BeNil())
			report(ProbeResult{MachineName: "app/web", ServerName: "http", Status: ProbePassed})
			report(ProbeResult{MachineName: "app/web", ServerName: "http", Status: ProbePassed})
			Expect(log.serverEvents()).To(HaveLen(1))
			Expect(log.serverEvents()[0].Status).To(Equal(workspacev1alpha1.ServerRunning))

			Expect(rt.HandleProbeResult(ctx, ProbeResult{
				MachineName: "app/web", ServerName: "http", Status: ProbeFailed,
			})).To(Succeed())
			Expect(log.serverEvents()).To(HaveLen(2))
			Expect(log.serverEvents()[1].Status).To(Equal(workspacev1alpha1.ServerStopped))
		})
	})

	Describe("Scenario: provisioning and platform resources", func() {
		It("merges injected pods and redirects platform objects", func() {
			env := twoMachineEnvironment()
			env.ConfigMaps = []*corev1.ConfigMap{
				{ObjectMeta: metav1.ObjectMeta{Name: "settings"}},
				{ObjectMeta: metav1.ObjectMeta{
					Name:        "routes",
					Annotations: map[string]string{namespace.PlatformNamespaceAnnotation: "true"},
				}},
			}
			env.Ingresses = []*networkingv1.Ingress{
				{ObjectMeta: metav1.ObjectMeta{Name: "web"}},
				{ObjectMeta: metav1.ObjectMeta{
					Name:        "gateway",
					Annotations: map[string]string{namespace.PlatformNamespaceAnnotation: "true"},
				}},
			}
			env.Secrets = []*corev1.Secret{{ObjectMeta: metav1.ObjectMeta{Name: "credentials"}}}
			env.Services = []*corev1.Service{{ObjectMeta: metav1.ObjectMeta{Name: "web"}}}

			deps.Provisioners = []Provisioner{provisionerFunc(
				func(_ context.Context, env *Environment, _ workspacev1alpha1.RuntimeIdentity) error {
					tooling := &corev1.Pod{Spec: corev1.PodSpec{Containers: []corev1.Container{container("sidecar")}}}
					env.InjectablePods = map[string]map[string]*corev1.Pod{
						"app/web": {"tooling": tooling},
						"app/db":  {"tooling": tooling},
					}
					return nil
				})}
			registry = NewRegistry(deps)

			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), env)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			deployment := &appsv1.Deployment{}
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "app"}, deployment)).To(Succeed())
			Expect(deployment.Spec.Template.Spec.Containers).To(HaveLen(3))
			Expect(log.statuses("app/sidecar")).To(Equal([]workspacev1alpha1.MachineStatus{
				workspacev1alpha1.MachineStarting, workspacev1alpha1.MachineRunning,
			}))

			Expect(platform.configMaps).To(ConsistOf("routes"))
			Expect(platform.ingresses).To(ConsistOf("gateway"))
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "settings"}, &corev1.ConfigMap{})).To(Succeed())
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "routes"}, &corev1.ConfigMap{})).NotTo(Succeed())
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "web"}, &networkingv1.Ingress{})).To(Succeed())
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "credentials"}, &corev1.Secret{})).To(Succeed())
		})

		It("fails the start when a provisioner fails", func() {
			deps.Provisioners = []Provisioner{provisionerFunc(
				func(context.Context, *Environment, workspacev1alpha1.RuntimeIdentity) error {
					return errors.New("volume strategy unavailable")
				})}
			registry = NewRegistry(deps)

			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())

			err = rt.Start(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("volume strategy unavailable")))
			Expect(infra.IsInternal(err)).To(BeTrue())
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
		})
	})

	Describe("Scenario: waiting for workspace volumes", func() {
		var env *Environment

		BeforeEach(func() {
			deps.Config.WaitForVolumes = true
			registry = NewRegistry(deps)
			env = twoMachineEnvironment()
			env.PVCs = []*corev1.PersistentVolumeClaim{{ObjectMeta: metav1.ObjectMeta{Name: "projects"}}}
		})

		It("starts machines once the claims are bound and keeps them after stop", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), env)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			Expect(rt.Stop(ctx, nil)).To(Succeed())
			claim := &corev1.PersistentVolumeClaim{}
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "ws-1", Name: "projects"}, claim)).To(Succeed())
			Expect(claim.Status.Phase).To(Equal(corev1.ClaimBound))
		})

		It("fails the start before deploying when a claim stays pending", func() {
			cluster.bindClaims = false
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), env)
			Expect(err).NotTo(HaveOccurred())

			err = rt.Start(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring(`persistent volume claim "projects" to be bound`)))
			Expect(errors.Is(err, namespace.ErrWaitTimeout)).To(BeTrue())
			Expect(cluster.deployments()).To(BeEmpty())
			Expect(rt.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
		})
	})

	Describe("Scenario: recovering a runtime after a restart", func() {
		It("reattaches through the store and can stop the runtime", func() {
			rt, err := registry.Prepare(ctx, testIdentity("ws-1"), twoMachineEnvironment())
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Start(ctx, nil)).To(Succeed())

			restarted := NewRegistry(newTestDependencies(c, bus))
			recovered, err := restarted.Get(ctx, "ws-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(recovered).NotTo(BeNil())
			Expect(recovered.Identity().InfrastructureNamespace).To(Equal("ws-1"))
			Expect(recovered.IsConsistent(ctx)).To(BeTrue())

			err = recovered.Start(ctx, nil)
			Expect(infra.KindOf(err)).To(Equal(infra.KindState))

			Expect(recovered.StopAbnormally(ctx)).To(Succeed())
			Expect(recovered.Status(ctx)).To(Equal(workspacev1alpha1.RuntimeStopped))
			Expect(deploymentsIn("ws-1")).To(BeEmpty())

			missing, err := restarted.Get(ctx, "ws-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(missing).To(BeNil())
		})
	})
})
