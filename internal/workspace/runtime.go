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
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/infra"
	"github.com/mikelane/workspaced/internal/metrics"
	"github.com/mikelane/workspaced/internal/namespace"
	"github.com/mikelane/workspaced/internal/store"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Config bounds the start and stop sequences of runtimes.
type Config struct {
	// StartTimeout bounds the wait for all machines of a runtime to run.
	StartTimeout time.Duration

	// StopWait bounds how long a stop waits for an interrupted start to unwind.
	StopWait time.Duration

	// UnrecoverableEvents fail a start when a pod event reason equals an
	// entry or its message starts with one.
	UnrecoverableEvents []string

	// WaitForVolumes holds machine deployment until every claim of the
	// environment is bound. Claims of WaitForFirstConsumer storage classes
	// never bind before a pod uses them.
	WaitForVolumes bool
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		StartTimeout: 8 * time.Minute,
		StopWait:     30 * time.Second,
	}
}

// Dependencies are the collaborators shared by the runtimes of a Registry.
// Probes, Platform and Tracker may be nil.
type Dependencies struct {
	Store        *store.Store
	Bus          *events.Bus
	Namespaces   *namespace.Factory
	Provisioners []Provisioner
	Probes       ProbeScheduler
	Platform     PlatformResources
	Tracker      Tracker
	Config       Config
}

func (d *Dependencies) setDefaults() {
	if d.Probes == nil {
		d.Probes = noopProbes{}
	}
	if d.Platform == nil {
		d.Platform = noopPlatform{}
	}
	if d.Tracker == nil {
		d.Tracker = noopTracker{}
	}
	if d.Config.StartTimeout == 0 {
		d.Config.StartTimeout = DefaultConfig().StartTimeout
	}
	if d.Config.StopWait == 0 {
		d.Config.StopWait = DefaultConfig().StopWait
	}
}

// Runtime is the runtime of one workspace in its namespace.
type Runtime struct {
	deps     *Dependencies
	identity workspacev1alpha1.RuntimeIdentity
	ns       *namespace.Namespace
	// env is nil for runtimes recovered after a restart
	env     *Environment
	release func()
	// inFlight counts starts and stops running in this process
	inFlight atomic.Int32

	mu    sync.Mutex
	start *StartSynchronizer
	// started is closed when the latest start returns
	started chan struct{}
	// stopped is set once a stop has removed the runtime record
	stopped bool
}

// Identity returns the identity of the runtime.
func (r *Runtime) Identity() workspacev1alpha1.RuntimeIdentity {
	return r.identity
}

// Namespace returns the namespace the runtime lives in.
func (r *Runtime) Namespace() *namespace.Namespace {
	return r.ns
}

// Status returns the recorded phase of the runtime.
func (r *Runtime) Status(ctx context.Context) (workspacev1alpha1.RuntimePhase, error) {
	return r.deps.Store.GetStatus(ctx, r.identity.WorkspaceID)
}

// Machines returns the recorded machines of the runtime.
func (r *Runtime) Machines(ctx context.Context) (map[string]workspacev1alpha1.MachineRecord, error) {
	return r.deps.Store.GetMachines(ctx, r.identity.WorkspaceID)
}

// IsStarting reports whether a start of this runtime is in flight in this process.
func (r *Runtime) IsStarting() bool {
	gate := r.startSynchronizer()
	return gate != nil && !gate.IsCompleted()
}

// InFlight reports whether this process is starting or stopping the runtime.
func (r *Runtime) InFlight() bool {
	return r.inFlight.Load() > 0
}

func (r *Runtime) startSynchronizer() *StartSynchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start
}

func (r *Runtime) logger(ctx context.Context) context.Context {
	logger := logf.FromContext(ctx).WithValues("workspace", r.identity.WorkspaceID, "namespace", r.ns.Name())
	return logf.IntoContext(ctx, logger)
}

// Start brings the runtime from STOPPED to RUNNING. A stop of the same
// workspace interrupts it. On failure the namespace is cleaned up and the
// runtime record is removed, unless a stop has taken the runtime over.
// The Kubernetes runtime takes no start options.
func (r *Runtime) Start(ctx context.Context, options map[string]string) error {
	ctx = r.logger(ctx)
	logger := logf.FromContext(ctx)
	if r.env == nil {
		return infra.New(infra.KindState, "runtime of workspace %q was recovered and has no environment to start", r.identity.WorkspaceID)
	}
	logger.V(1).Info("Starting runtime", "options", options)
	began := time.Now()
	r.inFlight.Add(1)
	defer r.leave()

	gate, returned, err := r.beginStart()
	if err != nil {
		return err
	}
	defer returned()

	if err := r.markStarting(ctx); err != nil {
		gate.CompleteExceptionally(err)
		return err
	}
	gate.Start()
	// a stop between markStarting and the subscription is not seen on the bus
	if r.stopTookOver(ctx) {
		gate.CompleteExceptionally(infra.Interrupted(nil))
	}

	if err := r.runStart(ctx, gate); err != nil {
		if !infra.IsInterrupted(err) && r.stopTookOver(ctx) {
			err = infra.Interrupted(err)
		}
		gate.CompleteExceptionally(err)
		r.forgetIfStarting(ctx)
		result := metrics.StartFailed
		if infra.IsInterrupted(err) {
			result = metrics.StartInterrupted
		}
		metrics.RecordStart(result, time.Since(began))
		logger.Error(err, "Failed to start runtime")
		return err
	}

	r.deps.Tracker.Track(r.identity.WorkspaceID)
	metrics.RecordStart(metrics.StartSucceeded, time.Since(began))
	logger.Info("Runtime started", "duration", time.Since(began).Round(time.Millisecond))
	return nil
}

// beginStart installs the synchronizer of a new start. The returned func
// marks the start as returned. It fails while an earlier start of the
// runtime has not returned.
func (r *Runtime) beginStart() (*StartSynchronizer, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started != nil {
		select {
		case <-r.started:
		default:
			return nil, nil, infra.New(infra.KindState, "start of workspace %q is already in progress", r.identity.WorkspaceID)
		}
	}
	gate := NewStartSynchronizer(r.deps.Bus, r.identity.WorkspaceID)
	started := make(chan struct{})
	r.start, r.started = gate, started
	return gate, func() { close(started) }, nil
}

// awaitStartReturned blocks until the latest start has returned or timeout
// elapses. It reports whether no start is running.
func (r *Runtime) awaitStartReturned(timeout time.Duration) bool {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started == nil {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-started:
		return true
	case <-timer.C:
		return false
	}
}

// leave ends a start or stop. The last one to leave a stopped runtime
// releases it from the registry.
func (r *Runtime) leave() {
	if r.inFlight.Add(-1) > 0 {
		return
	}
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		r.release()
	}
}

func (r *Runtime) runStart(ctx context.Context, gate *StartSynchronizer) error {
	startCtx, err := gate.SetStartContext(ctx)
	if err != nil {
		return err
	}
	defer gate.release()

	if err := r.internalStart(startCtx); err != nil {
		return r.abortStart(startCtx, err)
	}
	if err := gate.CheckFailure(); err != nil {
		return r.abortStart(startCtx, err)
	}
	if err := r.markRunning(ctx); err != nil {
		return r.abortStart(startCtx, err)
	}
	return gate.Complete()
}

// abortStart removes everything a failed start created and classifies its failure.
func (r *Runtime) abortStart(ctx context.Context, err error) error {
	logger := logf.FromContext(ctx)
	workspaceID := r.identity.WorkspaceID
	logger.Info("Start failed, cleaning up", "cause", err.Error())

	r.deps.Probes.Cancel(workspaceID)
	cleanupCtx := context.WithoutCancel(ctx)
	if cerr := r.ns.CleanUp(cleanupCtx); cerr != nil {
		logger.Error(cerr, "Failed to clean up namespace after failed start")
	}
	if cerr := r.deps.Platform.CleanUp(cleanupCtx, workspaceID); cerr != nil {
		logger.Error(cerr, "Failed to clean up platform resources after failed start")
	}
	return classifyStartError(ctx, err)
}

// stopTookOver reports whether a stop has moved the runtime out of STARTING.
func (r *Runtime) stopTookOver(ctx context.Context) bool {
	phase, err := r.Status(context.WithoutCancel(ctx))
	return err == nil && phase != workspacev1alpha1.RuntimeStarting
}

func (r *Runtime) forgetIfStarting(ctx context.Context) {
	removed, err := r.deps.Store.RemoveIf(context.WithoutCancel(ctx), r.identity.WorkspaceID,
		func(p workspacev1alpha1.RuntimePhase) bool { return p == workspacev1alpha1.RuntimeStarting })
	if err != nil {
		logf.FromContext(ctx).Error(err, "Failed to remove record of failed runtime")
		return
	}
	if removed {
		r.release()
	}
}

func (r *Runtime) internalStart(ctx context.Context) error {
	logger := logf.FromContext(ctx)
	env := r.env
	defer r.ns.Deployments().StopWatch()

	// leftovers of an earlier failed attempt
	if err := r.ns.CleanUp(ctx); err != nil {
		return err
	}

	for _, p := range r.deps.Provisioners {
		if err := p.Provision(ctx, env, r.identity); err != nil {
			return err
		}
	}
	if err := env.mergeInjectablePods(); err != nil {
		return err
	}

	if err := r.createConfiguration(ctx); err != nil {
		return err
	}
	if err := r.ns.PVCs().CreateIfNotExist(ctx, env.PVCs); err != nil {
		return err
	}
	if r.deps.Config.WaitForVolumes {
		for _, pvc := range env.PVCs {
			if _, err := r.ns.PVCs().WaitBound(ctx, pvc.Name); err != nil {
				return err
			}
		}
	}
	for _, svc := range env.Services {
		if _, err := r.ns.Services().Create(ctx, svc.DeepCopy()); err != nil {
			return err
		}
	}
	if err := r.createIngresses(ctx); err != nil {
		return err
	}

	failure := make(chan error, 1)
	if err := r.ns.Deployments().WatchEvents(ctx, r.podEventHandler(failure)); err != nil {
		return err
	}

	machines, err := r.startMachines(ctx, failure)
	if err != nil {
		return err
	}

	logger.V(1).Info("All machines are running, scheduling probes", "machines", len(machines))
	probeCtx := context.WithoutCancel(ctx)
	return r.deps.Probes.Schedule(probeCtx, r.identity, machines, func(res ProbeResult) {
		if err := r.HandleProbeResult(probeCtx, res); err != nil {
			logger.Error(err, "Failed to record probe result", "machine", res.MachineName, "server", res.ServerName)
		}
	})
}

// classifyStartError converts a start failure into a classified error.
// Failures after ctx ended are interruptions.
func classifyStartError(ctx context.Context, err error) error {
	var classified interface{ Kind() infra.Kind }
	switch {
	case infra.IsInterrupted(err):
		return err
	case ctx.Err() != nil:
		return infra.Interrupted(err)
	case errors.As(err, &classified):
		return err
	default:
		return infra.WrapInternal(err, "failed to start runtime")
	}
}

func (r *Runtime) createConfiguration(ctx context.Context) error {
	for _, secret := range r.env.Secrets {
		if _, err := r.ns.Secrets().Create(ctx, secret.DeepCopy()); err != nil {
			return err
		}
	}

	var platform []*corev1.ConfigMap
	for _, cm := range r.env.ConfigMaps {
		if namespace.IsPlatformNamespaced(cm) {
			platform = append(platform, cm.DeepCopy())
			continue
		}
		if _, err := r.ns.ConfigMaps().Create(ctx, cm.DeepCopy()); err != nil {
			return err
		}
	}
	if len(platform) == 0 {
		return nil
	}
	return r.deps.Platform.CreateConfigMaps(ctx, r.identity, platform)
}

func (r *Runtime) createIngresses(ctx context.Context) error {
	var platform []*networkingv1.Ingress
	var created []string
	for _, ing := range r.env.Ingresses {
		if namespace.IsPlatformNamespaced(ing) {
			platform = append(platform, ing.DeepCopy())
			continue
		}
		if _, err := r.ns.Ingresses().Create(ctx, ing.DeepCopy()); err != nil {
			return err
		}
		created = append(created, ing.Name)
	}

	for _, name := range created {
		if _, err := r.ns.Ingresses().WaitLoadBalancer(ctx, name); err != nil {
			return err
		}
	}
	if len(platform) == 0 {
		return nil
	}
	return r.deps.Platform.CreateIngresses(ctx, r.identity, platform)
}

// podEventHandler publishes container events as machine logs and reports
// the first unrecoverable event to failure.
func (r *Runtime) podEventHandler(failure chan<- error) namespace.PodEventHandler {
	return func(ev namespace.PodEvent) {
		workload := ev.Workload
		if !r.env.hasWorkload(workload) {
			return
		}
		if ev.ContainerName != "" {
			events.Publish(r.deps.Bus, events.MachineLogEvent{
				Identity:    r.identity,
				MachineName: MachineName(workload, ev.ContainerName),
				Text:        ev.Message,
				Time:        ev.Time,
			})
		}
		if !r.isUnrecoverable(ev) {
			return
		}
		err := infra.New(infra.KindInfrastructure, "Unrecoverable event occurred: '%s', '%s', '%s'",
			ev.Reason, ev.Message, ev.PodName)
		select {
		case failure <- err:
		default:
		}
	}
}

func (r *Runtime) isUnrecoverable(ev namespace.PodEvent) bool {
	return slices.ContainsFunc(r.deps.Config.UnrecoverableEvents, func(entry string) bool {
		return ev.Reason == entry || strings.HasPrefix(ev.Message, entry)
	})
}

// startMachines deploys every workload concurrently and blocks until all
// machines run, one of them fails, or an unrecoverable event arrives.
func (r *Runtime) startMachines(ctx context.Context, failure <-chan error) (map[string]workspacev1alpha1.MachineRecord, error) {
	startCtx, cancel := context.WithTimeout(ctx, r.deps.Config.StartTimeout)
	defer cancel()

	deployments := r.ns.Deployments()
	g, gctx := errgroup.WithContext(startCtx)
	var failed sync.Once
	for _, name := range sortedKeys(r.env.Pods) {
		pod := r.env.Pods[name].DeepCopy()
		pod.Name = name
		g.Go(func() error {
			return r.startWorkload(gctx, name, &failed, func(ctx context.Context) (*corev1.Pod, error) {
				return deployments.Deploy(ctx, pod)
			})
		})
	}
	for _, name := range sortedKeys(r.env.Deployments) {
		deployment := r.env.Deployments[name].DeepCopy()
		deployment.Name = name
		g.Go(func() error {
			return r.startWorkload(gctx, name, &failed, func(ctx context.Context) (*corev1.Pod, error) {
				return deployments.DeployDeployment(ctx, deployment)
			})
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case err = <-failure:
		cancel()
		<-done
	}
	if err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, infra.Wrap(err, "waiting for environment %q of workspace %q reached timeout",
				r.identity.EnvironmentName, r.identity.WorkspaceID)
		}
		return nil, err
	}
	return r.deps.Store.GetMachines(ctx, r.identity.WorkspaceID)
}

// startWorkload deploys one workload and moves its machines from STARTING
// to RUNNING. The first workload to fail publishes FAILED for its machines.
func (r *Runtime) startWorkload(ctx context.Context, workload string, failed *sync.Once,
	deploy func(context.Context) (*corev1.Pod, error)) error {
	workspaceID := r.identity.WorkspaceID
	pod, err := deploy(ctx)
	if err != nil {
		return err
	}

	machines := make([]string, 0, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		machine := MachineName(workload, c.Name)
		record := r.env.machineRecord(machine, pod, workload, c.Name)
		if err := r.deps.Store.PutMachine(ctx, workspaceID, machine, record); err != nil {
			return err
		}
		machines = append(machines, machine)
		r.publishMachineStatus(machine, workspacev1alpha1.MachineStarting, "")
	}

	running := r.ns.Deployments().WaitRunningAsync(ctx, pod.Name)
	defer running.Cancel()
	if _, err := running.Get(ctx); err != nil {
		if ctx.Err() == nil {
			failed.Do(func() { r.markMachinesFailed(ctx, machines, err) })
		}
		return err
	}

	for _, machine := range machines {
		if err := r.deps.Store.UpdateMachineStatus(ctx, workspaceID, machine, workspacev1alpha1.MachineRunning); err != nil {
			return err
		}
		r.publishMachineStatus(machine, workspacev1alpha1.MachineRunning, "")
	}
	return nil
}

func (r *Runtime) markMachinesFailed(ctx context.Context, machines []string, cause error) {
	ctx = context.WithoutCancel(ctx)
	for _, machine := range machines {
		if err := r.deps.Store.UpdateMachineStatus(ctx, r.identity.WorkspaceID, machine, workspacev1alpha1.MachineFailed); err != nil {
			logf.FromContext(ctx).Error(err, "Failed to record machine failure", "machine", machine)
		}
		r.publishMachineStatus(machine, workspacev1alpha1.MachineFailed, cause.Error())
	}
}

func (r *Runtime) publishMachineStatus(machine string, status workspacev1alpha1.MachineStatus, errMsg string) {
	events.Publish(r.deps.Bus, events.MachineStatusEvent{
		Identity:    r.identity,
		MachineName: machine,
		Status:      status,
		Error:       errMsg,
	})
}

// Stop tears the runtime down and removes its record. A start in flight is
// interrupted first and given Config.StopWait to unwind. The Kubernetes
// runtime takes no stop options.
func (r *Runtime) Stop(ctx context.Context, options map[string]string) error {
	logf.FromContext(ctx).V(1).Info("Stopping runtime", "options", options)
	return r.stop(ctx, metrics.StopRequested, workspacev1alpha1.RuntimePhase.IsActive)
}

// StopAbnormally tears down a runtime that lost its cluster resources. It
// never honors stop options.
func (r *Runtime) StopAbnormally(ctx context.Context) error {
	return r.stop(ctx, metrics.StopAbnormal, workspacev1alpha1.RuntimePhase.IsActive)
}

// StopOrphaned tears down a runtime whose start or stop was abandoned by
// an earlier process.
func (r *Runtime) StopOrphaned(ctx context.Context) error {
	return r.stop(ctx, metrics.StopOrphaned, func(p workspacev1alpha1.RuntimePhase) bool {
		return p == workspacev1alpha1.RuntimeStarting || p == workspacev1alpha1.RuntimeStopping
	})
}

func (r *Runtime) stop(ctx context.Context, reason string, from func(workspacev1alpha1.RuntimePhase) bool) (err error) {
	ctx = r.logger(ctx)
	logger := logf.FromContext(ctx)
	r.inFlight.Add(1)
	defer r.leave()

	if err := r.markStopping(ctx, from); err != nil {
		return err
	}
	events.Publish(r.deps.Bus, events.RuntimeStoppingEvent{Identity: r.identity})

	if !r.awaitStartReturned(r.deps.Config.StopWait) {
		logger.Info("Start did not finish in time, stopping anyway", "wait", r.deps.Config.StopWait)
	}

	defer func() {
		if serr := r.markStopped(context.WithoutCancel(ctx)); serr != nil {
			err = multierr.Append(err, serr)
		}
		events.Publish(r.deps.Bus, events.RuntimeStoppedEvent{Identity: r.identity})
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		metrics.RecordStop(reason)
		if err != nil {
			logger.Error(err, "Runtime stopped with errors", "reason", reason)
			return
		}
		logger.Info("Runtime stopped", "reason", reason)
	}()
	return r.internalStop(ctx)
}

func (r *Runtime) internalStop(ctx context.Context) error {
	workspaceID := r.identity.WorkspaceID
	r.deps.Tracker.StopTracking(workspaceID)

	machines, err := r.deps.Store.GetMachines(ctx, workspaceID)
	if err != nil {
		logf.FromContext(ctx).Error(err, "Failed to read machines of stopping runtime")
	}

	err = r.ns.CleanUp(ctx)
	r.deps.Probes.Cancel(workspaceID)
	err = multierr.Append(err, r.deps.Platform.CleanUp(ctx, workspaceID))

	for _, machine := range sortedKeys(machines) {
		r.publishMachineStatus(machine, workspacev1alpha1.MachineStopped, "")
	}
	return err
}

func (r *Runtime) markStarting(ctx context.Context) error {
	ok, err := r.deps.Store.PutIfAbsent(ctx, r.identity, r.env.Commands)
	if err != nil {
		return err
	}
	if !ok {
		return infra.New(infra.KindState, "runtime of workspace %q is already started", r.identity.WorkspaceID)
	}
	return nil
}

func (r *Runtime) markRunning(ctx context.Context) error {
	ok, err := r.deps.Store.UpdateStatus(ctx, r.identity.WorkspaceID,
		func(p workspacev1alpha1.RuntimePhase) bool { return p == workspacev1alpha1.RuntimeStarting },
		workspacev1alpha1.RuntimeRunning)
	if err != nil {
		return err
	}
	if !ok {
		return infra.New(infra.KindState, "runtime of workspace %q is no longer starting", r.identity.WorkspaceID)
	}
	return nil
}

func (r *Runtime) markStopping(ctx context.Context, from func(workspacev1alpha1.RuntimePhase) bool) error {
	ok, err := r.deps.Store.UpdateStatus(ctx, r.identity.WorkspaceID, from, workspacev1alpha1.RuntimeStopping)
	if err != nil {
		return err
	}
	if !ok {
		return infra.New(infra.KindState, "runtime of workspace %q must be starting or running to be stopped", r.identity.WorkspaceID)
	}
	return nil
}

func (r *Runtime) markStopped(ctx context.Context) error {
	removed, err := r.deps.Store.RemoveIf(ctx, r.identity.WorkspaceID,
		func(p workspacev1alpha1.RuntimePhase) bool { return p == workspacev1alpha1.RuntimeStopping })
	if err != nil {
		return err
	}
	if !removed {
		return infra.New(infra.KindState, "runtime of workspace %q must be stopping to be marked stopped", r.identity.WorkspaceID)
	}
	return nil
}

// IsConsistent reports whether every pod recorded for the runtime's machines
// still exists, directly or through its Deployment. A runtime without
// machines is consistent.
func (r *Runtime) IsConsistent(ctx context.Context) (bool, error) {
	machines, err := r.deps.Store.GetMachines(ctx, r.identity.WorkspaceID)
	if err != nil {
		return false, err
	}

	deployments := r.ns.Deployments()
	checked := make(map[string]bool, len(machines))
	for _, name := range sortedKeys(machines) {
		machine := machines[name]
		if checked[machine.PodName] {
			continue
		}
		checked[machine.PodName] = true

		pod, err := deployments.Get(ctx, machine.PodName)
		if err != nil {
			return false, err
		}
		if pod != nil {
			continue
		}
		if machine.DeploymentName != "" {
			d, err := deployments.GetDeployment(ctx, machine.DeploymentName)
			if err != nil {
				return false, err
			}
			if d != nil {
				continue
			}
		}
		logf.FromContext(ctx).Info("Pod of machine is missing",
			"workspace", r.identity.WorkspaceID, "machine", name, "pod", machine.PodName)
		return false, nil
	}
	return true, nil
}

// ScheduleProbes schedules server probes of a running runtime unless they
// are already scheduled.
func (r *Runtime) ScheduleProbes(ctx context.Context) error {
	if r.deps.Probes.IsScheduled(r.identity.WorkspaceID) {
		return nil
	}
	machines, err := r.Machines(ctx)
	if err != nil {
		return err
	}
	probeCtx := context.WithoutCancel(ctx)
	return r.deps.Probes.Schedule(probeCtx, r.identity, machines, func(res ProbeResult) {
		if err := r.HandleProbeResult(probeCtx, res); err != nil {
			logf.FromContext(probeCtx).Error(err, "Failed to record probe result",
				"machine", res.MachineName, "server", res.ServerName)
		}
	})
}

// HandleProbeResult records a server probe result. A ServerStatusEvent is
// published only when the server status changed.
func (r *Runtime) HandleProbeResult(ctx context.Context, res ProbeResult) error {
	status := workspacev1alpha1.ServerStopped
	if res.Status == ProbePassed {
		status = workspacev1alpha1.ServerRunning
	}
	changed, err := r.deps.Store.UpdateServerStatus(ctx, r.identity.WorkspaceID, res.MachineName, res.ServerName, status)
	if err != nil || !changed {
		return err
	}
	events.Publish(r.deps.Bus, events.ServerStatusEvent{
		Identity:    r.identity,
		MachineName: res.MachineName,
		ServerName:  res.ServerName,
		Status:      status,
	})
	return nil
}
