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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"

	workspacev1alpha1 "github.com/mikelane/workspaced/api/v1alpha1"
	"github.com/mikelane/workspaced/internal/config"
	"github.com/mikelane/workspaced/internal/consistency"
	"github.com/mikelane/workspaced/internal/controller"
	"github.com/mikelane/workspaced/internal/events"
	"github.com/mikelane/workspaced/internal/namespace"
	"github.com/mikelane/workspaced/internal/platform"
	"github.com/mikelane/workspaced/internal/store"
	"github.com/mikelane/workspaced/internal/workspace"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(workspacev1alpha1.AddToScheme(scheme))
}

func main() {
	var configPath string
	var metricsAddr string
	var probeAddr string
	var enableLeaderElection bool
	var secureMetrics bool
	var enableHTTP2 bool
	flag.StringVar(&configPath, "config", "", "Path to the workspaced configuration file. Defaults apply when empty.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "0",
		"The address the metrics endpoint binds to. Use :8443 for HTTPS or :8080 for HTTP, or leave as 0 to disable.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for the workspace runtime manager. "+
			"Enabling this will ensure there is only one active manager.")
	flag.BoolVar(&secureMetrics, "metrics-secure", true,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	flag.BoolVar(&enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics server")
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load configuration", "path", configPath)
		os.Exit(1)
	}

	var tlsOpts []func(*tls.Config)
	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, func(c *tls.Config) {
			c.NextProtos = []string{"http/1.1"}
		})
	}

	restConfig := ctrl.GetConfigOrDie()
	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress:   metricsAddr,
			SecureServing: secureMetrics,
			TLSOpts:       tlsOpts,
		},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "workspaced.workspace.workspaced.io",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	// Runtime state transitions rely on read-your-writes, so the store and
	// the namespace factory talk to the API server directly.
	direct, err := client.NewWithWatch(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "unable to create API client")
		os.Exit(1)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to create clientset")
		os.Exit(1)
	}

	bus := events.NewBus()
	runtimeStore := store.New(direct, cfg.PlatformNamespace)

	var registry *workspace.Registry
	checker := consistency.NewChecker(consistency.ProviderFunc(
		func(ctx context.Context, workspaceID string) (workspace.Handle, error) {
			return registry.Lookup(ctx, workspaceID)
		}), bus, cfg.ConsistencyCheckInterval.Duration).WithLogger(ctrl.Log.WithName("consistency"))
	registry = workspace.NewRegistry(workspace.Dependencies{
		Store:      runtimeStore,
		Bus:        bus,
		Namespaces: namespace.NewFactory(direct, cfg.FactoryConfig(), namespace.NewLogReader(clientset), nil),
		Platform:   platform.NewManager(direct, cfg.PlatformNamespace),
		Tracker:    checker,
		Config:     cfg.RuntimeConfig(),
	})

	recorder := mgr.GetEventRecorderFor("workspaced")
	events.MirrorToRecorder(bus, recorder, func(workspaceID string) runtime.Object {
		return runtimeStore.Object(workspaceID)
	})

	if err := (&controller.WorkspaceRuntimeReconciler{
		Client:    mgr.GetClient(),
		Scheme:    mgr.GetScheme(),
		Namespace: cfg.PlatformNamespace,
		Runtimes:  registry,
		Tracker:   checker,
		Recorder:  recorder,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "WorkspaceRuntime")
		os.Exit(1)
	}
	if err := mgr.Add(checker); err != nil {
		setupLog.Error(err, "unable to add consistency checker")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager",
		"namespaceTemplate", cfg.Namespace,
		"platformNamespace", cfg.PlatformNamespace,
		"consistencyCheckInterval", cfg.ConsistencyCheckInterval.Duration)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
