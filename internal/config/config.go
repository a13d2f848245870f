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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mikelane/workspaced/internal/namespace"
	"github.com/mikelane/workspaced/internal/workspace"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Config is the root of the configuration file.
type Config struct {
	// Namespace is the workspace namespace template. It may contain the
	// <workspaceid> and <userid> placeholders. Without them all workspaces
	// share the named namespace.
	Namespace string `json:"namespace"`

	// PlatformNamespace holds runtime state and platform-annotated objects.
	PlatformNamespace string `json:"platformNamespace"`

	// ServiceAccountName is prepared in every per-workspace namespace when set.
	ServiceAccountName string `json:"serviceAccountName,omitempty"`

	// ClusterRoles are bound to the workspace service account.
	ClusterRoles []string `json:"clusterRoles,omitempty"`

	CreateNamespaces bool `json:"createNamespaces"`
	LabelNamespaces  bool `json:"labelNamespaces"`

	Hardening Hardening `json:"hardening"`
	Timeouts  Timeouts  `json:"timeouts"`

	// ConsistencyCheckInterval is the period of the consistency sweep.
	ConsistencyCheckInterval metav1.Duration `json:"consistencyCheckInterval"`

	// UnrecoverableEvents fail a start when a pod event reason equals an entry
	// or its message starts with one.
	UnrecoverableEvents []string `json:"unrecoverableEvents,omitempty"`

	// LogTailLines is the number of container log lines attached to start failures.
	LogTailLines int64 `json:"logTailLines"`

	// WaitForVolumes delays machine start until workspace claims are bound.
	WaitForVolumes bool `json:"waitForVolumes"`
}

// Hardening configures isolation of namespaces created for workspaces.
type Hardening struct {
	NetworkPolicies   bool                `json:"networkPolicies"`
	Quota             corev1.ResourceList `json:"quota,omitempty"`
	IngressNamespaces []string            `json:"ingressNamespaces,omitempty"`
}

// Timeouts bounds the waits of a workspace start and stop.
type Timeouts struct {
	PodCreation           metav1.Duration `json:"podCreation"`
	PodRemoval            metav1.Duration `json:"podRemoval"`
	DefaultServiceAccount metav1.Duration `json:"defaultServiceAccount"`
	Ingress               metav1.Duration `json:"ingress"`
	WorkspaceStart        metav1.Duration `json:"workspaceStart"`
	StopWait              metav1.Duration `json:"stopWait"`
	PVCBound              metav1.Duration `json:"pvcBound"`
}

// Default returns the configuration used for missing keys.
func Default() *Config {
	return &Config{
		Namespace:         "<workspaceid>",
		PlatformNamespace: "workspaced-system",
		CreateNamespaces:  true,
		LabelNamespaces:   true,
		Timeouts: Timeouts{
			PodCreation:           metav1.Duration{Duration: time.Minute},
			PodRemoval:            metav1.Duration{Duration: 5 * time.Minute},
			DefaultServiceAccount: metav1.Duration{Duration: 3 * time.Second},
			Ingress:               metav1.Duration{Duration: 5 * time.Minute},
			WorkspaceStart:        metav1.Duration{Duration: 8 * time.Minute},
			StopWait:              metav1.Duration{Duration: 30 * time.Second},
			PVCBound:              metav1.Duration{Duration: 10 * time.Minute},
		},
		ConsistencyCheckInterval: metav1.Duration{Duration: time.Minute},
		UnrecoverableEvents: []string{
			"FailedMount",
			"FailedScheduling",
			"MountVolume.SetUp failed",
			"Failed to pull image",
			"FailedCreate",
			"ReplicaSetCreateError",
		},
		LogTailLines: 20,
	}
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid value of c.
func (c *Config) Validate() error {
	var err error
	if c.Namespace == "" {
		err = multierr.Append(err, fmt.Errorf("namespace must not be empty"))
	}
	if c.PlatformNamespace == "" {
		err = multierr.Append(err, fmt.Errorf("platformNamespace must not be empty"))
	} else if verr := namespace.ValidateNamespaceName(c.PlatformNamespace); verr != nil {
		err = multierr.Append(err, fmt.Errorf("platformNamespace: %w", verr))
	}
	if c.LogTailLines < 0 {
		err = multierr.Append(err, fmt.Errorf("logTailLines must not be negative, got %d", c.LogTailLines))
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"timeouts.podCreation", c.Timeouts.PodCreation.Duration},
		{"timeouts.podRemoval", c.Timeouts.PodRemoval.Duration},
		{"timeouts.defaultServiceAccount", c.Timeouts.DefaultServiceAccount.Duration},
		{"timeouts.ingress", c.Timeouts.Ingress.Duration},
		{"timeouts.workspaceStart", c.Timeouts.WorkspaceStart.Duration},
		{"timeouts.stopWait", c.Timeouts.StopWait.Duration},
		{"timeouts.pvcBound", c.Timeouts.PVCBound.Duration},
		{"consistencyCheckInterval", c.ConsistencyCheckInterval.Duration},
	}
	for _, d := range durations {
		if d.value <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %s", d.key, d.value))
		}
	}
	return err
}

// FactoryConfig returns the namespace factory settings.
func (c *Config) FactoryConfig() namespace.FactoryConfig {
	cfg := namespace.FactoryConfig{
		NamespaceTemplate:  c.Namespace,
		ServiceAccountName: c.ServiceAccountName,
		ClusterRoles:       c.ClusterRoles,
		CreateNamespaces:   c.CreateNamespaces,
		LabelNamespaces:    c.LabelNamespaces,
		Timeouts: namespace.Timeouts{
			PodCreation:           c.Timeouts.PodCreation.Duration,
			PodRemoval:            c.Timeouts.PodRemoval.Duration,
			PodRunning:            c.Timeouts.WorkspaceStart.Duration,
			DefaultServiceAccount: c.Timeouts.DefaultServiceAccount.Duration,
			Ingress:               c.Timeouts.Ingress.Duration,
			PVCBound:              c.Timeouts.PVCBound.Duration,
		},
		LogTailLines: c.LogTailLines,
	}
	if c.Hardening.NetworkPolicies || len(c.Hardening.Quota) > 0 {
		cfg.Hardening = &namespace.Hardening{
			Quota:             c.Hardening.Quota,
			NetworkPolicies:   c.Hardening.NetworkPolicies,
			IngressNamespaces: c.Hardening.IngressNamespaces,
		}
	}
	return cfg
}

// RuntimeConfig returns the runtime orchestration settings.
func (c *Config) RuntimeConfig() workspace.Config {
	return workspace.Config{
		StartTimeout:        c.Timeouts.WorkspaceStart.Duration,
		StopWait:            c.Timeouts.StopWait.Duration,
		UnrecoverableEvents: c.UnrecoverableEvents,
		WaitForVolumes:      c.WaitForVolumes,
	}
}
