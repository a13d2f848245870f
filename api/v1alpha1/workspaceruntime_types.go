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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RuntimePhase is the lifecycle state of a workspace runtime.
// There is no persisted Stopped phase: a stopped runtime has no WorkspaceRuntime object.
// +kubebuilder:validation:Enum=STARTING;RUNNING;STOPPING
type RuntimePhase string

const (
	RuntimeStarting RuntimePhase = "STARTING"
	RuntimeRunning  RuntimePhase = "RUNNING"
	RuntimeStopping RuntimePhase = "STOPPING"
	// RuntimeStopped is reported for absent records and is never stored.
	RuntimeStopped RuntimePhase = "STOPPED"
)

// MachineStatus is the status of a single workspace container.
type MachineStatus string

const (
	MachineStarting MachineStatus = "STARTING"
	MachineRunning  MachineStatus = "RUNNING"
	MachineFailed   MachineStatus = "FAILED"
	MachineStopped  MachineStatus = "STOPPED"
)

// ServerStatus is the probed status of a server exposed by a machine.
type ServerStatus string

const (
	ServerUnknown ServerStatus = "UNKNOWN"
	ServerRunning ServerStatus = "RUNNING"
	ServerStopped ServerStatus = "STOPPED"
)

// RuntimeIdentity correlates every resource and event that belongs to one workspace runtime.
type RuntimeIdentity struct {
	// WorkspaceID is the workspace identifier
	WorkspaceID string `json:"workspaceId"`

	// EnvironmentName is the name of the environment the runtime was started from
	// +optional
	EnvironmentName string `json:"environmentName,omitempty"`

	// OwnerID is the identifier of the user owning the workspace
	OwnerID string `json:"ownerId"`

	// InfrastructureNamespace is the namespace holding the workspace resources
	InfrastructureNamespace string `json:"infrastructureNamespace"`
}

// Command is a command the workspace exposes to its users.
type Command struct {
	// Name is the command name
	Name string `json:"name"`

	// CommandLine is the command to execute
	CommandLine string `json:"commandLine"`

	// Type is the command type (e.g., "exec")
	// +optional
	Type string `json:"type,omitempty"`

	// +optional
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ServerRecord tracks a server exposed by a machine.
type ServerRecord struct {
	// URL is the server URL (if exposed)
	// +optional
	URL string `json:"url,omitempty"`

	// Status is updated by liveness probes independently of the machine status
	// +kubebuilder:validation:Enum=UNKNOWN;RUNNING;STOPPED
	Status ServerStatus `json:"status"`

	// +optional
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MachineRecord tracks one container of a workspace runtime.
type MachineRecord struct {
	// PodName is the name of the pod running the container
	PodName string `json:"podName"`

	// DeploymentName is the name of the deployment wrapping the pod, if any
	// +optional
	DeploymentName string `json:"deploymentName,omitempty"`

	// ContainerName is the container name inside the pod
	ContainerName string `json:"containerName"`

	// +kubebuilder:validation:Enum=STARTING;RUNNING;FAILED;STOPPED
	Status MachineStatus `json:"status"`

	// Servers maps server names to their records
	// +optional
	Servers map[string]ServerRecord `json:"servers,omitempty"`

	// +optional
	Attributes map[string]string `json:"attributes,omitempty"`
}

// WorkspaceRuntimeSpec defines the identity and commands of an active runtime
type WorkspaceRuntimeSpec struct {
	// Identity is immutable once the runtime is marked as starting
	Identity RuntimeIdentity `json:"identity"`

	// Commands are the workspace commands captured at start
	// +optional
	Commands []Command `json:"commands,omitempty"`
}

// WorkspaceRuntimeStatus defines the observed lifecycle state of a runtime.
type WorkspaceRuntimeStatus struct {
	// Phase is the current phase of the runtime state machine
	Phase RuntimePhase `json:"phase"`

	// Machines maps machine names (pod/container) to their records
	// +optional
	Machines map[string]MachineRecord `json:"machines,omitempty"`

	// StartedAt is the time the runtime was marked as starting
	// +optional
	StartedAt *metav1.Time `json:"startedAt,omitempty"`

	// Reason explains the last phase transition
	// +optional
	Reason string `json:"reason,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:printcolumn:name="Workspace",type="string",JSONPath=".spec.identity.workspaceId",description="Workspace ID"
// +kubebuilder:printcolumn:name="Namespace",type="string",JSONPath=".spec.identity.infrastructureNamespace",description="Workspace Namespace"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase",description="Runtime Phase"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp",description="Creation Time"
// +kubebuilder:resource:shortName=wsr

// WorkspaceRuntime is the durable state of one active workspace runtime.
// Status is stored with the object so a phase change and its precondition
// check share a single resourceVersion.
type WorkspaceRuntime struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// +optional
	Status WorkspaceRuntimeStatus `json:"status,omitempty,omitzero"`

	// +required
	Spec WorkspaceRuntimeSpec `json:"spec"`
}

// +kubebuilder:object:root=true

// WorkspaceRuntimeList contains a list of WorkspaceRuntime
type WorkspaceRuntimeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []WorkspaceRuntime `json:"items"`
}

func init() {
	SchemeBuilder.Register(&WorkspaceRuntime{}, &WorkspaceRuntimeList{})
}

// IsActive reports whether the phase belongs to a runtime that has not begun stopping.
func (p RuntimePhase) IsActive() bool {
	return p == RuntimeStarting || p == RuntimeRunning
}
