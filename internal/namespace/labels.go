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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// WorkspaceIDLabel is carried by every resource created for a workspace.
	WorkspaceIDLabel = "workspace.workspaced.io/workspace-id"

	// DeploymentNameLabel links a pod to the deployment that wraps it.
	DeploymentNameLabel = "workspace.workspaced.io/deployment-name"

	// ManagedLabel marks namespaces this system may delete.
	ManagedLabel = "workspace.workspaced.io/managed"

	// ManagedByLabel identifies objects created by workspaced.
	ManagedByLabel = "workspace.workspaced.io/managed-by"

	// PlatformNamespaceAnnotation marks objects that belong in the platform namespace
	// rather than the workspace namespace.
	PlatformNamespaceAnnotation = "workspace.workspaced.io/platform-namespace"

	managedByValue = "workspaced"
)

func putLabel(obj metav1.Object, key, value string) {
	labels := obj.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[key] = value
	obj.SetLabels(labels)
}

// IsPlatformNamespaced reports whether obj is annotated for creation in the platform namespace.
func IsPlatformNamespaced(obj metav1.Object) bool {
	return obj.GetAnnotations()[PlatformNamespaceAnnotation] == "true"
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
