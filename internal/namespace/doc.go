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

// Package namespace manages the Kubernetes resources of workspace namespaces.
//
// The package provides one resource manager per kind (Deployments, Services,
// Ingresses, Secrets, ConfigMaps, PVCs), the Namespace aggregate composing
// them, the ServiceAccountPreparer, and the Factory that hands out prepared
// namespaces to the runtime orchestrator.
//
// # Labeling
//
// Every object created through a manager carries the workspace-id label,
// which is how managers list and bulk-delete the objects of one workspace:
//
//	workspace.workspaced.io/workspace-id=<workspace id>
//
// Pods wrapped by a Deployment additionally carry the Deployment name:
//
//	workspace.workspaced.io/deployment-name=<deployment name>
//
// Namespaces this system may delete carry workspace.workspaced.io/managed=true.
//
// # Waiting
//
// Waits open a watch before reading the current object, so a change between
// the read and the subscription is never lost. A wait ends in one of three
// ways: the condition is met, the timeout elapses (ErrWaitTimeout), or the
// watch closes first (ErrWatchClosed). Cancelling the context yields an
// interrupted failure, see package infra.
//
// # Workspace Pods
//
// Workspace pods are deployed as single-replica Deployments with restart
// policy Always. Deploy returns once the pod materializes, and WaitRunningAsync
// classifies terminated or restarted containers as start failures.
//
// # Cleanup
//
// Namespace.CleanUp removes ingresses, services, deployments, secrets and
// config maps. Persistent volume claims hold user data and survive it.
package namespace
