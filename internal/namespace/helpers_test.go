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
	"sync/atomic"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

const (
	testNamespace   = "user-1-workspaces"
	testWorkspaceID = "ws-1"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to build scheme: %v", err)
	}
	return scheme
}

func setupTestClient(t *testing.T, funcs *interceptor.Funcs, objs ...client.Object) client.WithWatch {
	t.Helper()
	builder := fake.NewClientBuilder().
		WithScheme(testScheme(t)).
		WithObjects(objs...)
	if funcs != nil {
		builder = builder.WithInterceptorFuncs(*funcs)
	}
	return builder.Build()
}

func testTimeouts() Timeouts {
	return Timeouts{
		PodCreation:           2 * time.Second,
		PodRemoval:            2 * time.Second,
		PodRunning:            2 * time.Second,
		DefaultServiceAccount: 2 * time.Second,
		Ingress:               2 * time.Second,
		PVCBound:              2 * time.Second,
	}
}

// clusterSimulation plays the part of the controllers missing from the fake
// client: namespaces get a default service account, deployments materialize
// a pod and deleting a deployment deletes its pods.
func clusterSimulation() *interceptor.Funcs {
	return &interceptor.Funcs{
		Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			if err := c.Create(ctx, obj, opts...); err != nil {
				return err
			}
			switch o := obj.(type) {
			case *corev1.Namespace:
				return c.Create(ctx, &corev1.ServiceAccount{
					ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: o.Name},
				})
			case *appsv1.Deployment:
				return c.Create(ctx, podFor(o))
			}
			return nil
		},
		Delete: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.DeleteOption) error {
			if err := c.Delete(ctx, obj, opts...); err != nil {
				return err
			}
			if _, ok := obj.(*appsv1.Deployment); !ok {
				return nil
			}
			return c.DeleteAllOf(ctx, &corev1.Pod{}, client.InNamespace(obj.GetNamespace()),
				client.MatchingLabels{DeploymentNameLabel: obj.GetName()})
		},
	}
}

func podFor(d *appsv1.Deployment) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        d.Name + "-6f7b9c8d4-x2k9p",
			Namespace:   d.Namespace,
			Labels:      copyLabels(d.Spec.Template.Labels),
			Annotations: d.Spec.Template.Annotations,
		},
		Spec: d.Spec.Template.Spec,
	}
}

// createCounter counts Create calls that reach the fake client.
func createCounter(count *atomic.Int32) *interceptor.Funcs {
	return &interceptor.Funcs{
		Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			count.Add(1)
			return c.Create(ctx, obj, opts...)
		},
	}
}

func workspacePod(name string, phase corev1.PodPhase, containers ...string) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: testNamespace,
			Labels:    map[string]string{WorkspaceIDLabel: testWorkspaceID},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
	for _, c := range containers {
		pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{Name: c, Image: "busybox"})
	}
	return pod
}
