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
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

var _ = Describe("WorkspaceRuntime", func() {
	newRuntime := func() *WorkspaceRuntime {
		return &WorkspaceRuntime{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "ws-1",
				Namespace: "workspaced-system",
			},
			Spec: WorkspaceRuntimeSpec{
				Identity: RuntimeIdentity{
					WorkspaceID:             "ws-1",
					EnvironmentName:         "default",
					OwnerID:                 "user-1",
					InfrastructureNamespace: "user-1-workspaces",
				},
				Commands: []Command{
					{Name: "build", CommandLine: "make", Attributes: map[string]string{"goal": "build"}},
				},
			},
			Status: WorkspaceRuntimeStatus{
				Phase: RuntimeRunning,
				Machines: map[string]MachineRecord{
					"app/web": {
						PodName:        "app-7d9f8-abcde",
						DeploymentName: "app",
						ContainerName:  "web",
						Status:         MachineRunning,
						Servers: map[string]ServerRecord{
							"http": {URL: "http://web:8080", Status: ServerUnknown},
						},
					},
				},
			},
		}
	}

	Context("DeepCopy", func() {
		It("produces an independent copy of machines and servers", func() {
			original := newRuntime()
			copied := original.DeepCopy()

			machine := copied.Status.Machines["app/web"]
			machine.Servers["http"] = ServerRecord{Status: ServerRunning}
			copied.Status.Machines["app/web"] = machine
			copied.Spec.Commands[0].Attributes["goal"] = "test"

			Expect(original.Status.Machines["app/web"].Servers["http"].Status).To(Equal(ServerUnknown))
			Expect(original.Spec.Commands[0].Attributes["goal"]).To(Equal("build"))
		})

		It("returns nil for a nil receiver", func() {
			var wr *WorkspaceRuntime
			Expect(wr.DeepCopy()).To(BeNil())
		})
	})

	Context("Phase", func() {
		DescribeTable("IsActive",
			func(phase RuntimePhase, active bool) {
				Expect(phase.IsActive()).To(Equal(active))
			},
			Entry("starting", RuntimeStarting, true),
			Entry("running", RuntimeRunning, true),
			Entry("stopping", RuntimeStopping, false),
			Entry("stopped", RuntimeStopped, false),
		)
	})

	Context("Scheme registration", func() {
		It("round-trips through a client built from the scheme", func() {
			scheme := runtime.NewScheme()
			Expect(AddToScheme(scheme)).To(Succeed())

			c := fake.NewClientBuilder().WithScheme(scheme).Build()
			ctx := context.Background()
			Expect(c.Create(ctx, newRuntime())).To(Succeed())

			fetched := &WorkspaceRuntime{}
			Expect(c.Get(ctx, types.NamespacedName{Name: "ws-1", Namespace: "workspaced-system"}, fetched)).To(Succeed())
			Expect(fetched.Spec.Identity.OwnerID).To(Equal("user-1"))
			Expect(fetched.Status.Machines).To(HaveKey("app/web"))
		})
	})
})
