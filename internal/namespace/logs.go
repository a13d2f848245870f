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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// LogReader reads the recent output of a container.
type LogReader interface {
	TailLogs(ctx context.Context, namespace, pod, container string, lines int64) (string, error)
}

type clientsetLogReader struct {
	clientset kubernetes.Interface
}

// NewLogReader returns a LogReader backed by the pods/log subresource.
func NewLogReader(clientset kubernetes.Interface) LogReader {
	return &clientsetLogReader{clientset: clientset}
}

func (r *clientsetLogReader) TailLogs(ctx context.Context, namespace, pod, container string, lines int64) (string, error) {
	raw, err := r.clientset.CoreV1().Pods(namespace).
		GetLogs(pod, &corev1.PodLogOptions{Container: container, TailLines: &lines}).
		DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read logs of container %q in pod %q: %w", container, pod, err)
	}
	return string(raw), nil
}
