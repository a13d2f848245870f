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

// Package metrics exposes workspace runtime metrics on the controller-runtime
// metrics registry, which the manager serves on its metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	namespace = "workspaced"

	// ResultLabel partitions outcomes of starts and consistency checks
	ResultLabel = "result"
	// ReasonLabel partitions stops by what triggered them
	ReasonLabel = "reason"
)

// Start results.
const (
	StartSucceeded   = "succeeded"
	StartFailed      = "failed"
	StartInterrupted = "interrupted"
)

// Stop reasons.
const (
	StopRequested = "requested"
	StopAbnormal  = "abnormal"
	StopOrphaned  = "orphaned"
)

// Consistency check results.
const (
	CheckConsistent   = "consistent"
	CheckInconsistent = "inconsistent"
	CheckError        = "error"
)

var (
	runtimeStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_starts_total",
			Help:      "Total number of workspace runtime starts by result",
		},
		[]string{ResultLabel},
	)

	runtimeStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "runtime_start_duration_seconds",
			Help:      "Duration of workspace runtime starts in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	runtimeStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_stops_total",
			Help:      "Total number of workspace runtime stops by reason",
		},
		[]string{ReasonLabel},
	)

	consistencyChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_checks_total",
			Help:      "Total number of runtime consistency checks by result",
		},
		[]string{ResultLabel},
	)
)

func init() {
	metrics.Registry.MustRegister(runtimeStarts, runtimeStartDuration, runtimeStops, consistencyChecks)
}

// RecordStart counts a finished start and observes its duration.
func RecordStart(result string, duration time.Duration) {
	runtimeStarts.WithLabelValues(result).Inc()
	runtimeStartDuration.Observe(duration.Seconds())
}

// RecordStop counts a stop.
func RecordStop(reason string) {
	runtimeStops.WithLabelValues(reason).Inc()
}

// RecordConsistencyCheck counts the check of one runtime.
func RecordConsistencyCheck(result string) {
	consistencyChecks.WithLabelValues(result).Inc()
}
