// Copyright 2025 Tom Barlow
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

// Package metrics records lifecycle outcomes as Prometheus metrics.
//
// agctl is a short-lived process, so the registry is exported to a
// node_exporter textfile after each operation instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/agctl/internal/lifecycle"
)

// Collector implements lifecycle.Recorder on a private registry.
type Collector struct {
	registry *prometheus.Registry

	shutdowns        *prometheus.CounterVec
	shutdownDuration *prometheus.HistogramVec
	signals          *prometheus.CounterVec
	launches         *prometheus.CounterVec
	lastOperation    prometheus.Gauge

	now func() time.Time
}

var _ lifecycle.Recorder = (*Collector)(nil)

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		shutdowns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agctl_shutdowns_total",
				Help: "Shutdown operations by final status",
			},
			[]string{"status"},
		),
		shutdownDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agctl_shutdown_duration_seconds",
				Help:    "Time spent closing the application",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"status"},
		),
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agctl_signals_sent_total",
				Help: "Termination signals delivered by kind",
			},
			[]string{"kind"},
		),
		launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agctl_launch_attempts_total",
				Help: "Launch attempts by method and result",
			},
			[]string{"method", "result"},
		),
		lastOperation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agctl_last_operation_timestamp_seconds",
			Help: "Unix time of the last recorded lifecycle outcome",
		}),
		now: time.Now,
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ShutdownCompleted implements lifecycle.Recorder.
func (c *Collector) ShutdownCompleted(status string, duration time.Duration) {
	c.shutdowns.WithLabelValues(status).Inc()
	c.shutdownDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.touch()
}

// SignalsSent implements lifecycle.Recorder.
func (c *Collector) SignalsSent(kind string, count int) {
	if count <= 0 {
		return
	}
	c.signals.WithLabelValues(kind).Add(float64(count))
}

// LaunchCompleted implements lifecycle.Recorder.
func (c *Collector) LaunchCompleted(method string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.launches.WithLabelValues(method, result).Inc()
	c.touch()
}

func (c *Collector) touch() {
	c.lastOperation.Set(float64(c.now().Unix()))
}

// WriteTextfile writes the registry in the text exposition format to path,
// replacing any previous content atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
