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

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownCompleted(t *testing.T) {
	tests := []struct {
		name   string
		status string
		times  int
	}{
		{name: "success", status: "success", times: 1},
		{name: "failed twice", status: "failed", times: 2},
		{name: "partially failed", status: "partially_failed", times: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector()

			for i := 0; i < tt.times; i++ {
				c.ShutdownCompleted(tt.status, 1500*time.Millisecond)
			}

			count := testutil.ToFloat64(c.shutdowns.With(prometheus.Labels{"status": tt.status}))
			assert.Equal(t, float64(tt.times), count)
			assert.Equal(t, 1, testutil.CollectAndCount(c.shutdownDuration))
		})
	}
}

func TestSignalsSent(t *testing.T) {
	c := NewCollector()

	c.SignalsSent("terminate", 2)
	c.SignalsSent("kill", 1)
	c.SignalsSent("kill", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.signals.WithLabelValues("terminate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signals.WithLabelValues("kill")))
}

func TestLaunchCompleted(t *testing.T) {
	c := NewCollector()
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	c.LaunchCompleted("uri", false)
	c.LaunchCompleted("native", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.launches.WithLabelValues("uri", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.launches.WithLabelValues("native", "success")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.lastOperation))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ShutdownCompleted("success", time.Second)
	c.SignalsSent("terminate", 3)

	path := filepath.Join(t.TempDir(), "textfile", "agctl.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `agctl_shutdowns_total{status="success"} 1`)
	assert.Contains(t, out, `agctl_signals_sent_total{kind="terminate"} 3`)
	assert.True(t, strings.Contains(out, "# HELP agctl_shutdown_duration_seconds"))
}

func TestWriteTextfile_Unwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	err := NewCollector().WriteTextfile(filepath.Join(blocker, "agctl.prom"))
	require.Error(t, err)
}
