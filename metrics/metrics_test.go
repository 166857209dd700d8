// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopByDefault(t *testing.T) {
	// must not panic nor register anything
	Counter("noop_counter").Add(1)
	Gauge("noop_gauge").Set(42)
	GaugeVec("noop_gauge_vec", []string{"a"}).SetWithLabel(1, map[string]string{"a": "b"})
	Histogram("noop_histogram", BucketBatchMs).Observe(100)
}

func TestPrometheusBackend(t *testing.T) {
	InitializePrometheusMetrics()

	Counter("events_indexed_total").Add(3)
	Counter("events_indexed_total").Add(2)
	Gauge("workers_running").Set(7)
	CounterVec("chunks_failed", []string{"family"}).AddWithLabel(1, map[string]string{"family": "pve"})
	Histogram("batch_duration_ms", BucketBatchMs).Observe(1234)

	srv := httptest.NewServer(HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	counter, ok := families["indexd_events_indexed_total"]
	require.True(t, ok)
	require.Len(t, counter.Metric, 1)
	assert.Equal(t, dto.MetricType_COUNTER, counter.GetType())
	assert.Equal(t, float64(5), counter.Metric[0].GetCounter().GetValue())

	gauge, ok := families["indexd_workers_running"]
	require.True(t, ok)
	assert.Equal(t, float64(7), gauge.Metric[0].GetGauge().GetValue())

	_, ok = families["indexd_batch_duration_ms"]
	assert.True(t, ok)
}

func TestMetersAreCached(t *testing.T) {
	InitializePrometheusMetrics()
	a := Counter("cached_meter")
	b := Counter("cached_meter")
	assert.Same(t, a, b)
}
