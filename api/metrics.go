// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dfklabs/indexd/metrics"
)

var metricHTTPReqCounter = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("api_request_count", []string{"name", "code", "method"})
})

var metricHTTPReqDuration = metrics.LazyLoad(func() metrics.HistogramMeter {
	return metrics.Histogram("api_duration_ms", metrics.BucketHTTPMs)
})

// metricsResponseWriter captures the status code of a response.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{w, http.StatusOK}
}

func (m *metricsResponseWriter) WriteHeader(code int) {
	m.statusCode = code
	m.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware tallies request counts per route and the overall
// request latency. Unmatched requests are recorded under WRONG_PATH.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := "WRONG_PATH"
		if route := mux.CurrentRoute(r); route != nil {
			if n := route.GetName(); n != "" {
				name = n
			}
		}
		mrw := newMetricsResponseWriter(w)
		started := time.Now()
		next.ServeHTTP(mrw, r)

		metricHTTPReqCounter().AddWithLabel(1, map[string]string{
			"name":   name,
			"code":   strconv.Itoa(mrw.statusCode),
			"method": r.Method,
		})
		metricHTTPReqDuration().Observe(time.Since(started).Milliseconds())
	})
}
