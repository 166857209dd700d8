// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"time"

	"github.com/dfklabs/indexd/log"
)

// RequestLoggerHandler logs every request with its status and latency.
func RequestLoggerHandler(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mrw := newMetricsResponseWriter(w)
		started := time.Now()
		handler.ServeHTTP(mrw, r)

		logger.Info("request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", mrw.statusCode,
			"duration", time.Since(started),
		)
	})
}
