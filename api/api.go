// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the HTTP control surface: indexer family
// controls, the live progress observatory, bargain caches, drop-rate
// inference and the metrics endpoint.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/dfklabs/indexd/api/bargains"
	"github.com/dfklabs/indexd/api/droprates"
	"github.com/dfklabs/indexd/api/indexers"
	"github.com/dfklabs/indexd/api/observatory"
	"github.com/dfklabs/indexd/api/utils"
	"github.com/dfklabs/indexd/health"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/node"
)

var logger = log.WithContext("pkg", "api")

// Options carries the API server knobs.
type Options struct {
	AllowedOrigins  string
	EnableMetrics   bool
	EnableReqLogger bool
	EnablePprof     bool
}

// New assembles the API http.HandlerFunc and a closer releasing
// resources held by the handler chain.
func New(n *node.Node, opts Options) (http.HandlerFunc, func()) {
	origins := handlers.AllowedOrigins([]string{opts.AllowedOrigins})
	methods := handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions})
	headers := handlers.AllowedHeaders([]string{"content-type"})

	router := mux.NewRouter()
	if opts.EnableMetrics {
		// installed on the router so route names are resolved
		router.Use(metricsMiddleware)
	}
	router.Path("/status").
		Methods(http.MethodGet).
		Name("GET /status").
		HandlerFunc(utils.WrapHandlerFunc(func(w http.ResponseWriter, _ *http.Request) error {
			return utils.WriteJSON(w, n.Status())
		}))
	indexers.New(n).Mount(router, "/indexers")
	observatory.New(n.Tracker()).Mount(router, "/progress")
	bargains.New(n.Store()).Mount(router, "/bargains")
	droprates.New(n.Inference()).Mount(router, "/droprates")

	healthz := health.New(n.Store(), n.Tracker())
	router.Path("/health").
		Methods(http.MethodGet).
		Name("GET /health").
		HandlerFunc(utils.WrapHandlerFunc(func(w http.ResponseWriter, _ *http.Request) error {
			status := healthz.Status()
			w.Header().Set("Content-Type", utils.JSONContentType)
			if !status.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return json.NewEncoder(w).Encode(status)
		}))

	if opts.EnableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}
	if opts.EnablePprof {
		router.PathPrefix("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
		router.PathPrefix("/debug/pprof/profile").HandlerFunc(pprof.Profile)
		router.PathPrefix("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
		router.PathPrefix("/debug/pprof/trace").HandlerFunc(pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(origins, methods, headers)(handler)
	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}

	return handler.ServeHTTP, func() {}
}
