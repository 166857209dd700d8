// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package observatory serves the live progress view: per-scope worker
// batches, throughput and ETA, rolled up globally.
package observatory

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/api/utils"
	"github.com/dfklabs/indexd/progress"
)

type Observatory struct {
	tracker *progress.Tracker
}

func New(tracker *progress.Tracker) *Observatory {
	return &Observatory{tracker: tracker}
}

// overview is the global roll-up plus every scope aggregate.
type overview struct {
	Global progress.Aggregate   `json:"global"`
	Scopes []progress.Aggregate `json:"scopes"`
}

func (o *Observatory) handleGetProgress(w http.ResponseWriter, _ *http.Request) error {
	scopes := o.tracker.Scopes()
	sort.Strings(scopes)
	out := overview{Global: o.tracker.Global()}
	for _, scope := range scopes {
		out.Scopes = append(out.Scopes, o.tracker.Scope(scope))
	}
	return utils.WriteJSON(w, out)
}

func (o *Observatory) handleGetScope(w http.ResponseWriter, req *http.Request) error {
	scope := mux.Vars(req)["scope"]
	agg := o.tracker.Scope(scope)
	if len(agg.Workers) == 0 {
		return utils.NotFound(errors.Errorf("no progress recorded for scope %q", scope))
	}
	return utils.WriteJSON(w, agg)
}

func (o *Observatory) handleGetWorker(w http.ResponseWriter, req *http.Request) error {
	scope := mux.Vars(req)["scope"]
	workerID, err := strconv.Atoi(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	status, ok := o.tracker.Worker(scope, workerID)
	if !ok {
		return utils.NotFound(errors.Errorf("no worker %d in scope %q", workerID, scope))
	}
	return utils.WriteJSON(w, status)
}

func (o *Observatory) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /progress").
		HandlerFunc(utils.WrapHandlerFunc(o.handleGetProgress))
	sub.Path("/{scope}").
		Methods(http.MethodGet).
		Name("GET /progress/{scope}").
		HandlerFunc(utils.WrapHandlerFunc(o.handleGetScope))
	sub.Path("/{scope}/workers/{id}").
		Methods(http.MethodGet).
		Name("GET /progress/{scope}/workers/{id}").
		HandlerFunc(utils.WrapHandlerFunc(o.handleGetWorker))
}
