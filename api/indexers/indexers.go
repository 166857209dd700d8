// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package indexers exposes the indexer families as start/stop/reset
// control endpoints plus a status overview.
package indexers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/api/utils"
	"github.com/dfklabs/indexd/node"
)

type Indexers struct {
	node *node.Node
}

func New(n *node.Node) *Indexers {
	return &Indexers{node: n}
}

func (i *Indexers) handleGetStatus(w http.ResponseWriter, _ *http.Request) error {
	return utils.WriteJSON(w, i.node.Status())
}

func (i *Indexers) family(req *http.Request) (string, error) {
	name := mux.Vars(req)["family"]
	for _, known := range i.node.Families() {
		if known == name {
			return name, nil
		}
	}
	return "", utils.NotFound(errors.Errorf("unknown indexer family %q", name))
}

func (i *Indexers) handleStart(w http.ResponseWriter, req *http.Request) error {
	name, err := i.family(req)
	if err != nil {
		return err
	}
	if err := i.node.StartFamily(req.Context(), name); err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"family": name, "running": true})
}

func (i *Indexers) handleStop(w http.ResponseWriter, req *http.Request) error {
	name, err := i.family(req)
	if err != nil {
		return err
	}
	if err := i.node.StopFamily(name); err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"family": name, "running": false})
}

func (i *Indexers) handleReset(w http.ResponseWriter, req *http.Request) error {
	name, err := i.family(req)
	if err != nil {
		return err
	}
	if err := i.node.ResetFamily(name); err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"family": name, "running": false, "reset": true})
}

func (i *Indexers) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /indexers").
		HandlerFunc(utils.WrapHandlerFunc(i.handleGetStatus))
	sub.Path("/{family}/start").
		Methods(http.MethodPost).
		Name("POST /indexers/{family}/start").
		HandlerFunc(utils.WrapHandlerFunc(i.handleStart))
	sub.Path("/{family}/stop").
		Methods(http.MethodPost).
		Name("POST /indexers/{family}/stop").
		HandlerFunc(utils.WrapHandlerFunc(i.handleStop))
	sub.Path("/{family}/reset").
		Methods(http.MethodPost).
		Name("POST /indexers/{family}/reset").
		HandlerFunc(utils.WrapHandlerFunc(i.handleReset))
}
