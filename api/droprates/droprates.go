// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package droprates serves inferred PvE base drop rates.
package droprates

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/api/utils"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/infer"
)

type DropRates struct {
	svc *infer.Service
}

func New(svc *infer.Service) *DropRates {
	return &DropRates{svc: svc}
}

// parseChain accepts the chain name (dfk, metis, harmony) or the raw id.
func parseChain(raw string) (dfk.ChainID, error) {
	switch raw {
	case "dfk":
		return dfk.ChainDFK, nil
	case "metis":
		return dfk.ChainMetis, nil
	case "harmony":
		return dfk.ChainHarmony, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Errorf("unknown chain %q", raw)
	}
	chain := dfk.ChainID(id)
	if chain.String() == "unknown" {
		return 0, errors.Errorf("unknown chain id %d", id)
	}
	return chain, nil
}

func (d *DropRates) handleGetRates(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()

	chain, err := parseChain(query.Get("chain"))
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "chain"))
	}

	// without an activity the response is the activity registry
	rawActivity := query.Get("activity")
	if rawActivity == "" {
		activities, err := d.svc.Activities(req.Context(), chain)
		if err != nil {
			return err
		}
		return utils.WriteJSON(w, activities)
	}
	activityID, err := strconv.ParseUint(rawActivity, 10, 64)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "activity"))
	}

	item := query.Get("item")
	if item == "" {
		rates, err := d.svc.DropRates(req.Context(), chain, activityID)
		if err != nil {
			return err
		}
		return utils.WriteJSON(w, rates)
	}
	if !common.IsHexAddress(item) {
		return utils.BadRequest(errors.Errorf("item %q is not an address", item))
	}
	// rows store the checksummed form; accept any case
	item = common.HexToAddress(item).Hex()

	var scavengerPct *float64
	if raw := query.Get("scavengerPct"); raw != "" {
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "scavengerPct"))
		}
		scavengerPct = &pct
	}
	rate, err := d.svc.DropRate(req.Context(), chain, activityID, item, scavengerPct)
	if err != nil {
		return err
	}
	if rate == nil {
		return utils.NotFound(errors.Errorf("no completions recorded for item %s", item))
	}
	return utils.WriteJSON(w, rate)
}

func (d *DropRates) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /droprates").
		HandlerFunc(utils.WrapHandlerFunc(d.handleGetRates))
}
