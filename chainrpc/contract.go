// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainrpc

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/dfk"
)

// Contract is a minimal read-only binding: an address plus a parsed ABI
// on a chain, calling through the pool's retry wrapper.
type Contract struct {
	pool  *Pool
	chain dfk.ChainID
	addr  common.Address
	abi   abi.ABI
}

// Bind returns the cached binding for (chain, addr), creating it on
// first use. abiJSON must parse; Bind panics on malformed built-in ABIs.
func (p *Pool) Bind(chain dfk.ChainID, addr common.Address, abiJSON string) *Contract {
	key := chain.String() + addr.Hex()
	p.bindingsMu.Lock()
	defer p.bindingsMu.Unlock()
	if c, ok := p.bindings[key]; ok {
		return c
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(errors.WithMessage(err, "parse abi"))
	}
	c := &Contract{pool: p, chain: chain, addr: addr, abi: parsed}
	p.bindings[key] = c
	return c
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address { return c.addr }

// EventID returns the topic0 hash of a named event in the ABI.
func (c *Contract) EventID(name string) (common.Hash, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return common.Hash{}, errors.Errorf("unknown event %q", name)
	}
	return ev.ID, nil
}

// UnpackLog decodes a log's data section into out using the named event.
func (c *Contract) UnpackLog(out any, name string, data []byte) error {
	return c.abi.UnpackIntoInterface(out, name, data)
}

// UnpackLogValues decodes a log's data section positionally. Used where
// nominal tuple field names are not trusted.
func (c *Contract) UnpackLogValues(name string, data []byte) ([]any, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return nil, errors.Errorf("unknown event %q", name)
	}
	return ev.Inputs.Unpack(data)
}

// Call performs an eth_call of method at blockNumber (nil for latest)
// and unpacks the results positionally.
func (c *Contract) Call(ctx context.Context, blockNumber *big.Int, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.WithMessagef(err, "pack %s", method)
	}
	msg := ethereum.CallMsg{To: &c.addr, Data: input}
	out, err := c.pool.call(ctx, c.chain, msg, blockNumber)
	if err != nil {
		return nil, errors.WithMessagef(err, "call %s", method)
	}
	results, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.WithMessagef(err, "unpack %s", method)
	}
	return results, nil
}
