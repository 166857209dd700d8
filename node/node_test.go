// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/dfk"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataPath: /tmp/indexd.db
endpoints:
  dfk: https://rpc.example/dfk
  harmony: https://rpc.example/one
marketplaceUrl: https://market.example
interval: 30s
backfillWorkers: 6
stoneTiers:
  "0x1234": 2
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/indexd.db", cfg.DataPath)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 6, cfg.BackfillWorkers)

	endpoints, err := cfg.chainEndpoints()
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example/dfk", endpoints[dfk.ChainDFK])
	assert.Equal(t, "https://rpc.example/one", endpoints[dfk.ChainHarmony])
	assert.Len(t, cfg.stoneTiers(), 1)
}

func TestLoadConfigUnknownChain(t *testing.T) {
	cfg := &Config{Endpoints: map[string]string{"solana": "x"}}
	_, err := cfg.chainEndpoints()
	assert.ErrorContains(t, err, "unknown chain")
}

func newTestNode(t *testing.T, mutate func(*Config)) *Node {
	t.Helper()
	cfg := &Config{SnapshotInterval: time.Hour}
	if mutate != nil {
		mutate(cfg)
	}
	n, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func TestFamilyRegistration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	n := newTestNode(t, func(cfg *Config) {
		cfg.Endpoints = map[string]string{"dfk": srv.URL, "metis": srv.URL, "harmony": srv.URL}
		cfg.MarketplaceURL = srv.URL
		cfg.BattlesURL = srv.URL
	})
	assert.Equal(t, []string{
		"bargain", "gardening", "lp-dfk", "lp-harmony",
		"pve-dfk", "pve-metis", "pvp", "rewards-dfk", "swaps-dfk", "tavern",
	}, n.Families())
}

func TestNewSeedsRegistry(t *testing.T) {
	n := newTestNode(t, func(cfg *Config) {
		cfg.TokenPrices = map[string]float64{"CRYSTAL": 0.21}
	})

	items, err := n.store.ListPvELootItems(dfk.ChainDFK)
	require.NoError(t, err)
	for _, item := range dfk.KnownLootItems {
		assert.Equal(t, item.Name, items[item.Address.Hex()])
	}

	acts, err := n.store.ListPvEActivities(dfk.ChainDFK)
	require.NoError(t, err)
	require.Len(t, acts, len(dfk.KnownPvEActivities))
	assert.Equal(t, "Mad Boar", acts[0].Name)

	price, err := n.store.GetTokenPrice("CRYSTAL")
	require.NoError(t, err)
	assert.InDelta(t, 0.21, price, 1e-9)
}

func TestJobFamilyLifecycle(t *testing.T) {
	n := newTestNode(t, nil)

	require.NoError(t, n.StartFamily(context.Background(), "bargain"))
	assert.True(t, n.Status()["bargain"].Running)

	// idempotent start
	require.NoError(t, n.StartFamily(context.Background(), "bargain"))

	require.NoError(t, n.StopFamily("bargain"))
	assert.False(t, n.Status()["bargain"].Running)
}

func TestUnknownFamily(t *testing.T) {
	n := newTestNode(t, nil)
	err := n.StartFamily(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownFamily)
	assert.ErrorIs(t, n.StopFamily("nope"), ErrUnknownFamily)
	assert.ErrorIs(t, n.ResetFamily("nope"), ErrUnknownFamily)
}

func TestStartAllCollectsFailures(t *testing.T) {
	n := newTestNode(t, nil)
	// only job families are registered; all must start
	require.NoError(t, n.StartAll(context.Background()))
	for _, name := range n.Families() {
		assert.True(t, n.Status()[name].Running, name)
	}
}
