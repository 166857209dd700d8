// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dfklabs/indexd/dfk"
)

// Config is the node's yaml-loadable configuration.
type Config struct {
	// DataPath is the sqlite file; empty runs in memory.
	DataPath string `yaml:"dataPath"`

	// Endpoints maps chain names (dfk, metis, harmony) to RPC URLs.
	// DFK and Metis need archive nodes.
	Endpoints map[string]string `yaml:"endpoints"`

	MarketplaceURL string `yaml:"marketplaceUrl"`
	GenesURL       string `yaml:"genesUrl"`
	BattlesURL     string `yaml:"battlesUrl"`

	// Interval between indexer ticks; zero means the 60s default.
	Interval time.Duration `yaml:"interval"`
	// SnapshotInterval spaces full marketplace and tournament passes.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// BackfillWorkers bounds concurrent gene fetches (capped at 8).
	BackfillWorkers int `yaml:"backfillWorkers"`

	// StoneTiers maps enhancement-stone contract addresses to tiers for
	// marketplace normalisation.
	StoneTiers map[string]int `yaml:"stoneTiers"`

	// TokenPrices seeds USD prices for the native tokens; the bargain
	// figures stay advisory when a token is missing.
	TokenPrices map[string]float64 `yaml:"tokenPrices"`
}

// LoadConfig reads a yaml config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithMessage(err, "parse config")
	}
	return &cfg, nil
}

// chainEndpoints resolves the name-keyed endpoint map to chain ids.
func (c *Config) chainEndpoints() (map[dfk.ChainID]string, error) {
	out := make(map[dfk.ChainID]string, len(c.Endpoints))
	for name, url := range c.Endpoints {
		var chain dfk.ChainID
		switch name {
		case "dfk":
			chain = dfk.ChainDFK
		case "metis":
			chain = dfk.ChainMetis
		case "harmony":
			chain = dfk.ChainHarmony
		default:
			return nil, errors.Errorf("unknown chain %q in endpoints", name)
		}
		out[chain] = url
	}
	return out, nil
}

func (c *Config) stoneTiers() map[common.Address]int {
	out := make(map[common.Address]int, len(c.StoneTiers))
	for addr, tier := range c.StoneTiers {
		out[common.HexToAddress(addr)] = tier
	}
	return out
}

func (c *Config) snapshotInterval() time.Duration {
	if c.SnapshotInterval > 0 {
		return c.SnapshotInterval
	}
	return 30 * time.Minute
}
