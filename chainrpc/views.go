// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/genes"
)

// viewCache memoizes archive reads. Hero and pet state at a fixed block
// never changes, so entries are immutable.
type viewCache struct {
	heroes *lru.Cache
	pets   *lru.Cache
}

const viewCacheSize = 8192

func newViewCache() *viewCache {
	heroes, _ := lru.New(viewCacheSize)
	pets, _ := lru.New(viewCacheSize)
	return &viewCache{heroes: heroes, pets: pets}
}

func snapshotKey(chain dfk.ChainID, id uint64, block *big.Int) string {
	if block == nil {
		return ""
	}
	return fmt.Sprintf("%d:%d:%s", chain, id, block)
}

// UserInfo is the live staking position of a wallet in a pool.
type UserInfo struct {
	Amount     *big.Int
	RewardDebt *big.Int
}

// GetUserInfo reads userInfo(pid, wallet) at the chain head.
func (p *Pool) GetUserInfo(ctx context.Context, chain dfk.ChainID, gardener common.Address, pid uint64, wallet common.Address) (*UserInfo, error) {
	c := p.Bind(chain, gardener, GardenerABI)
	results, err := c.Call(ctx, nil, "userInfo", new(big.Int).SetUint64(pid), wallet)
	if err != nil {
		return nil, err
	}
	if len(results) < 2 {
		return nil, errors.New("userInfo returned short tuple")
	}
	return &UserInfo{
		Amount:     results[0].(*big.Int),
		RewardDebt: results[1].(*big.Int),
	}, nil
}

// GetPoolLPToken reads poolInfo(pid).lpToken. The zero address marks a
// pool with no LP token configured.
func (p *Pool) GetPoolLPToken(ctx context.Context, chain dfk.ChainID, gardener common.Address, pid uint64) (common.Address, error) {
	c := p.Bind(chain, gardener, GardenerABI)
	results, err := c.Call(ctx, nil, "poolInfo", new(big.Int).SetUint64(pid))
	if err != nil {
		return common.Address{}, err
	}
	if len(results) < 1 {
		return common.Address{}, errors.New("poolInfo returned short tuple")
	}
	return results[0].(common.Address), nil
}

type heroV3 struct {
	Id    *big.Int
	Stats heroStatsV3
}

type heroStatsV3 struct {
	Strength     uint16
	Agility      uint16
	Intelligence uint16
	Wisdom       uint16
	Luck         uint16
	Vitality     uint16
	Endurance    uint16
	Dexterity    uint16
}

// HeroSnapshot is the hero stat block at a given block.
type HeroSnapshot struct {
	ID    uint64
	Stats genes.Stats
}

// GetHeroV3 reads a hero's stats, optionally at a historical block
// (archive RPC required). Snapshots at fixed blocks are cached.
func (p *Pool) GetHeroV3(ctx context.Context, chain dfk.ChainID, heroCore common.Address, heroID uint64, block *big.Int) (*HeroSnapshot, error) {
	key := snapshotKey(chain, heroID, block)
	if key != "" {
		if cached, ok := p.views.heroes.Get(key); ok {
			return cached.(*HeroSnapshot), nil
		}
	}
	c := p.Bind(chain, heroCore, HeroCoreABI)
	results, err := c.Call(ctx, block, "getHeroV3", new(big.Int).SetUint64(heroID))
	if err != nil {
		return nil, err
	}
	if len(results) < 1 {
		return nil, errors.New("getHeroV3 returned nothing")
	}
	hero := *abi.ConvertType(results[0], new(heroV3)).(*heroV3)
	snap := &HeroSnapshot{
		ID: hero.Id.Uint64(),
		Stats: genes.Stats{
			Strength:     int(hero.Stats.Strength),
			Agility:      int(hero.Stats.Agility),
			Intelligence: int(hero.Stats.Intelligence),
			Wisdom:       int(hero.Stats.Wisdom),
			Luck:         int(hero.Stats.Luck),
			Vitality:     int(hero.Stats.Vitality),
			Endurance:    int(hero.Stats.Endurance),
			Dexterity:    int(hero.Stats.Dexterity),
		},
	}
	if key != "" {
		p.views.heroes.Add(key, snap)
	}
	return snap, nil
}

type petV2 struct {
	Id                *big.Int
	Rarity            uint8
	CombatBonus       uint16
	CombatBonusScalar uint16
}

// PetSnapshot is the combat bonus of a pet at a given block.
type PetSnapshot struct {
	ID                uint64
	Rarity            uint8
	CombatBonus       uint16
	CombatBonusScalar uint16
}

// ScavengerPct returns the additive drop-rate percent when the pet's
// combat bonus is one of the scavenger tiers, else 0.
func (s *PetSnapshot) ScavengerPct() float64 {
	if _, ok := dfk.ScavengerBonusPct[s.CombatBonus]; ok {
		return float64(s.CombatBonusScalar)
	}
	return 0
}

// GetPetV2 reads a pet's combat bonus, optionally at a historical block.
func (p *Pool) GetPetV2(ctx context.Context, chain dfk.ChainID, petCore common.Address, petID uint64, block *big.Int) (*PetSnapshot, error) {
	key := snapshotKey(chain, petID, block)
	if key != "" {
		if cached, ok := p.views.pets.Get(key); ok {
			return cached.(*PetSnapshot), nil
		}
	}
	c := p.Bind(chain, petCore, PetCoreABI)
	results, err := c.Call(ctx, block, "getPetV2", new(big.Int).SetUint64(petID))
	if err != nil {
		return nil, err
	}
	if len(results) < 1 {
		return nil, errors.New("getPetV2 returned nothing")
	}
	pet := *abi.ConvertType(results[0], new(petV2)).(*petV2)
	snap := &PetSnapshot{
		ID:                pet.Id.Uint64(),
		Rarity:            pet.Rarity,
		CombatBonus:       pet.CombatBonus,
		CombatBonusScalar: pet.CombatBonusScalar,
	}
	if key != "" {
		p.views.pets.Add(key, snap)
	}
	return snap, nil
}

// GetProfileName resolves a wallet's summoner name; empty when the
// wallet has no profile.
func (p *Pool) GetProfileName(ctx context.Context, chain dfk.ChainID, profiles common.Address, wallet common.Address) (string, error) {
	c := p.Bind(chain, profiles, ProfilesABI)
	results, err := c.Call(ctx, nil, "addressToProfile", wallet)
	if err != nil {
		// profiles contract reverts for unknown wallets on some chains
		return "", nil
	}
	if len(results) < 2 {
		return "", nil
	}
	name, _ := results[1].(string)
	return name, nil
}

// GetQuestType reads the quest-type id via the view fallback.
func (p *Pool) GetQuestType(ctx context.Context, chain dfk.ChainID, questCore common.Address, questID *big.Int) (uint8, error) {
	c := p.Bind(chain, questCore, QuestCoreViewABI)
	results, err := c.Call(ctx, nil, "getQuest", questID)
	if err != nil {
		return 0, err
	}
	if len(results) < 2 {
		return 0, errors.New("getQuest returned short tuple")
	}
	qt, ok := results[1].(uint8)
	if !ok {
		return 0, errors.New("getQuest questType has unexpected type")
	}
	return qt, nil
}
