// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chainrpc

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/dfk"
)

type fakeClient struct {
	mu        sync.Mutex
	head      uint64
	logs      []types.Log
	callCount int
	callFn    func(msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func (f *fakeClient) BlockNumber(_ context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, _ ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
	return f.callFn(msg, blockNumber)
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func newTestPool(t *testing.T, chain dfk.ChainID, fc *fakeClient) *Pool {
	t.Helper()
	p := NewPool(Config{})
	p.SetClient(chain, fc)
	return p
}

func mustOutputs(t *testing.T, abiJSON, method string, values ...any) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

type revertError struct{ msg string }

func (e revertError) Error() string  { return e.msg }
func (e revertError) ErrorCode() int { return 3 }

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(rpc.HTTPError{StatusCode: 429}))
	assert.True(t, IsRetryable(rpc.HTTPError{StatusCode: 503}))
	assert.False(t, IsRetryable(rpc.HTTPError{StatusCode: 404}))
	assert.False(t, IsRetryable(revertError{"execution reverted"}))
	assert.True(t, IsRetryable(errors.New("connection reset by peer")))
	assert.True(t, IsRetryable(errors.Wrap(rpc.HTTPError{StatusCode: 500}, "getLogs")))
}

func TestHeadBlock(t *testing.T) {
	fc := &fakeClient{head: 5_000_000}
	p := newTestPool(t, dfk.ChainDFK, fc)

	head, err := p.HeadBlock(context.Background(), dfk.ChainDFK)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), head)

	_, err = p.HeadBlock(context.Background(), dfk.ChainMetis)
	assert.Error(t, err, "unconfigured chain must not dial")
}

func TestGetUserInfo(t *testing.T) {
	out := mustOutputs(t, GardenerABI, "userInfo",
		big.NewInt(1_234_567), big.NewInt(42))
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return out, nil
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	info, err := p.GetUserInfo(context.Background(), dfk.ChainDFK,
		common.HexToAddress("0x01"), 3, common.HexToAddress("0x02"))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_234_567), info.Amount)
	assert.Equal(t, big.NewInt(42), info.RewardDebt)
}

func TestGetPoolLPToken(t *testing.T) {
	lp := common.HexToAddress("0xabcdef")
	out := mustOutputs(t, GardenerABI, "poolInfo",
		lp, big.NewInt(100), big.NewInt(0), big.NewInt(0))
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return out, nil
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	got, err := p.GetPoolLPToken(context.Background(), dfk.ChainDFK, common.HexToAddress("0x01"), 7)
	require.NoError(t, err)
	assert.Equal(t, lp, got)
}

func packedHero(t *testing.T, id uint64, luck uint16) []byte {
	t.Helper()
	hero := struct {
		Id    *big.Int
		Stats struct {
			Strength     uint16
			Agility      uint16
			Intelligence uint16
			Wisdom       uint16
			Luck         uint16
			Vitality     uint16
			Endurance    uint16
			Dexterity    uint16
		}
	}{Id: new(big.Int).SetUint64(id)}
	hero.Stats.Strength = 12
	hero.Stats.Luck = luck
	return mustOutputs(t, HeroCoreABI, "getHeroV3", hero)
}

func TestGetHeroV3(t *testing.T) {
	out := packedHero(t, 1000000000042, 31)
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
		require.NotNil(t, blockNumber, "snapshot reads must pin a block")
		return out, nil
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	block := big.NewInt(3_000_000)
	snap, err := p.GetHeroV3(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0a"), 1000000000042, block)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000042), snap.ID)
	assert.Equal(t, 31, snap.Stats.Luck)
	assert.Equal(t, 12, snap.Stats.Strength)

	// same (hero, block) served from cache
	_, err = p.GetHeroV3(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0a"), 1000000000042, block)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls())

	// a different block misses
	_, err = p.GetHeroV3(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0a"), 1000000000042, big.NewInt(3_000_500))
	require.NoError(t, err)
	assert.Equal(t, 2, fc.calls())
}

func packedPet(t *testing.T, id uint64, bonus, scalar uint16) []byte {
	t.Helper()
	pet := struct {
		Id                *big.Int
		Rarity            uint8
		CombatBonus       uint16
		CombatBonusScalar uint16
	}{Id: new(big.Int).SetUint64(id), Rarity: 2, CombatBonus: bonus, CombatBonusScalar: scalar}
	return mustOutputs(t, PetCoreABI, "getPetV2", pet)
}

func TestGetPetV2Scavenger(t *testing.T) {
	tests := []struct {
		name    string
		bonus   uint16
		scalar  uint16
		wantPct float64
	}{
		{"scavenger1", 130, 10, 10},
		{"scavenger2", 131, 15, 15},
		{"scavenger3", 132, 25, 25},
		{"unrelated bonus", 45, 20, 0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := packedPet(t, uint64(100+i), tt.bonus, tt.scalar)
			fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
				return out, nil
			}}
			p := newTestPool(t, dfk.ChainDFK, fc)

			snap, err := p.GetPetV2(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0b"), uint64(100+i), big.NewInt(1000))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPct, snap.ScavengerPct())
		})
	}
}

func TestGetProfileName(t *testing.T) {
	out := mustOutputs(t, ProfilesABI, "addressToProfile",
		common.HexToAddress("0x02"), "Moonbeam", uint64(1_650_000_000), uint8(4))
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return out, nil
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	name, err := p.GetProfileName(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0c"), common.HexToAddress("0x02"))
	require.NoError(t, err)
	assert.Equal(t, "Moonbeam", name)
}

func TestGetProfileNameRevert(t *testing.T) {
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return nil, revertError{"execution reverted"}
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	name, err := p.GetProfileName(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0c"), common.HexToAddress("0x03"))
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Equal(t, 1, fc.calls(), "reverts must not retry")
}

func TestGetQuestType(t *testing.T) {
	out := mustOutputs(t, QuestCoreViewABI, "getQuest", big.NewInt(987), uint8(9))
	fc := &fakeClient{callFn: func(_ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		return out, nil
	}}
	p := newTestPool(t, dfk.ChainDFK, fc)

	qt, err := p.GetQuestType(context.Background(), dfk.ChainDFK, common.HexToAddress("0x0d"), big.NewInt(987))
	require.NoError(t, err)
	assert.Equal(t, uint8(9), qt)
}

func TestEventID(t *testing.T) {
	const depositABI = `[{"name":"Deposit","type":"event","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"pid","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256"}]}]`
	p := NewPool(Config{})
	c := p.Bind(dfk.ChainDFK, common.HexToAddress("0x0e"), depositABI)

	id, err := c.EventID("Deposit")
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, id)

	_, err = c.EventID("Withdraw")
	assert.Error(t, err)
}

func TestUnpackLogValues(t *testing.T) {
	const rewardABI = `[{"name":"RewardMinted","type":"event","inputs":[
		{"name":"item","type":"address"},
		{"name":"amount","type":"uint256"}]}]`
	p := NewPool(Config{})
	c := p.Bind(dfk.ChainDFK, common.HexToAddress("0x0f"), rewardABI)

	parsed, err := abi.JSON(strings.NewReader(rewardABI))
	require.NoError(t, err)
	data, err := parsed.Events["RewardMinted"].Inputs.Pack(
		common.HexToAddress("0xbeef"), big.NewInt(3))
	require.NoError(t, err)

	values, err := c.UnpackLogValues("RewardMinted", data)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, common.HexToAddress("0xbeef"), values[0])
	assert.Equal(t, big.NewInt(3), values[1])
}
