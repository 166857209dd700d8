// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tavern snapshots the hero marketplace. A worker fleet pages
// through the REST listings, normalises each hero and stamps it with the
// run's batch id; after a full pass every hero missing from the batch is
// swept. A separate backfill pool resolves the recessive genes of listed
// heroes through the genes GraphQL API.
package tavern

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/genes"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/webclient"
)

var logger = log.WithContext("pkg", "tavern")

var metricPasses = metrics.LazyLoad(func() metrics.CountVecMeter {
	return metrics.CounterVec("tavern_passes_total", []string{"outcome"})
})

const (
	// SnapshotWorkers is the fetch fan-out per fleet pass.
	SnapshotWorkers = 10
	// PageSize is the listing window each worker requests.
	PageSize = 100
	// MaxHeroes caps a runaway snapshot.
	MaxHeroes = 50_000
	// emptyPassesToStop ends the snapshot once this many consecutive
	// fleet passes came back with every window empty.
	emptyPassesToStop = 2

	// Scope names the snapshot in progress and checkpoint reporting.
	Scope = "tavern"
)

var weiPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Config wires a snapshot run.
type Config struct {
	Marketplace *webclient.MarketplaceClient
	// StoneTiers maps enhancement-stone contract addresses to their
	// tier. Listings with an unknown stone keep a zero tier.
	StoneTiers map[common.Address]int
}

// Snapshot runs full marketplace passes.
type Snapshot struct {
	cfg     Config
	store   *indexdb.DB
	tracker *progress.Tracker
}

func NewSnapshot(store *indexdb.DB, tracker *progress.Tracker, cfg Config) *Snapshot {
	return &Snapshot{cfg: cfg, store: store, tracker: tracker}
}

// Run performs one complete snapshot: page until two all-empty passes
// (or the cap), upsert every normalised hero under a fresh batch id,
// then sweep heroes absent from the batch.
func (s *Snapshot) Run(ctx context.Context) (progress.Counters, error) {
	batchID := fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102T150405"), time.Now().UnixNano()%1000)
	counters := progress.Counters{}
	s.tracker.Begin(Scope, 0, 0, MaxHeroes, 0, MaxHeroes)

	var (
		offset      int
		emptyPasses int
		total       int
	)
	for emptyPasses < emptyPassesToStop && total < MaxHeroes {
		pages, err := s.fetchPass(ctx, offset)
		if err != nil {
			s.tracker.Fail(Scope, 0, err.Error())
			return counters, err
		}
		allEmpty := true
		passDelta := progress.Counters{}
		var heroes []*indexdb.TavernHero
		for _, page := range pages {
			if len(page) > 0 {
				allEmpty = false
			}
			for _, listing := range page {
				h, ok := s.normalise(listing, batchID, passDelta)
				if !ok {
					continue
				}
				heroes = append(heroes, h)
			}
		}
		if err := s.store.UpsertTavernHeroes(heroes); err != nil {
			s.tracker.Fail(Scope, 0, err.Error())
			return counters, err
		}
		total += len(heroes)
		counters.Add(passDelta)
		s.tracker.Advance(Scope, 0, uint64(total), passDelta)

		if allEmpty {
			emptyPasses++
		} else {
			emptyPasses = 0
		}
		offset += SnapshotWorkers * PageSize
	}

	swept, err := s.store.SweepStaleTavernHeroes(batchID)
	if err != nil {
		s.tracker.Fail(Scope, 0, err.Error())
		return counters, err
	}
	counters.Add(progress.Counters{"swept": uint64(swept)})
	s.tracker.Finish(Scope, 0, true)
	metricPasses().AddWithLabel(1, map[string]string{"outcome": "complete"})
	logger.Info("marketplace snapshot done",
		"batch", batchID, "heroes", total, "swept", swept)
	return counters, nil
}

// fetchPass fans SnapshotWorkers fetches over disjoint windows starting
// at base. The first fetch error wins; the rest finish regardless.
func (s *Snapshot) fetchPass(ctx context.Context, base int) ([][]*webclient.Listing, error) {
	pages := make([][]*webclient.Listing, SnapshotWorkers)
	errs := make([]error, SnapshotWorkers)
	var goes co.Goes
	for i := 0; i < SnapshotWorkers; i++ {
		i := i
		goes.Go(func() {
			pages[i], errs[i] = s.cfg.Marketplace.FetchPage(ctx, PageSize, base+i*PageSize)
		})
	}
	goes.Wait()
	for _, err := range errs {
		if err != nil {
			metricPasses().AddWithLabel(1, map[string]string{"outcome": "error"})
			return nil, err
		}
	}
	return pages, nil
}

func (s *Snapshot) normalise(l *webclient.Listing, batchID string, delta progress.Counters) (*indexdb.TavernHero, bool) {
	realm, ok := dfk.RealmOfNetwork(l.Network)
	if !ok {
		realm, ok = dfk.RealmOfHeroID(l.ID)
	}
	if !ok {
		delta.Add(progress.Counters{"unknownRealm": 1})
		logger.Debug("listing with no resolvable realm", "hero", l.ID, "network", l.Network)
		return nil, false
	}

	saleWei, ok := new(big.Int).SetString(l.SalePrice, 10)
	if !ok {
		delta.Add(progress.Counters{"badPrice": 1})
		return nil, false
	}
	priceNative, _ := new(big.Float).Quo(new(big.Float).SetInt(saleWei), weiPerToken).Float64()

	stats := genes.Stats{
		Strength: l.Strength, Agility: l.Agility,
		Intelligence: l.Intelligence, Wisdom: l.Wisdom,
		Luck: l.Luck, Vitality: l.Vitality,
		Endurance: l.Endurance, Dexterity: l.Dexterity,
	}
	h := &indexdb.TavernHero{
		HeroID:       l.ID,
		Realm:        realm,
		MainClass:    l.MainClass,
		SubClass:     l.SubClass,
		Profession:   l.Profession,
		Rarity:       l.Rarity,
		Level:        l.Level,
		Generation:   l.Generation,
		Stats:        stats,
		HP:           l.HP,
		MP:           l.MP,
		Stamina:      l.Stamina,
		Active1:      l.Active1,
		Active2:      l.Active2,
		Passive1:     l.Passive1,
		Passive2:     l.Passive2,
		Summons:      l.Summons,
		MaxSummons:   l.MaxSummons,
		TraitScore:   genes.TraitScore(l.Active1, l.Active2, l.Passive1, l.Passive2),
		CombatPower:  genes.CombatPower(stats),
		SalePriceWei: saleWei,
		PriceNative:  priceNative,
		NativeToken:  nativeToken(realm),
		GenesStatus:  indexdb.GenesPending,
		BatchID:      batchID,
	}
	if stone := s.stoneTier(l.SummonStone); stone != nil {
		h.StonesUsed = stone
	}
	delta.Add(progress.Counters{"heroes": 1})
	return h, true
}

// stoneTier resolves the summon stone address; nil means no stone.
func (s *Snapshot) stoneTier(addr string) *int {
	if addr == "" {
		return nil
	}
	a := common.HexToAddress(addr)
	if a == (common.Address{}) {
		return nil
	}
	tier := s.cfg.StoneTiers[a]
	return &tier
}

func nativeToken(realm dfk.Realm) string {
	if realm == dfk.RealmCrystalvale {
		return "CRYSTAL"
	}
	return "JEWEL"
}

// backfill

const (
	// BackfillWorkersDefault bounds concurrent gene fetches.
	BackfillWorkersDefault = 4
	// BackfillWorkersMax is the hard concurrency ceiling.
	BackfillWorkersMax = 8

	backfillPull = 256
)

// Backfill resolves recessive genes for heroes still pending.
type Backfill struct {
	store   *indexdb.DB
	genes   *webclient.GenesClient
	decoder genes.Decoder
	sem     *semaphore.Weighted
}

func NewBackfill(store *indexdb.DB, gc *webclient.GenesClient, workers int) *Backfill {
	if workers <= 0 {
		workers = BackfillWorkersDefault
	}
	if workers > BackfillWorkersMax {
		workers = BackfillWorkersMax
	}
	return &Backfill{
		store:   store,
		genes:   gc,
		decoder: genes.KaiDecoder{},
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Run drains the pending set. A hero whose fetch or decode fails is
// parked as failed so the next snapshot can retry it.
func (b *Backfill) Run(ctx context.Context) (progress.Counters, error) {
	counters := progress.Counters{}
	var mu sync.Mutex
	for {
		if err := ctx.Err(); err != nil {
			return counters, err
		}
		ids, err := b.store.PendingGeneHeroes(backfillPull)
		if err != nil {
			return counters, err
		}
		if len(ids) == 0 {
			return counters, nil
		}
		var goes co.Goes
		for _, id := range ids {
			id := id
			if err := b.sem.Acquire(ctx, 1); err != nil {
				goes.Wait()
				return counters, err
			}
			goes.Go(func() {
				defer b.sem.Release(1)
				delta := b.one(ctx, id)
				mu.Lock()
				counters.Add(delta)
				mu.Unlock()
			})
		}
		goes.Wait()
	}
}

func (b *Backfill) one(ctx context.Context, id uint64) progress.Counters {
	hg, err := b.genes.FetchHeroGenes(ctx, id)
	if err != nil {
		logger.Debug("gene fetch failed", "hero", id, "err", err)
		if err := b.store.MarkHeroGenesFailed(id); err != nil {
			logger.Warn("marking hero failed", "hero", id, "err", err)
		}
		return progress.Counters{"genesFailed": 1}
	}
	expanded, err := b.decoder.DecodeStatGenes(hg.StatGenes)
	if err != nil {
		logger.Debug("gene decode failed", "hero", id, "err", err)
		if err := b.store.MarkHeroGenesFailed(id); err != nil {
			logger.Warn("marking hero failed", "hero", id, "err", err)
		}
		return progress.Counters{"genesFailed": 1}
	}
	if err := b.store.SetHeroGenes(id, expanded); err != nil {
		logger.Warn("writing genes", "hero", id, "err", err)
		return progress.Counters{"genesFailed": 1}
	}
	return progress.Counters{"genesDecoded": 1}
}
