// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package battles indexes finished PvP tournaments from the battles
// GraphQL API. Pages come newest first; a worker fleet drains a shared
// skip queue until it reaches battles already recorded.
package battles

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dfklabs/indexd/co"
	"github.com/dfklabs/indexd/indexdb"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/progress"
	"github.com/dfklabs/indexd/webclient"
)

var logger = log.WithContext("pkg", "battles")

var metricBattles = metrics.LazyLoad(func() metrics.CountMeter {
	return metrics.Counter("battles_indexed_total")
})

const (
	// Workers drain the shared skip queue concurrently.
	Workers = 5
	// BatchSize is the page size of one queue slot.
	BatchSize = 50

	// Scope names the indexer in progress reporting.
	Scope = "pvp"
)

// Indexer pulls tournaments until it catches up with the store.
type Indexer struct {
	client  *webclient.BattlesClient
	store   *indexdb.DB
	tracker *progress.Tracker
}

func New(store *indexdb.DB, tracker *progress.Tracker, client *webclient.BattlesClient) *Indexer {
	return &Indexer{client: client, store: store, tracker: tracker}
}

// Run performs one catch-up pass. Workers claim disjoint skip windows
// from a shared cursor; an idle worker immediately steals the next
// window, so a slow page never blocks the fleet. The pass ends when a
// page comes back empty or entirely below the resume watermark.
func (ix *Indexer) Run(ctx context.Context) (progress.Counters, error) {
	sinceID, err := ix.store.MaxTournamentID()
	if err != nil {
		return nil, err
	}

	var (
		nextSkip atomic.Int64
		stop     atomic.Bool
		mu       sync.Mutex
		counters = progress.Counters{}
		firstErr error
		goes     co.Goes
	)
	for w := 0; w < Workers; w++ {
		w := w
		ix.tracker.Begin(Scope, w, 0, 0, 0, 0)
		goes.Go(func() {
			for !stop.Load() && ctx.Err() == nil {
				skip := int(nextSkip.Add(BatchSize)) - BatchSize
				page, err := ix.client.FetchBattles(ctx, BatchSize, skip)
				if err != nil {
					stop.Store(true)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					ix.tracker.Fail(Scope, w, err.Error())
					return
				}
				delta, caughtUp := ix.indexPage(page, sinceID)
				mu.Lock()
				counters.Add(delta)
				mu.Unlock()
				ix.tracker.Advance(Scope, w, uint64(skip+len(page)), delta)
				if caughtUp {
					stop.Store(true)
				}
			}
			ix.tracker.Finish(Scope, w, true)
		})
	}
	goes.Wait()
	if firstErr != nil {
		return counters, firstErr
	}
	if err := ctx.Err(); err != nil {
		return counters, err
	}
	logger.Info("tournament pass done", "since", sinceID, "indexed", counters["tournaments"])
	return counters, nil
}

// indexPage stores every battle above sinceID. caughtUp reports that the
// page held nothing new, which ends the pass.
func (ix *Indexer) indexPage(page []*webclient.Battle, sinceID uint64) (progress.Counters, bool) {
	delta := progress.Counters{}
	fresh := false
	for _, b := range page {
		if b.ID <= sinceID {
			continue
		}
		fresh = true
		if err := ix.indexBattle(b, delta); err != nil {
			logger.Warn("storing tournament", "id", b.ID, "err", err)
			delta.Add(progress.Counters{"errors": 1})
		}
	}
	return delta, len(page) == 0 || !fresh
}

func (ix *Indexer) indexBattle(b *webclient.Battle, delta progress.Counters) error {
	restrictions, err := json.Marshal(restrictionsOf(b))
	if err != nil {
		return err
	}
	t := &indexdb.Tournament{
		TournamentID:   b.ID,
		Format:         b.Format,
		PartySize:      b.PartyCount,
		Restrictions:   restrictions,
		Rewards:        b.Rewards,
		HostPlayer:     b.HostPlayer,
		OpponentPlayer: b.OpponentPlayer,
		WinnerPlayer:   b.WinnerPlayer,
		TypeSignature:  TypeSignature(b),
	}

	var placements []*indexdb.TournamentPlacement
	var snapshots []*indexdb.HeroTournamentSnapshot
	if b.WinnerPlayer != "" {
		placements = append(placements, &indexdb.TournamentPlacement{
			TournamentID: b.ID, Player: b.WinnerPlayer, Placement: 1,
		})
	}
	if finalist := finalistPlayer(b); finalist != "" {
		placements = append(placements, &indexdb.TournamentPlacement{
			TournamentID: b.ID, Player: finalist, Placement: 2,
		})
	}
	for _, h := range b.WinnerHeroes {
		snapshots = append(snapshots, snapshot(b.ID, h, 1))
	}
	for _, h := range b.FinalistHeroes {
		snapshots = append(snapshots, snapshot(b.ID, h, 2))
	}

	inserted, err := ix.store.InsertTournament(t, placements, snapshots)
	if err != nil {
		return err
	}
	if inserted {
		delta.Add(progress.Counters{"tournaments": 1, "heroes": uint64(len(snapshots))})
		metricBattles().Add(1)
	}
	return nil
}

// finalistPlayer is the losing side: the owner of the finalist heroes,
// or whichever of host/opponent did not win.
func finalistPlayer(b *webclient.Battle) string {
	for _, h := range b.FinalistHeroes {
		if h.Owner != "" {
			return h.Owner
		}
	}
	if b.HostPlayer != b.WinnerPlayer {
		return b.HostPlayer
	}
	return b.OpponentPlayer
}

func snapshot(tournamentID uint64, h *webclient.BattleHero, placement int) *indexdb.HeroTournamentSnapshot {
	return &indexdb.HeroTournamentSnapshot{
		TournamentID:     tournamentID,
		HeroID:           h.ID,
		Owner:            h.Owner,
		Placement:        placement,
		MainClass:        h.MainClass,
		SubClass:         h.SubClass,
		Level:            h.Level,
		Rarity:           h.Rarity,
		Generation:       h.Generation,
		Strength:         h.Strength,
		Agility:          h.Agility,
		Intelligence:     h.Intelligence,
		Wisdom:           h.Wisdom,
		Luck:             h.Luck,
		Vitality:         h.Vitality,
		Endurance:        h.Endurance,
		Dexterity:        h.Dexterity,
		Active1:          h.Active1,
		Active2:          h.Active2,
		Passive1:         h.Passive1,
		Passive2:         h.Passive2,
		StatGenes:        h.StatGenes,
		SummonsRemaining: h.SummonsRemaining,
		CombatPower:      CombatPowerScore(h),
	}
}

// CombatPowerScore is the sum of the eight primary stats.
func CombatPowerScore(h *webclient.BattleHero) int {
	return h.Strength + h.Agility + h.Intelligence + h.Wisdom +
		h.Luck + h.Vitality + h.Endurance + h.Dexterity
}

// battleRestrictions is the canonical JSON shape persisted per
// tournament.
type battleRestrictions struct {
	MinLevel             int    `json:"minLevel"`
	MaxLevel             int    `json:"maxLevel"`
	MinRarity            int    `json:"minRarity"`
	MaxRarity            int    `json:"maxRarity"`
	UniqueHeroes         bool   `json:"uniqueHeroes"`
	NoTripleClass        bool   `json:"noTripleClass"`
	ExcludedClassMask    uint32 `json:"excludedClassMask"`
	ConsolationClassMask uint32 `json:"consolationClassMask"`
	OriginRealmMask      uint32 `json:"originRealmMask"`
	IncludedClass        *int   `json:"includedClass,omitempty"`
	MinStat              int    `json:"minStat"`
	MaxStat              int    `json:"maxStat"`
	MinTeamScore         int    `json:"minTeamScore"`
	MaxTeamScore         int    `json:"maxTeamScore"`
}

func restrictionsOf(b *webclient.Battle) battleRestrictions {
	return battleRestrictions{
		MinLevel:             b.MinLevel,
		MaxLevel:             b.MaxLevel,
		MinRarity:            b.MinRarity,
		MaxRarity:            b.MaxRarity,
		UniqueHeroes:         b.UniqueHeroes,
		NoTripleClass:        b.NoTripleClass,
		ExcludedClassMask:    b.ExcludedClassMask,
		ConsolationClassMask: b.ConsolationClassMask,
		OriginRealmMask:      b.OriginRealmMask,
		IncludedClass:        b.IncludedClass,
		MinStat:              b.MinStat,
		MaxStat:              b.MaxStat,
		MinTeamScore:         b.MinTeamScore,
		MaxTeamScore:         b.MaxTeamScore,
	}
}

// TypeSignature canonicalizes a restriction bundle to a short string so
// similar tournaments group together. Components appear in a fixed
// order and only when they differ from the unrestricted default; a
// fully open battle signs as "open".
func TypeSignature(b *webclient.Battle) string {
	var parts []string
	if b.MinLevel != 0 || b.MaxLevel != 0 {
		parts = append(parts, fmt.Sprintf("lv%d-%d", b.MinLevel, b.MaxLevel))
	}
	if b.MinRarity != 0 || b.MaxRarity != 0 {
		parts = append(parts, fmt.Sprintf("r%d-%d", b.MinRarity, b.MaxRarity))
	}
	if b.PartyCount != 0 {
		parts = append(parts, fmt.Sprintf("p%d", b.PartyCount))
	}
	if b.UniqueHeroes {
		parts = append(parts, "unique")
	}
	if b.NoTripleClass {
		parts = append(parts, "no3x")
	}
	if b.ExcludedClassMask != 0 {
		parts = append(parts, fmt.Sprintf("excl%d", b.ExcludedClassMask))
	}
	if b.ConsolationClassMask != 0 {
		parts = append(parts, fmt.Sprintf("cons%d", b.ConsolationClassMask))
	}
	if b.OriginRealmMask != 0 {
		parts = append(parts, fmt.Sprintf("orig%d", b.OriginRealmMask))
	}
	if b.IncludedClass != nil {
		parts = append(parts, fmt.Sprintf("inc%d", *b.IncludedClass))
	}
	if b.MinStat != 0 || b.MaxStat != 0 {
		parts = append(parts, fmt.Sprintf("stat%d-%d", b.MinStat, b.MaxStat))
	}
	if b.MinTeamScore != 0 || b.MaxTeamScore != 0 {
		parts = append(parts, fmt.Sprintf("team%d-%d", b.MinTeamScore, b.MaxTeamScore))
	}
	if len(parts) == 0 {
		return "open"
	}
	return strings.Join(parts, "_")
}

// SignatureGroups counts recorded tournaments per type signature.
func (ix *Indexer) SignatureGroups() (map[string]int, error) {
	rows, err := ix.store.Raw().Query(
		"SELECT typeSignature, COUNT(*) FROM pvp_tournaments GROUP BY typeSignature")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var sig string
		var n int
		if err := rows.Scan(&sig, &n); err != nil {
			return nil, err
		}
		out[sig] = n
	}
	return out, rows.Err()
}

// Signatures lists the known signatures sorted for stable output.
func (ix *Indexer) Signatures() ([]string, error) {
	groups, err := ix.SignatureGroups()
	if err != nil {
		return nil, err
	}
	sigs := make([]string, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs, nil
}
