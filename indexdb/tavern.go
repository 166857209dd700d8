// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"math/big"
	"strings"

	"github.com/dfklabs/indexd/dfk"
	"github.com/dfklabs/indexd/genes"
)

// GenesStatus tracks the async gene backfill of a listed hero.
type GenesStatus string

const (
	GenesPending  GenesStatus = "pending"
	GenesComplete GenesStatus = "complete"
	GenesFailed   GenesStatus = "failed"
)

// TavernHero is one marketplace listing snapshot. Recessives holds the
// three recessive gene values per slot in genes.SlotNames order once the
// backfill has run.
type TavernHero struct {
	HeroID       uint64
	Realm        dfk.Realm
	MainClass    int
	SubClass     int
	Profession   int
	Rarity       int
	Level        int
	Generation   int
	Stats        genes.Stats
	HP           int
	MP           int
	Stamina      int
	Active1      int
	Active2      int
	Passive1     int
	Passive2     int
	Summons      int
	MaxSummons   int
	StonesUsed   *int
	TraitScore   int
	CombatPower  int
	SalePriceWei *big.Int
	PriceNative  float64
	NativeToken  string
	GenesStatus  GenesStatus
	BatchID      string
	Recessives   *[genes.SlotCount][3]uint8
}

func geneColumns() []string {
	cols := make([]string, 0, genes.SlotCount*3)
	for _, slot := range genes.SlotNames {
		for r := 1; r <= 3; r++ {
			cols = append(cols, geneColumn(slot, r))
		}
	}
	return cols
}

// UpsertTavernHeroes writes listing snapshots, stamping each row with the
// hero's batch id. On conflict the listing fields refresh while decoded
// gene columns and genesStatus survive, so a hero relisted across batches
// keeps its backfilled genes.
func (d *DB) UpsertTavernHeroes(heroes []*TavernHero) error {
	return d.execInTx(func(tx *sql.Tx) error {
		for _, h := range heroes {
			var stones any
			if h.StonesUsed != nil {
				stones = *h.StonesUsed
			}
			if _, err := tx.Exec(`INSERT INTO tavern_heroes
				(heroId, realm, mainClass, subClass, profession, rarity, level, generation,
				 strength, agility, intelligence, wisdom, luck, vitality, endurance, dexterity,
				 hp, mp, stamina, active1, active2, passive1, passive2,
				 summons, maxSummons, stonesUsed, traitScore, combatPower,
				 salePriceWei, priceNative, nativeToken, genesStatus, batchId, indexedAt)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
				ON CONFLICT(heroId) DO UPDATE SET
					realm = excluded.realm,
					rarity = excluded.rarity,
					level = excluded.level,
					strength = excluded.strength, agility = excluded.agility,
					intelligence = excluded.intelligence, wisdom = excluded.wisdom,
					luck = excluded.luck, vitality = excluded.vitality,
					endurance = excluded.endurance, dexterity = excluded.dexterity,
					hp = excluded.hp, mp = excluded.mp, stamina = excluded.stamina,
					active1 = excluded.active1, active2 = excluded.active2,
					passive1 = excluded.passive1, passive2 = excluded.passive2,
					summons = excluded.summons, maxSummons = excluded.maxSummons,
					stonesUsed = excluded.stonesUsed,
					traitScore = excluded.traitScore, combatPower = excluded.combatPower,
					salePriceWei = excluded.salePriceWei, priceNative = excluded.priceNative,
					nativeToken = excluded.nativeToken,
					batchId = excluded.batchId, indexedAt = excluded.indexedAt`,
				h.HeroID, string(h.Realm), h.MainClass, h.SubClass, h.Profession, h.Rarity, h.Level, h.Generation,
				h.Stats.Strength, h.Stats.Agility, h.Stats.Intelligence, h.Stats.Wisdom,
				h.Stats.Luck, h.Stats.Vitality, h.Stats.Endurance, h.Stats.Dexterity,
				h.HP, h.MP, h.Stamina, h.Active1, h.Active2, h.Passive1, h.Passive2,
				h.Summons, h.MaxSummons, stones, h.TraitScore, h.CombatPower,
				h.SalePriceWei.String(), h.PriceNative, h.NativeToken, h.BatchID, d.now().Unix(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// SweepStaleTavernHeroes removes every hero not seen in the given batch.
// After a successful pass the whole table carries one batch id.
func (d *DB) SweepStaleTavernHeroes(batchID string) (int, error) {
	res, err := d.db.Exec("DELETE FROM tavern_heroes WHERE batchId != ?", batchID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// TavernBatchIDs returns the distinct batch ids present.
func (d *DB) TavernBatchIDs() ([]string, error) {
	rows, err := d.db.Query("SELECT DISTINCT batchId FROM tavern_heroes ORDER BY batchId")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PendingGeneHeroes lists hero ids awaiting the gene backfill.
func (d *DB) PendingGeneHeroes(limit int) ([]uint64, error) {
	rows, err := d.db.Query("SELECT heroId FROM tavern_heroes WHERE genesStatus = 'pending' ORDER BY heroId LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetHeroGenes writes the 36 recessive columns and completes the
// backfill for a hero.
func (d *DB) SetHeroGenes(heroID uint64, e *genes.Expanded) error {
	cols := geneColumns()
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	i := 0
	for s := 0; s < genes.SlotCount; s++ {
		for r := 1; r <= 3; r++ {
			sets = append(sets, cols[i]+" = ?")
			args = append(args, e.Recessive(s, r))
			i++
		}
	}
	sets = append(sets, "genesStatus = 'complete'")
	args = append(args, heroID)
	res, err := d.db.Exec("UPDATE tavern_heroes SET "+strings.Join(sets, ", ")+" WHERE heroId = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkHeroGenesFailed parks a hero whose gene fetch permanently failed.
func (d *DB) MarkHeroGenesFailed(heroID uint64) error {
	_, err := d.db.Exec("UPDATE tavern_heroes SET genesStatus = 'failed' WHERE heroId = ?", heroID)
	return err
}

// GetTavernHero loads one hero, including decoded genes when complete.
func (d *DB) GetTavernHero(heroID uint64) (*TavernHero, error) {
	heroes, err := d.queryTavernHeroes("WHERE heroId = ?", heroID)
	if err != nil {
		return nil, err
	}
	if len(heroes) == 0 {
		return nil, nil
	}
	return heroes[0], nil
}

// BargainCandidates returns the cheapest genes-complete heroes per
// rarity bucket. For regular summons a free summon must remain.
func (d *DB) BargainCandidates(requireSummons bool, perRarity int) ([]*TavernHero, error) {
	cond := "WHERE genesStatus = 'complete'"
	if requireSummons {
		cond += " AND (maxSummons - summons) >= 1"
	}
	all, err := d.queryTavernHeroes(cond + " ORDER BY rarity, priceNative, heroId")
	if err != nil {
		return nil, err
	}
	counts := map[int]int{}
	out := make([]*TavernHero, 0, len(all))
	for _, h := range all {
		if counts[h.Rarity] >= perRarity {
			continue
		}
		counts[h.Rarity]++
		out = append(out, h)
	}
	return out, nil
}

func (d *DB) queryTavernHeroes(cond string, args ...any) ([]*TavernHero, error) {
	cols := geneColumns()
	query := `SELECT heroId, realm, mainClass, subClass, profession, rarity, level, generation,
		strength, agility, intelligence, wisdom, luck, vitality, endurance, dexterity,
		hp, mp, stamina, active1, active2, passive1, passive2,
		summons, maxSummons, stonesUsed, traitScore, combatPower,
		salePriceWei, priceNative, nativeToken, genesStatus, batchId, ` +
		strings.Join(cols, ", ") + " FROM tavern_heroes " + cond
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TavernHero
	for rows.Next() {
		var (
			h        TavernHero
			realm    string
			stones   sql.NullInt64
			saleWei  string
			status   string
			geneVals = make([]sql.NullInt64, len(cols))
		)
		dest := []any{&h.HeroID, &realm, &h.MainClass, &h.SubClass, &h.Profession, &h.Rarity, &h.Level, &h.Generation,
			&h.Stats.Strength, &h.Stats.Agility, &h.Stats.Intelligence, &h.Stats.Wisdom,
			&h.Stats.Luck, &h.Stats.Vitality, &h.Stats.Endurance, &h.Stats.Dexterity,
			&h.HP, &h.MP, &h.Stamina, &h.Active1, &h.Active2, &h.Passive1, &h.Passive2,
			&h.Summons, &h.MaxSummons, &stones, &h.TraitScore, &h.CombatPower,
			&saleWei, &h.PriceNative, &h.NativeToken, &status, &h.BatchID}
		for i := range geneVals {
			dest = append(dest, &geneVals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		h.Realm = dfk.Realm(realm)
		h.GenesStatus = GenesStatus(status)
		if stones.Valid {
			v := int(stones.Int64)
			h.StonesUsed = &v
		}
		h.SalePriceWei, _ = new(big.Int).SetString(saleWei, 10)
		if h.GenesStatus == GenesComplete {
			var rec [genes.SlotCount][3]uint8
			i := 0
			for s := 0; s < genes.SlotCount; s++ {
				for r := 0; r < 3; r++ {
					if geneVals[i].Valid {
						rec[s][r] = uint8(geneVals[i].Int64)
					}
					i++
				}
			}
			h.Recessives = &rec
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
