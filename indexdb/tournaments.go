// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package indexdb

import (
	"database/sql"
	"encoding/json"
)

// Tournament is one PvP battle with its canonical restriction signature.
type Tournament struct {
	TournamentID   uint64
	Format         string
	PartySize      int
	Restrictions   json.RawMessage
	Rewards        json.RawMessage
	HostPlayer     string
	OpponentPlayer string
	WinnerPlayer   string
	TypeSignature  string
}

// TournamentPlacement links a player to a finishing position.
type TournamentPlacement struct {
	TournamentID uint64
	Player       string
	Placement    int
}

// HeroTournamentSnapshot freezes a hero's state at battle time.
type HeroTournamentSnapshot struct {
	TournamentID     uint64
	HeroID           uint64
	Owner            string
	Placement        int
	MainClass        int
	SubClass         int
	Level            int
	Rarity           int
	Generation       int
	Strength         int
	Agility          int
	Intelligence     int
	Wisdom           int
	Luck             int
	Vitality         int
	Endurance        int
	Dexterity        int
	Active1          int
	Active2          int
	Passive1         int
	Passive2         int
	StatGenes        string
	SummonsRemaining int
	CombatPower      int
}

// InsertTournament writes a tournament with its placements and hero
// snapshots in one transaction, skipping anything already recorded.
func (d *DB) InsertTournament(t *Tournament, placements []*TournamentPlacement, snapshots []*HeroTournamentSnapshot) (bool, error) {
	inserted := false
	err := d.execInTx(func(tx *sql.Tx) error {
		var opponent, winner any
		if t.OpponentPlayer != "" {
			opponent = t.OpponentPlayer
		}
		if t.WinnerPlayer != "" {
			winner = t.WinnerPlayer
		}
		res, err := tx.Exec(`INSERT INTO pvp_tournaments
			(tournamentId, format, partySize, restrictions, rewards, hostPlayer, opponentPlayer, winnerPlayer, typeSignature)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(tournamentId) DO NOTHING`,
			t.TournamentID, t.Format, t.PartySize, string(t.Restrictions), string(t.Rewards),
			t.HostPlayer, opponent, winner, t.TypeSignature)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0

		for _, p := range placements {
			if _, err := tx.Exec(`INSERT INTO tournament_placements (tournamentId, player, placement)
				VALUES (?, ?, ?) ON CONFLICT(tournamentId, player) DO NOTHING`,
				p.TournamentID, p.Player, p.Placement); err != nil {
				return err
			}
		}
		for _, s := range snapshots {
			if _, err := tx.Exec(`INSERT INTO hero_tournament_snapshots
				(tournamentId, heroId, owner, placement, mainClass, subClass, level, rarity, generation,
				 strength, agility, intelligence, wisdom, luck, vitality, endurance, dexterity,
				 active1, active2, passive1, passive2, statGenes, summonsRemaining, combatPower)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(tournamentId, heroId) DO NOTHING`,
				s.TournamentID, s.HeroID, s.Owner, s.Placement, s.MainClass, s.SubClass, s.Level, s.Rarity, s.Generation,
				s.Strength, s.Agility, s.Intelligence, s.Wisdom, s.Luck, s.Vitality, s.Endurance, s.Dexterity,
				s.Active1, s.Active2, s.Passive1, s.Passive2, s.StatGenes, s.SummonsRemaining, s.CombatPower); err != nil {
				return err
			}
		}
		return nil
	})
	return inserted, err
}

// CountTournaments is a status helper.
func (d *DB) CountTournaments() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM pvp_tournaments").Scan(&n)
	return n, err
}

// MaxTournamentID returns the highest recorded id, 0 when empty.
func (d *DB) MaxTournamentID() (uint64, error) {
	var id sql.NullInt64
	err := d.db.QueryRow("SELECT MAX(tournamentId) FROM pvp_tournaments").Scan(&id)
	if err != nil {
		return 0, err
	}
	return uint64(id.Int64), nil
}
