package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// osuPlatformID is the platform row carrying the in-game numeric identity.
const osuPlatformID = 1

// Postgres implements Store on the tournament schema.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Snapshot(ctx context.Context, matchID int64) (*Snapshot, error) {
	snap := &Snapshot{}

	var lobbyID sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT m.id, m.ongoing, m.round_id, m.lobby_id, r.id, r.best_of, r.map_pool_id
		   FROM matches m
		   JOIN rounds r ON r.id = m.round_id
		  WHERE m.id = $1`, matchID).
		Scan(&snap.ID, &snap.Ongoing, &snap.RoundID, &lobbyID,
			&snap.Round.ID, &snap.Round.BestOf, &snap.Round.MapPoolID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read match %d: %w", matchID, err)
	}
	snap.LobbyID = lobbyID.String

	if err := p.loadParticipants(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.loadMaps(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *Postgres) loadParticipants(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT mp.id, t.name, mpp.id, up.name, COALESCE(upl.value, 0), mpp.state
		   FROM match_participants mp
		   JOIN participants pa ON pa.id = mp.participant_id
		   JOIN teams t ON t.id = pa.team_id
		   JOIN match_participant_players mpp ON mpp.match_participant_id = mp.id
		   JOIN team_members tm ON tm.id = mpp.team_member_id
		   JOIN user_profiles up ON up.id = tm.user_profile_id
		   LEFT JOIN user_platforms upl
		     ON upl.user_profile_id = up.id AND upl.platform_id = $2
		  WHERE mp.match_id = $1
		  ORDER BY mp.id, mpp.id`, snap.ID, osuPlatformID)
	if err != nil {
		return fmt.Errorf("read participants for match %d: %w", snap.ID, err)
	}
	defer rows.Close()

	byID := make(map[int64]*Participant)
	var order []int64
	for rows.Next() {
		var (
			pid  int64
			team string
			pl   Player
		)
		if err := rows.Scan(&pid, &team, &pl.ID, &pl.Name, &pl.PlatformID, &pl.State); err != nil {
			return err
		}
		pl.ParticipantID = pid
		part, ok := byID[pid]
		if !ok {
			part = &Participant{ID: pid, TeamName: team}
			byID[pid] = part
			order = append(order, pid)
		}
		part.Players = append(part.Players, pl)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range order {
		snap.Participants = append(snap.Participants, *byID[id])
	}
	return nil
}

func (p *Postgres) loadMaps(ctx context.Context, snap *Snapshot) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT mm.id, mm.match_id, mm.created_at, mm.status, mm.aggregated,
		        mb.osu_id, COALESCE(mo.code, '')
		   FROM match_maps mm
		   JOIN map_pool_maps pm ON pm.id = mm.map_pool_map_id
		   JOIN maps mb ON mb.id = pm.map_id
		   LEFT JOIN map_pool_map_mods pmm ON pmm.map_pool_map_id = pm.id
		   LEFT JOIN mods mo ON mo.id = pmm.mod_id
		  WHERE mm.match_id = $1
		  ORDER BY mm.created_at, mm.id`, snap.ID)
	if err != nil {
		return fmt.Errorf("read maps for match %d: %w", snap.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MatchMap
		if err := rows.Scan(&m.ID, &m.MatchID, &m.CreatedAt, &m.Status, &m.Aggregated,
			&m.MapExternalID, &m.Mods); err != nil {
			return err
		}
		snap.Maps = append(snap.Maps, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	sort.SliceStable(snap.Maps, func(i, j int) bool {
		return snap.Maps[i].CreatedAt.Before(snap.Maps[j].CreatedAt)
	})
	return nil
}

func (p *Postgres) SetLobbyID(ctx context.Context, matchID int64, lobbyID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE matches SET lobby_id = $2 WHERE id = $1`, matchID, lobbyID)
	return err
}

func (p *Postgres) SetMatchOngoing(ctx context.Context, matchID int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE matches SET ongoing = true WHERE id = $1`, matchID)
	return err
}

func (p *Postgres) FinishMatch(ctx context.Context, matchID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE matches SET ongoing = false WHERE id = $1 AND ongoing = true`, matchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) SetPlayerState(ctx context.Context, playerID int64, state PlayerState) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE match_participant_players SET state = $2 WHERE id = $1`, playerID, int(state))
	return err
}

func (p *Postgres) SetAllPlayerStates(ctx context.Context, matchID int64, state PlayerState) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE match_participant_players mpp
		    SET state = $2
		   FROM match_participants mp
		  WHERE mp.id = mpp.match_participant_id AND mp.match_id = $1`,
		matchID, int(state))
	return err
}

func (p *Postgres) SetMapStatus(ctx context.Context, mapID int64, status MapStatus) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE match_maps SET status = $2 WHERE id = $1`, mapID, string(status))
	return err
}

func (p *Postgres) MarkMapAggregated(ctx context.Context, mapID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE match_maps SET aggregated = true WHERE id = $1 AND aggregated = false`, mapID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const scoreColumns = `
	SELECT s.id, s.match_map_id, s.match_participant_player_id,
	       COALESCE(upl.value, 0), s.score, s.failed, s.created_at
	  FROM scores s
	  JOIN match_participant_players mpp ON mpp.id = s.match_participant_player_id
	  JOIN team_members tm ON tm.id = mpp.team_member_id
	  JOIN user_profiles up ON up.id = tm.user_profile_id
	  LEFT JOIN user_platforms upl
	    ON upl.user_profile_id = up.id AND upl.platform_id = $2`

func (p *Postgres) ScoresForMap(ctx context.Context, mapID int64) ([]Score, error) {
	rows, err := p.db.QueryContext(ctx,
		scoreColumns+` WHERE s.match_map_id = $1 ORDER BY s.created_at, s.id`,
		mapID, osuPlatformID)
	if err != nil {
		return nil, fmt.Errorf("read scores for map %d: %w", mapID, err)
	}
	return scanScores(rows)
}

func (p *Postgres) ScoresForMatch(ctx context.Context, matchID int64) ([]Score, error) {
	rows, err := p.db.QueryContext(ctx,
		scoreColumns+`
		  JOIN match_maps mm ON mm.id = s.match_map_id
		 WHERE mm.match_id = $1 ORDER BY s.created_at, s.id`,
		matchID, osuPlatformID)
	if err != nil {
		return nil, fmt.Errorf("read scores for match %d: %w", matchID, err)
	}
	return scanScores(rows)
}

func scanScores(rows *sql.Rows) ([]Score, error) {
	defer rows.Close()
	var out []Score
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.ID, &s.MatchMapID, &s.PlayerID, &s.PlatformID,
			&s.Value, &s.Failed, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateScore(ctx context.Context, scoreID int64, value int64, failed bool) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE scores SET score = $2, failed = $3 WHERE id = $1`, scoreID, value, failed)
	return err
}

func (p *Postgres) CountOngoing(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE ongoing = true`).Scan(&n)
	return n, err
}

func (p *Postgres) OngoingMatchIDs(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id FROM matches WHERE ongoing = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) HeadOfQueue(ctx context.Context) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`SELECT match_id FROM match_queue WHERE position = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

func (p *Postgres) ConsumeQueuePosition(ctx context.Context, matchID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE match_queue SET position = NULL WHERE match_id = $1 AND position = 1`, matchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) CompactQueue(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE match_queue SET position = position - 1 WHERE position > 0`)
	return err
}
