package match

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vashgg/refbot/internal/store"
)

// MapWins tallies, per participant, the maps on which that side's summed
// score strictly exceeds the other side's. A tied map counts for neither.
func MapWins(snap *store.Snapshot, scores []store.Score) map[int64]int {
	wins := make(map[int64]int, len(snap.Participants))
	for _, p := range snap.Participants {
		wins[p.ID] = 0
	}

	// participant id → summed score, per map
	totals := make(map[int64]map[int64]int64)
	for _, s := range scores {
		pid, ok := snap.ParticipantOf(s.PlayerID)
		if !ok {
			continue
		}
		if totals[s.MatchMapID] == nil {
			totals[s.MatchMapID] = make(map[int64]int64)
		}
		totals[s.MatchMapID][pid] += s.Value
	}

	if len(snap.Participants) != 2 {
		return wins
	}
	a, b := snap.Participants[0].ID, snap.Participants[1].ID
	for _, perMap := range totals {
		switch {
		case perMap[a] > perMap[b]:
			wins[a]++
		case perMap[b] > perMap[a]:
			wins[b]++
		}
	}
	return wins
}

// Winner returns the participant whose map-win count exceeds bestOf/2
// (integer division: best-of-3 needs 2 wins, best-of-5 needs 3).
func Winner(snap *store.Snapshot, scores []store.Score) (store.Participant, bool) {
	if len(snap.Participants) != 2 {
		return store.Participant{}, false
	}
	threshold := snap.Round.BestOf / 2
	wins := MapWins(snap, scores)
	for _, p := range snap.Participants {
		if wins[p.ID] > threshold {
			return p, true
		}
	}
	return store.Participant{}, false
}

// evaluateWin recomputes the tallies after an aggregation pass and, on a
// decided match, runs the completion sequence exactly once: win notice,
// lobby close, terminal player states. The FinishMatch guard is what makes
// re-entry safe.
func (r *Runner) evaluateWin(ctx context.Context, snap *store.Snapshot) error {
	scores, err := r.cfg.Store.ScoresForMatch(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("read match scores: %w", err)
	}

	winner, ok := Winner(snap, scores)
	if !ok {
		return nil
	}

	applied, err := r.cfg.Store.FinishMatch(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if !applied {
		return nil
	}

	r.log.Info("match won",
		zap.Int64("participant_id", winner.ID),
		zap.String("team", winner.TeamName))

	representative := winner.TeamName
	if len(winner.Players) > 0 {
		representative = winner.Players[0].Name
	}
	text := r.render("match.won", map[string]string{"Winner": representative},
		fmt.Sprintf("The match has been won by %s", representative))

	lobby := r.currentLobby()
	if err := lobby.SendMessage(ctx, text); err != nil {
		r.log.Warn("win notice failed", zap.Error(err))
	}
	if err := lobby.Close(ctx); err != nil {
		r.log.Warn("lobby close failed", zap.Error(err))
	}
	if err := r.cfg.Store.SetAllPlayerStates(ctx, snap.ID, store.StateNotJoined); err != nil {
		r.log.Warn("terminal player states failed", zap.Error(err))
	}
	return nil
}
