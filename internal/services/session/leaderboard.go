package session

import (
	"sort"
	"time"

	"github.com/mcoot/quizwordz/internal/model"
)

// LeaderboardEntry is one ranked row of a session's standings
type LeaderboardEntry struct {
	Rank          int            `json:"rank"`
	PlayerID      model.PlayerID `json:"player_id"`
	DisplayName   string         `json:"name"`
	Solved        bool           `json:"solved"`
	Attempts      int            `json:"attempts"`
	TimeCompleted *time.Time     `json:"time_completed,omitempty"`
	// SolveMillis is the time from session start to solve
	SolveMillis *int64 `json:"solve_ms,omitempty"`
	Winner      bool   `json:"winner"`
}

// Leaderboard ranks solved players by solve time, then lists unsolved
// players in join order. Unsolved players share the rank after the last solver.
func Leaderboard(s *model.Session) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(s.Players))
	for _, p := range s.Players {
		e := LeaderboardEntry{
			PlayerID:      p.ID,
			DisplayName:   p.DisplayName,
			Solved:        p.Solved,
			Attempts:      len(p.Guesses),
			TimeCompleted: p.TimeCompleted,
			Winner:        s.WinnerID != nil && *s.WinnerID == p.ID,
		}
		if p.Solved && p.TimeCompleted != nil && s.StartedAt != nil {
			ms := p.TimeCompleted.Sub(*s.StartedAt).Milliseconds()
			e.SolveMillis = &ms
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Solved != b.Solved {
			return a.Solved
		}
		if !a.Solved {
			return false
		}
		return a.TimeCompleted.Before(*b.TimeCompleted)
	})

	rank := 0
	for i := range entries {
		if entries[i].Solved || rank == 0 || entries[i-1].Solved {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}
