package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/session"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// NoContent writes a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Guess represents a scored guess. Result is the compact verdict code,
// one of c/p/a per letter.
type Guess struct {
	Word   string       `json:"word"`
	Result model.Result `json:"result"`
}

// GuessFromModel converts a model.Guess
func GuessFromModel(g model.Guess) Guess {
	return Guess{Word: g.Word, Result: g.Result}
}

// Player represents a roster entry. Field names match model.Player so
// clients can decode API responses and stream snapshots the same way.
type Player struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"name"`
	Guesses       []Guess    `json:"guesses"`
	Solved        bool       `json:"solved"`
	AttemptsLeft  int        `json:"attempts_left"`
	TimeCompleted *time.Time `json:"time_completed,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
}

// PlayerFromModel converts a model.Player
func PlayerFromModel(p *model.Player) Player {
	guesses := make([]Guess, len(p.Guesses))
	for i, g := range p.Guesses {
		guesses[i] = GuessFromModel(g)
	}
	return Player{
		ID:            string(p.ID),
		DisplayName:   p.DisplayName,
		Guesses:       guesses,
		Solved:        p.Solved,
		AttemptsLeft:  p.AttemptsLeft(),
		TimeCompleted: p.TimeCompleted,
		JoinedAt:      p.JoinedAt,
	}
}

// Session represents a session in API responses
type Session struct {
	ID         string     `json:"id"`
	HostID     string     `json:"host_id"`
	SecretWord string     `json:"secret_word"`
	Status     string     `json:"status"`
	Players    []Player   `json:"players"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	WinnerID   *string    `json:"winner_id,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SessionFromModel converts a model.Session
func SessionFromModel(s *model.Session) Session {
	players := make([]Player, len(s.Players))
	for i := range s.Players {
		players[i] = PlayerFromModel(&s.Players[i])
	}
	var winner *string
	if s.WinnerID != nil {
		w := string(*s.WinnerID)
		winner = &w
	}
	return Session{
		ID:         string(s.ID),
		HostID:     string(s.HostID),
		SecretWord: s.SecretWord,
		Status:     string(s.Status),
		Players:    players,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		WinnerID:   winner,
		Version:    s.Version,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// JoinResponse is the response for joining a session
type JoinResponse struct {
	PlayerID string  `json:"player_id"`
	Session  Session `json:"session"`
}

// GuessResponse is the response for submitting a guess
type GuessResponse struct {
	Guess   Guess   `json:"guess"`
	Solved  bool    `json:"solved"`
	Session Session `json:"session"`
}

// LeaderboardResponse is the response for the leaderboard endpoint
type LeaderboardResponse struct {
	SessionID string                     `json:"session_id"`
	Status    string                     `json:"status"`
	WinnerID  *string                    `json:"winner_id,omitempty"`
	Entries   []session.LeaderboardEntry `json:"entries"`
}

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Hubs    int    `json:"hubs"`
}
