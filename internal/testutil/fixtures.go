package testutil

import (
	"time"

	"github.com/mcoot/quizwordz/internal/model"
)

// BaseTime is the fixed instant tests start their clocks at
var BaseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// WaitingSession builds a fresh session in the waiting state
func WaitingSession(id model.SessionID, secret string) *model.Session {
	return &model.Session{
		ID:         id,
		HostID:     "host-1",
		SecretWord: secret,
		Status:     model.SessionStatusWaiting,
		Players:    []model.Player{},
		CreatedAt:  BaseTime,
		UpdatedAt:  BaseTime,
	}
}

// AddPlayer is a mutation that appends a player to the roster
func AddPlayer(id model.PlayerID, name string) model.Mutation {
	return func(s *model.Session) (model.Change, error) {
		if err := s.CheckJoinable(); err != nil {
			return model.Change{}, err
		}
		s.Players = append(s.Players, model.Player{ID: id, DisplayName: name, Guesses: []model.Guess{}, JoinedAt: BaseTime})
		return model.Change{Type: model.EventPlayerJoined, PlayerID: id}, nil
	}
}
