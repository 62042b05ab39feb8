package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/quizwordz/internal/dependencies/mocks"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/directory"
	"github.com/mcoot/quizwordz/internal/storage/memory"
	qwztest "github.com/mcoot/quizwordz/internal/testutil"
)

type ControllerSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	metrics    *metrics.Metrics
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.storage = memory.New()
	logger := qwztest.NopLogger()
	s.clock = mocks.NewMockClock(qwztest.BaseTime)
	s.random = mocks.NewMockRandom()
	s.metrics = metrics.New()
	dir := directory.New(s.storage, s.clock, s.random, s.metrics, logger)
	s.controller = NewController(s.storage, dir, s.clock, s.random, s.metrics, logger, DefaultConfig())
	s.ctx = context.Background()
}

// createSession creates a waiting session with ID "sess000001" and secret CRANE
func (s *ControllerSuite) createSession() *model.Session {
	s.random.QueueString("sess000001")
	session, err := s.controller.CreateSession(s.ctx, "host-1", "CRANE")
	s.Require().NoError(err)
	return session
}

func (s *ControllerSuite) join(id model.SessionID, playerID model.PlayerID) {
	_, _, err := s.controller.JoinSession(s.ctx, id, playerID, string(playerID))
	s.Require().NoError(err)
}

// playingSession creates a session with the given players and starts it
func (s *ControllerSuite) playingSession(players ...model.PlayerID) *model.Session {
	session := s.createSession()
	for _, p := range players {
		s.join(session.ID, p)
	}
	started, err := s.controller.StartSession(s.ctx, session.ID)
	s.Require().NoError(err)
	return started
}

func (s *ControllerSuite) guess(id model.SessionID, playerID model.PlayerID, word string) *model.Session {
	_, session, err := s.controller.SubmitGuess(s.ctx, id, playerID, word)
	s.Require().NoError(err)
	return session
}

// CreateSession tests

func (s *ControllerSuite) TestCreateSessionStartsWaiting() {
	session := s.createSession()
	s.Equal(model.SessionStatusWaiting, session.Status)
	s.Equal("CRANE", session.SecretWord)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SessionsCreated))
}

func (s *ControllerSuite) TestCreateSessionRejectsBadWord() {
	_, err := s.controller.CreateSession(s.ctx, "host-1", "CRAN")
	s.ErrorIs(err, model.ErrInvalidWord)
}

// JoinSession tests

func (s *ControllerSuite) TestJoinSessionSucceeds() {
	session := s.createSession()
	s.clock.Advance(time.Second)

	updated, playerID, err := s.controller.JoinSession(s.ctx, session.ID, "p1", "  Alice  ")
	s.Require().NoError(err)

	s.Equal(model.PlayerID("p1"), playerID)
	s.Require().Len(updated.Players, 1)
	p := updated.Players[0]
	s.Equal("Alice", p.DisplayName)
	s.Empty(p.Guesses)
	s.False(p.Solved)
	s.Nil(p.TimeCompleted)
	s.Equal(qwztest.BaseTime.Add(time.Second), p.JoinedAt)
	s.Equal(int64(2), updated.Version)
}

func (s *ControllerSuite) TestJoinSessionKeepsJoinOrder() {
	session := s.createSession()
	for _, p := range []model.PlayerID{"p1", "p2", "p3"} {
		s.join(session.ID, p)
	}

	retrieved, err := s.controller.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), retrieved.Players[0].ID)
	s.Equal(model.PlayerID("p2"), retrieved.Players[1].ID)
	s.Equal(model.PlayerID("p3"), retrieved.Players[2].ID)
}

func (s *ControllerSuite) TestJoinSessionGeneratesPlayerID() {
	session := s.createSession()
	s.random.QueueUUID("aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee")

	_, playerID, err := s.controller.JoinSession(s.ctx, session.ID, "", "Alice")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"), playerID)
}

func (s *ControllerSuite) TestJoinSessionValidatesDisplayName() {
	session := s.createSession()
	for _, name := range []string{"", "   ", "abcdefghijklmnopqrstu", strings.Repeat("é", 21)} {
		_, _, err := s.controller.JoinSession(s.ctx, session.ID, "p1", name)
		s.ErrorIs(err, model.ErrInvalidDisplayName, "name %q", name)
	}

	// Length is counted in characters, not bytes
	_, _, err := s.controller.JoinSession(s.ctx, session.ID, "p1", strings.Repeat("é", 20))
	s.NoError(err)
}

func (s *ControllerSuite) TestJoinSessionFailsIfAlreadyJoined() {
	session := s.createSession()
	s.join(session.ID, "p1")

	_, _, err := s.controller.JoinSession(s.ctx, session.ID, "p1", "Again")
	s.ErrorIs(err, model.ErrAlreadyJoined)
}

func (s *ControllerSuite) TestJoinSessionFailsIfNotFound() {
	_, _, err := s.controller.JoinSession(s.ctx, "missing", "p1", "Alice")
	s.ErrorIs(err, model.ErrSessionNotFound)
	s.Equal(model.KindNotFound, model.KindOf(err))
}

func (s *ControllerSuite) TestJoinSessionFailsWhenFull() {
	session := s.createSession()
	for i := 0; i < model.MaxPlayers; i++ {
		s.join(session.ID, model.PlayerID(fmt.Sprintf("p%d", i)))
	}

	_, _, err := s.controller.JoinSession(s.ctx, session.ID, "late", "Late")
	s.ErrorIs(err, model.ErrSessionFull)
	s.Equal(model.KindCapacity, model.KindOf(err))

	retrieved, err := s.controller.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Len(retrieved.Players, model.MaxPlayers)
}

func (s *ControllerSuite) TestJoinSessionFailsAfterStart() {
	session := s.playingSession("p1")

	_, _, err := s.controller.JoinSession(s.ctx, session.ID, "p2", "Bob")
	s.ErrorIs(err, model.ErrSessionNotWaiting)
	s.Equal(model.KindInvalidState, model.KindOf(err))
}

func (s *ControllerSuite) TestConcurrentJoinsNeverExceedCapacity() {
	session := s.createSession()

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < model.MaxPlayers+4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.controller.JoinSession(s.ctx, session.ID, model.PlayerID(fmt.Sprintf("p%d", i)), "P")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case model.KindOf(err) == model.KindCapacity:
				full++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(model.MaxPlayers, joined)
	s.Equal(4, full)
}

// StartSession tests

func (s *ControllerSuite) TestStartSessionSucceeds() {
	session := s.createSession()
	s.join(session.ID, "p1")
	s.clock.Advance(time.Minute)

	started, err := s.controller.StartSession(s.ctx, session.ID)
	s.Require().NoError(err)

	s.Equal(model.SessionStatusPlaying, started.Status)
	s.Require().NotNil(started.StartedAt)
	s.Equal(qwztest.BaseTime.Add(time.Minute), *started.StartedAt)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("playing")))
}

func (s *ControllerSuite) TestStartSessionFailsWithNoPlayers() {
	session := s.createSession()

	_, err := s.controller.StartSession(s.ctx, session.ID)
	s.ErrorIs(err, model.ErrNoPlayers)
	s.Equal(model.KindInvalidState, model.KindOf(err))
}

func (s *ControllerSuite) TestStartSessionFailsIfAlreadyStarted() {
	session := s.playingSession("p1")

	_, err := s.controller.StartSession(s.ctx, session.ID)
	s.ErrorIs(err, model.ErrSessionNotWaiting)

	retrieved, _ := s.controller.GetSession(s.ctx, session.ID)
	s.Equal(*session.StartedAt, *retrieved.StartedAt)
}

func (s *ControllerSuite) TestStartSessionFailsIfNotFound() {
	_, err := s.controller.StartSession(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

// SubmitGuess tests

func (s *ControllerSuite) TestSubmitGuessScoresAndAppends() {
	session := s.playingSession("p1")

	guess, updated, err := s.controller.SubmitGuess(s.ctx, session.ID, "p1", "trace")
	s.Require().NoError(err)

	s.Equal("TRACE", guess.Word)
	s.Equal("accpc", guess.Result.Code())
	p := updated.GetPlayer("p1")
	s.Require().Len(p.Guesses, 1)
	s.Equal(*guess, p.Guesses[0])
	s.False(p.Solved)
	s.Nil(updated.WinnerID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Guesses.WithLabelValues(metrics.OutcomeMiss)))
}

func (s *ControllerSuite) TestSubmitGuessSolves() {
	session := s.playingSession("p1")
	s.clock.Advance(30 * time.Second)

	guess, updated, err := s.controller.SubmitGuess(s.ctx, session.ID, "p1", "CRANE")
	s.Require().NoError(err)

	s.True(guess.Result.IsSolved())
	p := updated.GetPlayer("p1")
	s.True(p.Solved)
	s.Require().NotNil(p.TimeCompleted)
	s.Equal(qwztest.BaseTime.Add(30*time.Second), *p.TimeCompleted)
	s.Require().NotNil(updated.WinnerID)
	s.Equal(model.PlayerID("p1"), *updated.WinnerID)
}

func (s *ControllerSuite) TestSubmitGuessDoesNotFinishSession() {
	session := s.playingSession("p1")
	updated := s.guess(session.ID, "p1", "CRANE")

	s.Equal(model.SessionStatusPlaying, updated.Status)
	s.Nil(updated.EndedAt)
}

func (s *ControllerSuite) TestFirstSolverWinsAndWinnerNeverChanges() {
	session := s.playingSession("p1", "p2", "p3")

	s.guess(session.ID, "p1", "TRACE")
	s.clock.Advance(time.Second)
	s.guess(session.ID, "p2", "CRANE")
	s.clock.Advance(time.Second)
	updated := s.guess(session.ID, "p1", "CRANE")

	s.Equal(model.PlayerID("p2"), *updated.WinnerID)
	s.True(updated.GetPlayer("p1").Solved)
	s.True(updated.GetPlayer("p1").TimeCompleted.After(*updated.GetPlayer("p2").TimeCompleted))
}

func (s *ControllerSuite) TestSameInstantSolvesAreOrderedByCommit() {
	session := s.playingSession("p1", "p2")

	// Clock does not move between the two solves
	first := s.guess(session.ID, "p2", "CRANE")
	second := s.guess(session.ID, "p1", "CRANE")

	s.Equal(model.PlayerID("p2"), *second.WinnerID)
	t1 := *first.GetPlayer("p2").TimeCompleted
	t2 := *second.GetPlayer("p1").TimeCompleted
	s.True(t2.After(t1))
}

func (s *ControllerSuite) TestSubmitGuessValidatesFormatFirst() {
	// Format errors win even when the session does not exist
	_, _, err := s.controller.SubmitGuess(s.ctx, "missing", "p1", "CRAN")
	s.ErrorIs(err, model.ErrInvalidGuess)
	s.Equal(model.KindValidation, model.KindOf(err))
}

func (s *ControllerSuite) TestSubmitGuessFailsIfSessionNotFound() {
	_, _, err := s.controller.SubmitGuess(s.ctx, "missing", "p1", "CRANE")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *ControllerSuite) TestSubmitGuessFailsIfWaiting() {
	session := s.createSession()
	s.join(session.ID, "p1")

	_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, "p1", "CRANE")
	s.ErrorIs(err, model.ErrSessionNotPlaying)
}

func (s *ControllerSuite) TestSubmitGuessFailsIfFinished() {
	session := s.playingSession("p1")
	_, err := s.controller.EndSession(s.ctx, session.ID)
	s.Require().NoError(err)

	_, _, err = s.controller.SubmitGuess(s.ctx, session.ID, "p1", "CRANE")
	s.ErrorIs(err, model.ErrSessionNotPlaying)
	s.Equal(model.KindInvalidState, model.KindOf(err))
}

func (s *ControllerSuite) TestSubmitGuessFailsForUnknownPlayer() {
	session := s.playingSession("p1")

	_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, "stranger", "CRANE")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	s.Equal(model.KindNotFound, model.KindOf(err))
}

func (s *ControllerSuite) TestSubmitGuessFailsAfterSolved() {
	session := s.playingSession("p1")
	s.guess(session.ID, "p1", "CRANE")

	_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, "p1", "TRACE")
	s.ErrorIs(err, model.ErrAlreadySolved)
	s.Equal(model.KindAlreadySolved, model.KindOf(err))

	retrieved, _ := s.controller.GetSession(s.ctx, session.ID)
	s.Len(retrieved.GetPlayer("p1").Guesses, 1)
}

func (s *ControllerSuite) TestSubmitGuessFailsAfterAttemptLimit() {
	session := s.playingSession("p1")
	for i := 0; i < model.MaxAttempts; i++ {
		s.guess(session.ID, "p1", "TRACE")
	}

	_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, "p1", "CRANE")
	s.ErrorIs(err, model.ErrAttemptLimit)
	s.Equal(model.KindAttemptLimit, model.KindOf(err))

	retrieved, _ := s.controller.GetSession(s.ctx, session.ID)
	p := retrieved.GetPlayer("p1")
	s.Len(p.Guesses, model.MaxAttempts)
	s.False(p.Solved)
}

func (s *ControllerSuite) TestSolveOnLastAttemptCounts() {
	session := s.playingSession("p1")
	for i := 0; i < model.MaxAttempts-1; i++ {
		s.guess(session.ID, "p1", "TRACE")
	}

	updated := s.guess(session.ID, "p1", "CRANE")
	s.True(updated.GetPlayer("p1").Solved)
	s.Len(updated.GetPlayer("p1").Guesses, model.MaxAttempts)
}

func (s *ControllerSuite) TestConcurrentGuessesAreNotLost() {
	players := []model.PlayerID{"p1", "p2", "p3", "p4"}
	session := s.playingSession(players...)

	var wg sync.WaitGroup
	for _, p := range players {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(p model.PlayerID) {
				defer wg.Done()
				_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, p, "TRACE")
				s.NoError(err)
			}(p)
		}
	}
	wg.Wait()

	retrieved, err := s.controller.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	for _, p := range players {
		s.Len(retrieved.GetPlayer(p).Guesses, 3)
	}
	s.Equal(session.Version+int64(len(players)*3), retrieved.Version)
}

func (s *ControllerSuite) TestConcurrentSolvesProduceOneWinner() {
	players := []model.PlayerID{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	session := s.playingSession(players...)
	s.clock.AutoStep(time.Millisecond)

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p model.PlayerID) {
			defer wg.Done()
			_, _, err := s.controller.SubmitGuess(s.ctx, session.ID, p, "CRANE")
			s.NoError(err)
		}(p)
	}
	wg.Wait()

	retrieved, err := s.controller.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().NotNil(retrieved.WinnerID)

	winner := retrieved.Winner()
	s.Require().NotNil(winner)
	for _, p := range retrieved.Players {
		s.True(p.Solved)
		if p.ID != winner.ID {
			s.True(p.TimeCompleted.After(*winner.TimeCompleted), "winner must have the strictly earliest solve")
		}
	}
}

// EndSession tests

func (s *ControllerSuite) TestEndSessionSucceeds() {
	session := s.playingSession("p1")
	s.clock.Advance(time.Minute)

	ended, err := s.controller.EndSession(s.ctx, session.ID)
	s.Require().NoError(err)

	s.Equal(model.SessionStatusFinished, ended.Status)
	s.Require().NotNil(ended.EndedAt)
	s.Equal(qwztest.BaseTime.Add(time.Minute), *ended.EndedAt)
	s.Nil(ended.WinnerID)
}

func (s *ControllerSuite) TestEndSessionTwiceFails() {
	session := s.playingSession("p1")
	first, err := s.controller.EndSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)

	_, err = s.controller.EndSession(s.ctx, session.ID)
	s.ErrorIs(err, model.ErrSessionNotPlaying)

	retrieved, _ := s.controller.GetSession(s.ctx, session.ID)
	s.Equal(*first.EndedAt, *retrieved.EndedAt)
}

func (s *ControllerSuite) TestEndSessionFailsIfWaiting() {
	session := s.createSession()
	_, err := s.controller.EndSession(s.ctx, session.ID)
	s.ErrorIs(err, model.ErrSessionNotPlaying)
}

func (s *ControllerSuite) TestEndSessionKeepsWinner() {
	session := s.playingSession("p1", "p2")
	s.guess(session.ID, "p2", "CRANE")

	ended, err := s.controller.EndSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), *ended.WinnerID)
}

// RequireHost tests

func (s *ControllerSuite) TestGetSessionReadsCommittedState() {
	session := s.playingSession("p1")
	s.guess(session.ID, "p1", "TRACE")

	got, err := s.controller.GetSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(session.Version+1, got.Version)
	s.Len(got.GetPlayer("p1").Guesses, 1)

	_, err = s.controller.GetSession(s.ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *ControllerSuite) TestRequireHost() {
	session := s.createSession()

	s.NoError(s.controller.RequireHost(s.ctx, session.ID, "host-1"))
	s.ErrorIs(s.controller.RequireHost(s.ctx, session.ID, "someone-else"), model.ErrNotHost)
	s.ErrorIs(s.controller.RequireHost(s.ctx, session.ID, ""), model.ErrNotHost)
	s.ErrorIs(s.controller.RequireHost(s.ctx, "missing", "host-1"), model.ErrSessionNotFound)
}

// Lifecycle / change feed

func (s *ControllerSuite) TestEveryCommitIsPublished() {
	session := s.createSession()
	sub, err := s.storage.Subscribe(s.ctx, session.ID)
	s.Require().NoError(err)
	defer sub.Close()

	s.join(session.ID, "p1")
	_, err = s.controller.StartSession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.guess(session.ID, "p1", "TRACE")
	s.guess(session.ID, "p1", "CRANE")
	_, err = s.controller.EndSession(s.ctx, session.ID)
	s.Require().NoError(err)

	want := []model.EventType{
		model.EventPlayerJoined,
		model.EventSessionStarted,
		model.EventGuessSubmitted,
		model.EventPlayerSolved,
		model.EventSessionEnded,
	}
	for i, eventType := range want {
		select {
		case ev := <-sub.Events():
			s.Equal(eventType, ev.Type)
			s.Equal(session.Version+int64(i+1), ev.Version)
		case <-time.After(time.Second):
			s.FailNow("missing event", "%s", eventType)
		}
	}
}

func (s *ControllerSuite) TestOperationTimeoutApplies() {
	session := s.createSession()
	s.controller.cfg.OperationTimeout = time.Nanosecond

	_, _, err := s.controller.JoinSession(s.ctx, session.ID, "p1", "Alice")
	s.ErrorIs(err, context.DeadlineExceeded)
	s.True(model.IsRetryable(err))
}
