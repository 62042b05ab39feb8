package realtime

import (
	"sync"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/scoring"
)

// Replica is a participant's local view of one session. The authoritative
// snapshot is only ever replaced whole, and only by a newer version.
// Pending guesses are speculative: they render immediately but carry no
// verdicts and are dropped as soon as an authoritative snapshot accounts for
// them.
type Replica struct {
	mu       sync.RWMutex
	playerID model.PlayerID
	session  *model.Session

	pending []string
	// confirmed is the player's authoritative guess count when pending was
	// last reconciled
	confirmed int
}

// NewReplica creates an empty replica for playerID, which may be empty for
// a host or observer
func NewReplica(playerID model.PlayerID) *Replica {
	return &Replica{playerID: playerID}
}

// Apply replaces the local view with s if it is newer than the current one.
// It returns false for stale or duplicate snapshots, which are ignored.
func (r *Replica) Apply(s *model.Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && s.Version <= r.session.Version {
		return false
	}
	r.session = s.Clone()
	r.reconcile()
	return true
}

// ApplyEvent applies the snapshot carried by ev
func (r *Replica) ApplyEvent(ev model.Event) bool {
	return r.Apply(ev.Session)
}

// reconcile drops pending guesses the authoritative view now includes, and
// all of them once the player can no longer guess
func (r *Replica) reconcile() {
	player := r.session.GetPlayer(r.playerID)
	if player == nil {
		r.pending = nil
		r.confirmed = 0
		return
	}

	count := len(player.Guesses)
	if landed := count - r.confirmed; landed > 0 {
		if landed >= len(r.pending) {
			r.pending = nil
		} else {
			r.pending = r.pending[landed:]
		}
	}
	r.confirmed = count

	if r.session.Status != model.SessionStatusPlaying || player.CanGuess() != nil {
		r.pending = nil
	}
}

// AddPending records a guess that has been sent but not yet confirmed.
// It rejects guesses the current view already knows will fail.
func (r *Replica) AddPending(guess string) error {
	word, err := scoring.NormalizeGuess(guess)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return model.ErrSessionNotFound
	}
	if r.session.Status != model.SessionStatusPlaying {
		return model.ErrSessionNotPlaying
	}
	player := r.session.GetPlayer(r.playerID)
	if player == nil {
		return model.ErrPlayerNotFound
	}
	if player.Solved {
		return model.ErrAlreadySolved
	}
	if len(player.Guesses)+len(r.pending) >= model.MaxAttempts {
		return model.ErrAttemptLimit
	}

	r.pending = append(r.pending, word)
	return nil
}

// RejectPending removes the oldest pending guess after the server refused it
func (r *Replica) RejectPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		r.pending = r.pending[1:]
	}
}

// Session returns a copy of the authoritative view, or nil before the first Apply
func (r *Replica) Session() *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session.Clone()
}

// Version returns the version of the authoritative view, or 0
func (r *Replica) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return 0
	}
	return r.session.Version
}

// Pending returns the speculative guesses in submission order
func (r *Replica) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.pending...)
}

// Keyboard summarizes the player's confirmed guesses per letter
func (r *Replica) Keyboard() map[rune]model.Verdict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return map[rune]model.Verdict{}
	}
	player := r.session.GetPlayer(r.playerID)
	if player == nil {
		return map[rune]model.Verdict{}
	}
	return scoring.KeyboardState(player.Guesses)
}
