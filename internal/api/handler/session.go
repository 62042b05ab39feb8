package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/quizwordz/internal/api/apierr"
	"github.com/mcoot/quizwordz/internal/api/request"
	"github.com/mcoot/quizwordz/internal/api/response"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/session"
)

// Request bodies are tiny; anything larger is malformed
const maxBodyBytes = 4 << 10

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	controller *session.Controller
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(controller *session.Controller) *SessionHandler {
	return &SessionHandler{controller: controller}
}

func sessionID(r *http.Request) model.SessionID {
	return model.SessionID(mux.Vars(r)["id"])
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apierr.NewInvalidRequestError("invalid request body")
	}
	return nil
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSessionRequest
	if err := decode(w, r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}

	s, err := h.controller.CreateSession(r.Context(), model.HostID(req.HostID), req.SecretWord)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.SessionFromModel(s))
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.controller.GetSession(r.Context(), sessionID(r))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionFromModel(s))
}

// Joinable handles GET /api/v1/sessions/{id}/joinable
func (h *SessionHandler) Joinable(w http.ResponseWriter, r *http.Request) {
	if _, err := h.controller.CheckJoinable(r.Context(), sessionID(r)); err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Join handles POST /api/v1/sessions/{id}/players
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinRequest
	if err := decode(w, r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}

	s, playerID, err := h.controller.JoinSession(r.Context(), sessionID(r), model.PlayerID(req.PlayerID), req.DisplayName)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.JoinResponse{
		PlayerID: string(playerID),
		Session:  response.SessionFromModel(s),
	})
}

// Start handles POST /api/v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireHost(w, r)
	if !ok {
		return
	}

	s, err := h.controller.StartSession(r.Context(), id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionFromModel(s))
}

// End handles POST /api/v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireHost(w, r)
	if !ok {
		return
	}

	s, err := h.controller.EndSession(r.Context(), id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionFromModel(s))
}

// requireHost decodes a HostRequest and checks it against the session.
// It writes the error response and returns false on failure.
func (h *SessionHandler) requireHost(w http.ResponseWriter, r *http.Request) (model.SessionID, bool) {
	var req request.HostRequest
	if err := decode(w, r, &req); err != nil {
		apierr.WriteError(w, err)
		return "", false
	}

	id := sessionID(r)
	if err := h.controller.RequireHost(r.Context(), id, model.HostID(req.HostID)); err != nil {
		apierr.WriteError(w, err)
		return "", false
	}
	return id, true
}

// Guess handles POST /api/v1/sessions/{id}/guesses
func (h *SessionHandler) Guess(w http.ResponseWriter, r *http.Request) {
	var req request.GuessRequest
	if err := decode(w, r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if req.PlayerID == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("player_id is required"))
		return
	}

	guess, s, err := h.controller.SubmitGuess(r.Context(), sessionID(r), model.PlayerID(req.PlayerID), req.Guess)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.GuessResponse{
		Guess:   response.GuessFromModel(*guess),
		Solved:  guess.Result.IsSolved(),
		Session: response.SessionFromModel(s),
	})
}

// Leaderboard handles GET /api/v1/sessions/{id}/leaderboard
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	s, err := h.controller.GetSession(r.Context(), sessionID(r))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	var winner *string
	if s.WinnerID != nil {
		id := string(*s.WinnerID)
		winner = &id
	}
	response.JSON(w, http.StatusOK, response.LeaderboardResponse{
		SessionID: string(s.ID),
		Status:    string(s.Status),
		WinnerID:  winner,
		Entries:   session.Leaderboard(s),
	})
}
