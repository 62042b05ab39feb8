package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/quizwordz/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidWord        = "INVALID_WORD"
	CodeInvalidGuess       = "INVALID_GUESS"
	CodeInvalidDisplayName = "INVALID_DISPLAY_NAME"
	CodeInvalidHostID      = "INVALID_HOST_ID"
	CodeAlreadyJoined      = "ALREADY_JOINED"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodePlayerNotFound     = "PLAYER_NOT_FOUND"
	CodeSessionNotWaiting  = "SESSION_NOT_WAITING"
	CodeSessionNotPlaying  = "SESSION_NOT_PLAYING"
	CodeNoPlayers          = "NO_PLAYERS"
	CodeNotHost            = "NOT_HOST"
	CodeSessionFull        = "SESSION_FULL"
	CodeAlreadySolved      = "ALREADY_SOLVED"
	CodeAttemptLimit       = "ATTEMPT_LIMIT"
	CodeConflict           = "CONFLICT"
	CodeTimeout            = "TIMEOUT"
	CodeCancelled          = "CANCELLED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is written when the client went away before the
// operation finished. Nobody reads it; it keeps the access log out of 5xx.
const StatusClientClosedRequest = 499

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

var kindStatus = map[model.ErrorKind]int{
	model.KindValidation:    http.StatusBadRequest,
	model.KindNotFound:      http.StatusNotFound,
	model.KindInvalidState:  http.StatusConflict,
	model.KindCapacity:      http.StatusConflict,
	model.KindAlreadySolved: http.StatusConflict,
	model.KindAttemptLimit:  http.StatusConflict,
	model.KindTransient:     http.StatusServiceUnavailable,
}

// Ordered so wrapped errors match their most specific sentinel
var codes = []struct {
	err  error
	code string
}{
	{model.ErrInvalidWord, CodeInvalidWord},
	{model.ErrInvalidGuess, CodeInvalidGuess},
	{model.ErrInvalidDisplayName, CodeInvalidDisplayName},
	{model.ErrInvalidHostID, CodeInvalidHostID},
	{model.ErrAlreadyJoined, CodeAlreadyJoined},
	{model.ErrSessionNotFound, CodeSessionNotFound},
	{model.ErrPlayerNotFound, CodePlayerNotFound},
	{model.ErrSessionNotWaiting, CodeSessionNotWaiting},
	{model.ErrSessionNotPlaying, CodeSessionNotPlaying},
	{model.ErrNoPlayers, CodeNoPlayers},
	{model.ErrNotHost, CodeNotHost},
	{model.ErrSessionFull, CodeSessionFull},
	{model.ErrAlreadySolved, CodeAlreadySolved},
	{model.ErrAttemptLimit, CodeAttemptLimit},
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	if he.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	kind := model.KindOf(err)
	for _, c := range codes {
		if errors.Is(err, c.err) {
			status := kindStatus[kind]
			if c.err == model.ErrNotHost {
				status = http.StatusForbidden
			}
			// Sentinel text only; wrapping context stays in the logs
			return &httpError{status, APIError{c.code, string(kind), c.err.Error()}}
		}
	}

	transient := string(model.KindTransient)
	switch {
	case errors.Is(err, model.ErrConflict):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeConflict, transient, "Too many concurrent updates, retry"}}
	case errors.Is(err, context.Canceled):
		return &httpError{StatusClientClosedRequest, APIError{CodeCancelled, transient, "Request cancelled"}}
	case errors.Is(err, context.DeadlineExceeded):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeTimeout, transient, "Operation timed out, retry"}}
	default:
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, transient, "Service temporarily unavailable, retry"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, string(model.KindValidation), message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, string(model.KindTransient), "Internal server error"}}
}
