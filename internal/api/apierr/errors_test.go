package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/quizwordz/internal/model"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		kind   model.ErrorKind
	}{
		{"invalid guess", model.ErrInvalidGuess, http.StatusBadRequest, CodeInvalidGuess, model.KindValidation},
		{"wrapped not found", fmt.Errorf("get abc: %w", model.ErrSessionNotFound), http.StatusNotFound, CodeSessionNotFound, model.KindNotFound},
		{"not host", model.ErrNotHost, http.StatusForbidden, CodeNotHost, model.KindInvalidState},
		{"not playing", model.ErrSessionNotPlaying, http.StatusConflict, CodeSessionNotPlaying, model.KindInvalidState},
		{"full", model.ErrSessionFull, http.StatusConflict, CodeSessionFull, model.KindCapacity},
		{"solved", model.ErrAlreadySolved, http.StatusConflict, CodeAlreadySolved, model.KindAlreadySolved},
		{"attempts", model.ErrAttemptLimit, http.StatusConflict, CodeAttemptLimit, model.KindAttemptLimit},
		{"conflict", fmt.Errorf("update: %w", model.ErrConflict), http.StatusServiceUnavailable, CodeConflict, model.KindTransient},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, CodeTimeout, model.KindTransient},
		{"cancelled", fmt.Errorf("get abc: %w", context.Canceled), StatusClientClosedRequest, CodeCancelled, model.KindTransient},
		{"unknown", errors.New("connection refused"), http.StatusServiceUnavailable, CodeUnavailable, model.KindTransient},
		{"bad request", NewInvalidRequestError("invalid request body"), http.StatusBadRequest, CodeInvalidRequest, model.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, string(tt.kind), resp.Error.Kind)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteErrorHidesWrappedDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("redis get qwz:session:abc: %w", model.ErrSessionNotFound))

	assert.NotContains(t, rr.Body.String(), "qwz:session")
}

func TestTransientErrorsAskForRetry(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, model.ErrConflict)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	WriteError(rr, model.ErrInvalidWord)
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestCancelledRequestsAreNotRetried(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("update abc: %w", context.Canceled))

	assert.Equal(t, StatusClientClosedRequest, rr.Code)
	assert.Less(t, rr.Code, http.StatusInternalServerError)
	assert.Empty(t, rr.Header().Get("Retry-After"))
}
