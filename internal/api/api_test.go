package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/quizwordz/internal/api/apierr"
	"github.com/mcoot/quizwordz/internal/api/response"
	"github.com/mcoot/quizwordz/internal/factory"
	"github.com/mcoot/quizwordz/internal/model"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{
		handler: app.Router(),
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	resp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, code, resp.Error.Code)
}

// createSession creates session "sess000001" hosted by "host-1" with secret CRANE
func (ts *testServer) createSession(t *testing.T) response.Session {
	t.Helper()
	ts.app.MockRandom.QueueString("sess000001")
	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{
		"host_id":     "host-1",
		"secret_word": "crane",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.Session](t, rr)
}

func (ts *testServer) join(t *testing.T, playerID, name string) response.JoinResponse {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/players", map[string]string{
		"player_id":    playerID,
		"display_name": name,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.JoinResponse](t, rr)
}

func (ts *testServer) start(t *testing.T) {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/start", map[string]string{"host_id": "host-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decode[response.HealthResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Storage)

	// Only /metrics lives outside the versioned prefix
	rr = ts.request(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	session := ts.createSession(t)
	assert.Equal(t, "sess000001", session.ID)
	assert.Equal(t, "host-1", session.HostID)
	assert.Equal(t, "CRANE", session.SecretWord)
	assert.Equal(t, "waiting", session.Status)
	assert.Empty(t, session.Players)
	assert.Equal(t, int64(1), session.Version)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/sess000001", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateSessionGeneratesHostID(t *testing.T) {
	ts := newTestServer(t)
	ts.app.MockRandom.QueueUUID("11111111-2222-4333-8444-555555555555")

	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{"secret_word": "WORDS"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "11111111-2222-4333-8444-555555555555", decode[response.Session](t, rr).HostID)
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{"secret_word": "four"})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidWord)

	rr = ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{"secret": "CRANE"})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestGetUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/nope", nil)
	assertError(t, rr, http.StatusNotFound, apierr.CodeSessionNotFound)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/nope/joinable", nil)
	assertError(t, rr, http.StatusNotFound, apierr.CodeSessionNotFound)
}

func TestJoinSession(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/sess000001/joinable", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	resp := ts.join(t, "alice", "  Alice ")
	assert.Equal(t, "alice", resp.PlayerID)
	require.Len(t, resp.Session.Players, 1)
	assert.Equal(t, "Alice", resp.Session.Players[0].DisplayName)
	assert.Equal(t, model.MaxAttempts, resp.Session.Players[0].AttemptsLeft)

	// Generated player ID
	ts.app.MockRandom.QueueUUID("player-uuid")
	resp = ts.join(t, "", "Bob")
	assert.Equal(t, "player-uuid", resp.PlayerID)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/players", map[string]string{
		"player_id": "alice", "display_name": "Alice again",
	})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeAlreadyJoined)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/players", map[string]string{"display_name": ""})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidDisplayName)
}

func TestJoinFullSession(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	for i := 0; i < model.MaxPlayers; i++ {
		ts.join(t, string(rune('a'+i)), "Player")
	}

	rr := ts.request(http.MethodGet, "/api/v1/sessions/sess000001/joinable", nil)
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionFull)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/players", map[string]string{"display_name": "Late"})
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionFull)
	resp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, string(model.KindCapacity), resp.Error.Kind)
}

func TestStartRequiresHost(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)

	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/start", map[string]string{"host_id": "host-1"})
	assertError(t, rr, http.StatusConflict, apierr.CodeNoPlayers)

	ts.join(t, "alice", "Alice")

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/start", map[string]string{"host_id": "alice"})
	assertError(t, rr, http.StatusForbidden, apierr.CodeNotHost)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/start", nil)
	assertError(t, rr, http.StatusForbidden, apierr.CodeNotHost)

	ts.start(t)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/sess000001/joinable", nil)
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionNotWaiting)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/start", map[string]string{"host_id": "host-1"})
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionNotWaiting)
}

func TestSubmitGuess(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	ts.join(t, "alice", "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "TRACE"})
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionNotPlaying)

	ts.start(t)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "trace"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[response.GuessResponse](t, rr)
	assert.Equal(t, "TRACE", resp.Guess.Word)
	assert.Equal(t, "accpc", resp.Guess.Result.Code())
	assert.False(t, resp.Solved)
	assert.Contains(t, rr.Body.String(), `"result":"accpc"`)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "CRANE"})
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decode[response.GuessResponse](t, rr)
	assert.True(t, resp.Solved)
	require.NotNil(t, resp.Session.WinnerID)
	assert.Equal(t, "alice", *resp.Session.WinnerID)
	assert.Equal(t, "playing", resp.Session.Status)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "CRANE"})
	assertError(t, rr, http.StatusConflict, apierr.CodeAlreadySolved)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "mallory", "guess": "CRANE"})
	assertError(t, rr, http.StatusNotFound, apierr.CodePlayerNotFound)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "CRANES"})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidGuess)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"guess": "CRANE"})
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestAttemptLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	ts.join(t, "alice", "Alice")
	ts.start(t)

	for i := 0; i < model.MaxAttempts; i++ {
		rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "SLATE"})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "alice", "guess": "CRANE"})
	assertError(t, rr, http.StatusConflict, apierr.CodeAttemptLimit)
}

func TestEndAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	ts.join(t, "alice", "Alice")
	ts.join(t, "bob", "Bob")
	ts.start(t)

	ts.app.MockClock.Advance(5 * time.Second)
	rr := ts.request(http.MethodPost, "/api/v1/sessions/sess000001/guesses", map[string]string{"player_id": "bob", "guess": "CRANE"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/end", map[string]string{"host_id": "bob"})
	assertError(t, rr, http.StatusForbidden, apierr.CodeNotHost)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/end", map[string]string{"host_id": "host-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "finished", decode[response.Session](t, rr).Status)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/sess000001/end", map[string]string{"host_id": "host-1"})
	assertError(t, rr, http.StatusConflict, apierr.CodeSessionNotPlaying)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/sess000001/leaderboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	board := decode[response.LeaderboardResponse](t, rr)
	assert.Equal(t, "finished", board.Status)
	require.NotNil(t, board.WinnerID)
	assert.Equal(t, "bob", *board.WinnerID)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, model.PlayerID("bob"), board.Entries[0].PlayerID)
	assert.Equal(t, 1, board.Entries[0].Rank)
	require.NotNil(t, board.Entries[0].SolveMillis)
	assert.Equal(t, int64(5000), *board.Entries[0].SolveMillis)
	assert.False(t, board.Entries[1].Solved)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)

	rr := ts.request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "qwz_sessions_created_total 1")
	assert.Contains(t, body, `qwz_http_requests_total{method="POST",route="/api/v1/sessions",status="201"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/lobbies", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// Streaming tests run against a real listener

func readEvent(t *testing.T, reader *bufio.Reader) (string, model.Event) {
	t.Helper()
	var name, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && name != "":
			var ev model.Event
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			return name, ev
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data += strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sessions/sess000001/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	name, ev := readEvent(t, reader)
	assert.Equal(t, "snapshot", name)
	assert.Equal(t, model.EventSync, ev.Type)
	assert.Equal(t, int64(1), ev.Version)

	ts.join(t, "alice", "Alice")

	_, ev = readEvent(t, reader)
	assert.Equal(t, model.EventPlayerJoined, ev.Type)
	assert.Equal(t, model.PlayerID("alice"), ev.PlayerID)
	assert.Equal(t, int64(2), ev.Version)
	require.Len(t, ev.Session.Players, 1)
}

func TestEventStreamUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/nope/events", nil)
	assertError(t, rr, http.StatusNotFound, apierr.CodeSessionNotFound)
	assert.Equal(t, 0, ts.app.HubManager.HubCount())
}

func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/sess000001/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev model.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventSync, ev.Type)

	ts.join(t, "alice", "Alice")

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.EventPlayerJoined, ev.Type)
	assert.Equal(t, int64(2), ev.Version)
}
