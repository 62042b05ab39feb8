package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/quizwordz/internal/model"
)

const (
	// Time between keepalive comments on idle streams
	keepalivePeriod = 30 * time.Second

	// SSE event names
	sseEventSnapshot = "snapshot"
	sseEventResync   = "resync"
)

// ResyncMessage tells a subscriber its stream ended and it must reconnect
// and re-read the session
type ResyncMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func newResync(err error) ResyncMessage {
	reason := model.ErrSubscriptionClosed.Error()
	if err != nil {
		reason = err.Error()
	}
	return ResyncMessage{Type: sseEventResync, Reason: reason}
}

// ServeSSE streams snapshots to an HTTP client until it disconnects or the
// client is dropped. initial is the point-read taken after subscribing; any
// queued snapshot not newer than it is skipped.
func ServeSSE(w http.ResponseWriter, r *http.Request, client *Client, initial *model.Session, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	lastVersion := initial.Version
	if err := writeSSEJSON(w, sseEventSnapshot, lastVersion, model.NewSnapshotEvent(model.EventSync, "", initial)); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				resync := newResync(client.Err())
				logger.Info("sse stream ended by hub", slog.String("reason", resync.Reason))
				_ = writeSSEJSON(w, sseEventResync, 0, resync)
				flusher.Flush()
				return
			}
			if ev.Version <= lastVersion {
				continue
			}
			lastVersion = ev.Version
			if err := writeSSEJSON(w, sseEventSnapshot, ev.Version, ev); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEJSON(w http.ResponseWriter, eventName string, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(formatSSEMessage(eventName, id, string(data)))
	return err
}

// formatSSEMessage formats an SSE message with event name, optional id and
// data. Multi-line data gets a "data: " prefix on each line.
func formatSSEMessage(eventName string, id int64, data string) []byte {
	var b strings.Builder
	b.WriteString("event: " + eventName + "\n")
	if id > 0 {
		b.WriteString("id: " + strconv.FormatInt(id, 10) + "\n")
	}
	data = strings.ReplaceAll(data, "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}
