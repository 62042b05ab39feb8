package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/quizwordz/internal/api/request"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/realtime"
	"github.com/mcoot/quizwordz/internal/services/scoring"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// errResync ends one stream so the watcher reconnects and re-reads the
// session
var errResync = errors.New("resync requested")

func newWatchCmd() *cobra.Command {
	var jsonOutput bool
	var play bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a session live",
		Long: `Connect to the session's event stream and print every committed
snapshot until the session finishes.

Each update replaces the whole view. If the stream drops or the server asks
for a resync, watch reconnects and picks up from the latest snapshot.

With --play, each line read from stdin is submitted as a guess. The guess
shows as pending until a snapshot confirms it.

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			format := cfg.Output
			if jsonOutput {
				format = "json"
			}
			if play && cfg.PlayerID == "" {
				return fmt.Errorf("no player ID: join the session first or set --player-id")
			}
			w := &watcher{
				sessionID: args[0],
				playerID:  model.PlayerID(cfg.PlayerID),
				replica:   realtime.NewReplica(model.PlayerID(cfg.PlayerID)),
				out:       NewOutput(format, cmd.OutOrStdout()),
			}
			if play {
				go w.play(ctx, cmd.InOrStdin())
			}

			err := w.run(ctx)
			if ctx.Err() != nil && cmd.Context().Err() == nil {
				// Interrupted by the user
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output snapshots as JSON lines")
	cmd.Flags().BoolVar(&play, "play", false, "Submit guesses read from stdin")

	return cmd
}

type watcher struct {
	sessionID string
	playerID  model.PlayerID
	replica   *realtime.Replica

	// mu serializes output from the stream and the guess loop
	mu  sync.Mutex
	out *Output
}

func (w *watcher) locked(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f()
}

// play submits each non-empty line of in as a guess, one at a time
func (w *watcher) play(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		_ = w.guess(ctx, word)
		if ctx.Err() != nil {
			return
		}
	}
}

// guess shows word as pending, then submits it. Guesses the local view
// already knows will fail are never sent; a guess the server refuses is
// withdrawn.
func (w *watcher) guess(ctx context.Context, word string) error {
	if err := w.replica.AddPending(word); err != nil {
		w.locked(func() { w.out.PrintMessage(fmt.Sprintf("%s: %v", word, err)) })
		return err
	}
	w.locked(func() { w.out.PrintPending(scoring.Normalize(word)) })

	req := request.GuessRequest{PlayerID: string(w.playerID), Guess: word}
	if err := client.Post(ctx, sessionPath(w.sessionID, "guesses"), req, nil); err != nil {
		w.replica.RejectPending()
		w.locked(func() { w.out.PrintMessage(fmt.Sprintf("%s rejected: %v", scoring.Normalize(word), err)) })
		return err
	}
	return nil
}

// run streams until the session is finished, the context ends, or the
// server rejects the stream with a non-retryable error
func (w *watcher) run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		body, err := client.Stream(ctx, sessionPath(w.sessionID, "events"))
		if err == nil {
			backoff = initialBackoff
			err = w.consume(body)
			_ = body.Close()
			if err == nil {
				return nil
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return err
		}
		if errors.Is(err, errResync) {
			// The server is healthy; reconnect straight away
			continue
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// consume reads one stream. It returns nil once the session is finished,
// errResync when the server ends the stream, and the read error otherwise.
func (w *watcher) consume(body io.Reader) error {
	var done bool
	err := readSSE(body, func(event, data string) error {
		switch event {
		case "snapshot":
			var ev model.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return fmt.Errorf("failed to parse snapshot: %w", err)
			}
			if !w.replica.ApplyEvent(ev) {
				return nil
			}
			w.locked(func() { w.out.PrintSnapshot(ev, w.replica.Pending(), w.replica.Keyboard()) })
			if ev.Session.Status == model.SessionStatusFinished {
				done = true
				return io.EOF
			}
		case "resync":
			return errResync
		}
		return nil
	})
	if done {
		return nil
	}
	if err == nil {
		return io.ErrUnexpectedEOF
	}
	return err
}

// readSSE calls handle for each complete event on r. It stops at the first
// error from handle or the reader.
func readSSE(r io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// End of event
			if currentEvent != "" {
				if err := handle(currentEvent, strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	return scanner.Err()
}
