package storage

import (
	"sync"

	"github.com/mcoot/quizwordz/internal/model"
)

// FeedBufferSize is the number of undelivered events a Feed holds
const FeedBufferSize = 16

// Feed is the Subscription used by the store implementations. Publish never
// blocks: when the buffer is full the oldest pending event is discarded, so a
// slow reader always ends up holding the newest snapshot.
type Feed struct {
	mu      sync.Mutex
	ch      chan model.Event
	closed  bool
	err     error
	onClose func()
}

var _ Subscription = (*Feed)(nil)

// NewFeed creates a Feed. onClose runs once when the feed is closed.
func NewFeed(onClose func()) *Feed {
	return &Feed{
		ch:      make(chan model.Event, FeedBufferSize),
		onClose: onClose,
	}
}

// Publish delivers ev, evicting the oldest buffered event if necessary.
// It returns false once the feed is closed.
func (f *Feed) Publish(ev model.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	for {
		select {
		case f.ch <- ev:
			return true
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func (f *Feed) Events() <-chan model.Event {
	return f.ch
}

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close ends the feed normally
func (f *Feed) Close() error {
	f.CloseWithError(nil)
	return nil
}

// CloseWithError ends the feed and records why. Stores pass an error
// wrapping model.ErrSubscriptionClosed when the upstream feed is lost.
func (f *Feed) CloseWithError(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.err = err
	close(f.ch)
	onClose := f.onClose
	f.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}
