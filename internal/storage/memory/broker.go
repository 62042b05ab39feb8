package memory

import (
	"context"
	"sync"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// broker is an in-process pub/sub of session snapshots, keyed by session ID
type broker struct {
	mu   sync.Mutex
	subs map[model.SessionID]map[*storage.Feed]struct{}
}

func newBroker() *broker {
	return &broker{
		subs: make(map[model.SessionID]map[*storage.Feed]struct{}),
	}
}

func (b *broker) subscribe(ctx context.Context, id model.SessionID) *storage.Feed {
	var feed *storage.Feed
	feed = storage.NewFeed(func() { b.unsubscribe(id, feed) })

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[*storage.Feed]struct{})
	}
	b.subs[id][feed] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { _ = feed.Close() })
	return feed
}

func (b *broker) unsubscribe(id model.SessionID, feed *storage.Feed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[id], feed)
	if len(b.subs[id]) == 0 {
		delete(b.subs, id)
	}
}

func (b *broker) publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for feed := range b.subs[ev.SessionID] {
		// Each subscriber gets its own copy of the snapshot
		ev := ev
		ev.Session = ev.Session.Clone()
		feed.Publish(ev)
	}
}

func (b *broker) closeSession(id model.SessionID, err error) {
	b.mu.Lock()
	feeds := make([]*storage.Feed, 0, len(b.subs[id]))
	for feed := range b.subs[id] {
		feeds = append(feeds, feed)
	}
	b.mu.Unlock()

	for _, feed := range feeds {
		feed.CloseWithError(err)
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	ids := make([]model.SessionID, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.closeSession(id, nil)
	}
}
