package conductor

import (
	"encoding/json"
	"time"

	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/transport"
)

// logged is one batched transcript entry: a direction tag plus the raw
// encoded message, flushed to the transcript store on the 200ms ticker.
type logged struct {
	Direction string          `json:"direction"` // "in" or "out"
	Type      string          `json:"type"`
	At        time.Time       `json:"at"`
	Raw       json.RawMessage `json:"raw"`
}

// threadRuntime is the conductor's per-thread state. It is only ever
// mutated while holding the conductor's mu.
type threadRuntime struct {
	id        string
	sessionID string
	state     ThreadState

	conn *transport.Connection

	feed []FeedItem

	// pendingEcho maps an outstanding clientMessageId to the feed item
	// index of its optimistic entry, so the matching server echo can
	// resolve it in place instead of appending a duplicate.
	pendingEcho map[string]int

	// queue holds messages submitted while still handshaking; drained in
	// order once server_hello arrives.
	queue []protocol.Message

	// pendingLog accumulates (direction, message) pairs since the last
	// transcript flush.
	pendingLog []logged

	timers map[string]*time.Timer
}

func newThreadRuntime(id string, conn *transport.Connection) *threadRuntime {
	return &threadRuntime{
		id:          id,
		state:       ThreadHandshaking,
		conn:        conn,
		pendingEcho: make(map[string]int),
		timers:      make(map[string]*time.Timer),
	}
}

func (t *threadRuntime) appendFeed(item FeedItem) {
	t.feed = append(t.feed, item)
	if len(t.feed) > maxFeedItems {
		dropped := len(t.feed) - maxFeedItems
		t.feed = t.feed[dropped:]
		t.feed[0] = FeedItem{
			ID:       "breadcrumb",
			ThreadID: t.id,
			At:       time.Now(),
		}
	}
}

func (t *threadRuntime) stopTimer(kind string) {
	if tm, ok := t.timers[kind]; ok {
		tm.Stop()
		delete(t.timers, kind)
	}
}

func (t *threadRuntime) stopAllTimers() {
	for kind := range t.timers {
		t.stopTimer(kind)
	}
}
