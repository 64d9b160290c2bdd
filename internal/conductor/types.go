// Package conductor implements the client-side session conductor shared by
// every client of a workspace server: one control connection plus one
// connection per active thread, a reducer that folds server events into
// per-thread feeds, optimistic echo suppression, watchdog timers, and
// batched transcript persistence. The teacher has no client analogue of
// this (its session loop runs entirely server-side), so this package is
// new code written in the teacher's idiom: all mutable state sits behind
// one mutex, the discipline internal/event.Bus uses for its subscriber
// list, with the timer hygiene internal/session/loop.go applies to its
// retry backoff.
package conductor

import (
	"time"

	"github.com/agentsessiond/agentsession/internal/protocol"
)

// ThreadState is the client-observed lifecycle of one thread connection,
// the projection of the runtime's lifecycleState plus the purely
// client-side "handshaking" and "disconnected" states.
type ThreadState int

const (
	ThreadHandshaking ThreadState = iota
	ThreadIdle
	ThreadBusy
	ThreadCancelling
	ThreadDisconnected
	ThreadErrored
	ThreadClosed
)

func (s ThreadState) String() string {
	switch s {
	case ThreadHandshaking:
		return "handshaking"
	case ThreadIdle:
		return "idle"
	case ThreadBusy:
		return "busy"
	case ThreadCancelling:
		return "cancelling"
	case ThreadDisconnected:
		return "disconnected"
	case ThreadErrored:
		return "errored"
	case ThreadClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FeedItem is one entry in a thread's feed, the client-visible projection
// of a server event. Optimistic is true for a locally-appended user
// message still awaiting its server echo.
type FeedItem struct {
	ID         string
	ThreadID   string
	Message    protocol.Message
	Optimistic bool
	At         time.Time
}

// maxFeedItems bounds each thread's feed per spec.md §5; the oldest items
// are dropped on overflow and a breadcrumb item takes their place.
const maxFeedItems = 2000

// maxNotifications bounds the workspace-level notification list.
const maxNotifications = 50

// Notification is a workspace-level surface for handshake failures,
// watchdog expiries, and provider-status timeouts -- anything that isn't
// naturally scoped to one thread's feed.
type Notification struct {
	ThreadID string
	Message  string
	At       time.Time
}
