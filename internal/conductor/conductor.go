package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/transcript"
	"github.com/agentsessiond/agentsession/internal/transport"
)

const (
	handshakeTimeout      = 25 * time.Second
	busyWatchdogTimeout   = 90 * time.Second
	cancelGraceTimeout    = 15 * time.Second
	providerStatusTimeout = 20 * time.Second
	flushInterval         = 200 * time.Millisecond
)

// inboundMessage carries a decoded message from a connection's read loop
// into the conductor's event loop. threadID is "" for the control
// connection.
type inboundMessage struct {
	threadID string
	msg      protocol.Message
}

// watchdogFired is posted by a time.AfterFunc timer back onto the event
// loop; timers never touch conductor state directly.
type watchdogFired struct {
	threadID string
	kind     string
}

// connClosed is posted when a connection's read loop returns.
type connClosed struct {
	threadID string
}

// Conductor owns one workspace's control connection and its active thread
// connections. Threads, feeds, and timers are guarded by mu: the run loop
// and the public methods (OpenThread, SendUserMessage, Cancel, ...) mutate
// them while holding it. Connection read loops and watchdog timers never
// touch that state; they post events to the run loop by channel.
type Conductor struct {
	workspaceID string
	controlURL  string

	store *transcript.Storage

	events chan any

	mu      sync.RWMutex
	threads map[string]*threadRuntime

	control       *transport.Connection
	controlTimers map[string]*time.Timer
	notifications []Notification

	providerStatusPending bool

	done chan struct{}
}

// New builds a Conductor for a workspace. controlURL is the
// ws://127.0.0.1:<port>/session endpoint a workspace supervisor handed
// back from StartWorkspaceServer. store persists batched transcript
// flushes.
func New(workspaceID, controlURL string, store *transcript.Storage) *Conductor {
	return &Conductor{
		workspaceID: workspaceID,
		controlURL:  controlURL,
		store:       store,
		events:      make(chan any, 256),
		threads:     make(map[string]*threadRuntime),
		done:        make(chan struct{}),
	}
}

// Run dials the control connection and processes events until ctx is
// cancelled. It is meant to be run in its own goroutine for the lifetime
// of the workspace.
func (c *Conductor) Run(ctx context.Context) error {
	conn, err := transport.Dial(ctx, c.controlURL)
	if err != nil {
		return fmt.Errorf("conductor: dial control connection: %w", err)
	}
	c.mu.Lock()
	c.control = conn
	c.mu.Unlock()

	conn.Send(&protocol.ClientHello{Type: "client_hello", Client: "conductor", Version: "1"})
	c.startTimer("", "wsstart", handshakeTimeout)

	go conn.Run(ctx, func(msg protocol.Message) {
		select {
		case c.events <- inboundMessage{msg: msg}:
		case <-ctx.Done():
		}
	})
	go func() {
		<-conn.Done()
		select {
		case c.events <- connClosed{}:
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.flushAll(ctx)
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Conductor) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case inboundMessage:
		c.logInbound(e.threadID, e.msg)
		c.reduce(ctx, e.threadID, e.msg)
	case watchdogFired:
		c.onWatchdog(e.threadID, e.kind)
	case connClosed:
		if e.threadID == "" {
			c.onControlClosed()
		} else {
			c.onThreadClosed(e.threadID)
		}
	}
}

// SendUserMessage submits a user message on threadID. If the thread is
// still handshaking the message is queued and drained once server_hello
// arrives; otherwise it's sent immediately with an optimistic feed item
// keyed by a fresh clientMessageId.
func (c *Conductor) SendUserMessage(threadID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	clientMsgID := uuid.New().String()
	msg := &protocol.UserMessage{Type: "user_message", SessionID: t.sessionID, Text: text, ClientMessageID: clientMsgID}

	item := FeedItem{ID: clientMsgID, ThreadID: threadID, Message: msg, Optimistic: true, At: time.Now()}
	t.appendFeed(item)
	t.pendingEcho[clientMsgID] = len(t.feed) - 1

	if t.state == ThreadHandshaking {
		t.queue = append(t.queue, msg)
		return
	}
	c.send(t, msg)
}

// Cancel sends a cancel request for threadID and arms the cancel-grace
// watchdog.
func (c *Conductor) Cancel(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	t.state = ThreadCancelling
	c.send(t, &protocol.Cancel{Type: "cancel", SessionID: t.sessionID})
	c.startTimerLocked(t, "cancelgrace", cancelGraceTimeout)
}

// RefreshProviderStatus asks the control connection to recheck provider
// auth state and arms the provider-status watchdog.
func (c *Conductor) RefreshProviderStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.control == nil {
		return
	}
	c.providerStatusPending = true
	c.control.Send(&protocol.RefreshProviderStatus{Type: "refresh_provider_status"})
	c.startControlTimerLocked("providerstatus", providerStatusTimeout)
}

// Feed returns a snapshot of threadID's current feed.
func (c *Conductor) Feed(threadID string) []FeedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	out := make([]FeedItem, len(t.feed))
	copy(out, t.feed)
	return out
}

// State returns threadID's current lifecycle state.
func (c *Conductor) State(threadID string) (ThreadState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[threadID]
	if !ok {
		return 0, false
	}
	return t.state, true
}

// ProviderStatusPending reports whether a refresh_provider_status request
// is still awaiting its response.
func (c *Conductor) ProviderStatusPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providerStatusPending
}

// Notifications returns the workspace-level notification list.
func (c *Conductor) Notifications() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

func (c *Conductor) notify(threadID, message string) {
	c.notifications = append(c.notifications, Notification{ThreadID: threadID, Message: message, At: time.Now()})
	if len(c.notifications) > maxNotifications {
		c.notifications = c.notifications[len(c.notifications)-maxNotifications:]
	}
}

// send transmits msg on t's connection (falling back to the control
// connection for messages that have no per-thread socket yet) and records
// it for the next transcript flush.
func (c *Conductor) send(t *threadRuntime, msg protocol.Message) {
	conn := t.conn
	if conn == nil {
		conn = c.control
	}
	if conn == nil {
		return
	}
	conn.Send(msg)
	c.logOutbound(t, msg)
}

func (c *Conductor) logOutbound(t *threadRuntime, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	t.pendingLog = append(t.pendingLog, logged{Direction: "out", Type: msg.MessageType(), At: time.Now(), Raw: json.RawMessage(data)})
}

func (c *Conductor) logInbound(threadID string, msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	t.pendingLog = append(t.pendingLog, logged{Direction: "in", Type: msg.MessageType(), At: time.Now(), Raw: json.RawMessage(data)})
}

// flushAll writes every thread's pending transcript batch to the
// transcript store, 200ms-debounced per spec.md §4.4.
func (c *Conductor) flushAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.threads {
		c.flushThreadLocked(ctx, id, t)
	}
}

func (c *Conductor) flushThreadLocked(ctx context.Context, threadID string, t *threadRuntime) {
	if len(t.pendingLog) == 0 || c.store == nil {
		return
	}
	path := []string{"client-transcript", c.workspaceID, threadID}
	entries := make([]json.RawMessage, 0, len(t.pendingLog))
	for _, l := range t.pendingLog {
		data, err := json.Marshal(l)
		if err != nil {
			logging.Warn().Err(err).Str("thread", threadID).Msg("conductor: transcript entry marshal failed")
			continue
		}
		entries = append(entries, data)
	}
	if err := c.store.AppendLog(ctx, path, entries); err != nil {
		logging.Warn().Err(err).Str("thread", threadID).Msg("conductor: transcript flush failed")
		return
	}
	t.pendingLog = nil
}

// startTimer arms a watchdog for threadID ("" for the control connection).
// Callers must not already hold c.mu; use startTimerLocked /
// startControlTimerLocked from inside a locked section instead.
func (c *Conductor) startTimer(threadID, kind string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if threadID == "" {
		c.startControlTimerLocked(kind, d)
		return
	}
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	c.startTimerLocked(t, kind, d)
}

// startControlTimerLocked arms a workspace-scoped (not per-thread)
// watchdog. The caller must already hold c.mu.
func (c *Conductor) startControlTimerLocked(kind string, d time.Duration) {
	if c.controlTimers == nil {
		c.controlTimers = make(map[string]*time.Timer)
	}
	c.stopControlTimer(kind)
	fire := func() {
		select {
		case c.events <- watchdogFired{kind: kind}:
		case <-c.done:
		}
	}
	c.controlTimers[kind] = time.AfterFunc(d, fire)
}

func (c *Conductor) stopControlTimer(kind string) {
	if tm, ok := c.controlTimers[kind]; ok {
		tm.Stop()
		delete(c.controlTimers, kind)
	}
}

func (c *Conductor) shutdown() {
	close(c.done)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.threads {
		t.stopAllTimers()
		if t.conn != nil {
			t.conn.Close()
		}
	}
	for _, tm := range c.controlTimers {
		tm.Stop()
	}
	if c.control != nil {
		c.control.Close()
	}
}
