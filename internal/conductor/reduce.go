package conductor

import (
	"context"
	"time"

	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/transport"
)

// OpenThread dials a new per-thread connection and registers it under
// threadID (a client-chosen handle stable across reconnects). reattachID,
// when non-empty, asks the runtime to resume an existing session instead
// of starting a fresh one.
func (c *Conductor) OpenThread(ctx context.Context, threadID, reattachID string) error {
	conn, err := transport.Dial(ctx, c.controlURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if existing, ok := c.threads[threadID]; ok {
		existing.stopAllTimers()
		if existing.conn != nil {
			existing.conn.Close()
		}
	}
	t := newThreadRuntime(threadID, conn)
	c.threads[threadID] = t
	c.mu.Unlock()

	c.startTimer(threadID, "wsstart", handshakeTimeout)
	conn.Send(&protocol.ClientHello{Type: "client_hello", Client: "conductor", Version: "1", SessionID: reattachID})

	go conn.Run(ctx, func(msg protocol.Message) {
		select {
		case c.events <- inboundMessage{threadID: threadID, msg: msg}:
		case <-ctx.Done():
		}
	})
	go func() {
		<-conn.Done()
		select {
		case c.events <- connClosed{threadID: threadID}:
		case <-ctx.Done():
		}
	}()
	return nil
}

// reduce folds one decoded server message into the conductor's state. It
// is an exhaustive switch over the wire protocol's server->client message
// types, the REDESIGN FLAG spec.md §9 calls for in place of dynamic
// any-typed dispatch.
func (c *Conductor) reduce(ctx context.Context, threadID string, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.ServerHello:
		c.onServerHello(threadID, m)
	case *protocol.SessionBusy:
		c.onSessionBusy(threadID, m)
	case *protocol.UserMessage:
		c.onUserMessageEcho(threadID, m)
	case *protocol.ProviderStatus:
		c.onProviderStatus(m)
	case *protocol.ResetDone:
		c.appendPlain(threadID, m)
	case *protocol.ErrorMessage:
		c.onError(threadID, m)
	case *protocol.AssistantMessage,
		*protocol.Reasoning,
		*protocol.Todos,
		*protocol.Log,
		*protocol.ModelStreamChunk,
		*protocol.Ask,
		*protocol.Approval,
		*protocol.ConfigUpdated,
		*protocol.Tools,
		*protocol.Sessions,
		*protocol.ProviderCatalog,
		*protocol.ProviderAuthMethods,
		*protocol.ProviderAuthChallenge,
		*protocol.ProviderAuthResult:
		c.appendPlain(threadID, msg)
	default:
		// Unknown or client->server-only message type arriving here; log
		// and drop rather than growing the feed with something no
		// renderer understands.
	}
}

func (c *Conductor) onServerHello(threadID string, m *protocol.ServerHello) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if threadID == "" {
		c.stopControlTimer("wsstart")
		return
	}
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	t.sessionID = m.SessionID
	t.state = ThreadIdle
	t.stopTimer("wsstart")
	queued := t.queue
	t.queue = nil
	for _, qm := range queued {
		c.send(t, qm)
	}
}

func (c *Conductor) onSessionBusy(threadID string, m *protocol.SessionBusy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	c.appendPlainLocked(t, m)
	if m.Busy {
		t.state = ThreadBusy
		c.startTimerLocked(t, "busy", busyWatchdogTimeout)
		return
	}
	t.state = ThreadIdle
	t.stopTimer("busy")
	t.stopTimer("cancelgrace")
}

func (c *Conductor) onUserMessageEcho(threadID string, m *protocol.UserMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	if idx, ok := t.pendingEcho[m.ClientMessageID]; ok && idx < len(t.feed) {
		t.feed[idx].Optimistic = false
		delete(t.pendingEcho, m.ClientMessageID)
		return
	}
	t.appendFeed(FeedItem{ID: m.ClientMessageID, ThreadID: threadID, Message: m, At: time.Now()})
}

func (c *Conductor) onProviderStatus(m *protocol.ProviderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopControlTimer("providerstatus")
	c.providerStatusPending = false
}

func (c *Conductor) onError(threadID string, m *protocol.ErrorMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.threads[threadID]; ok {
		c.appendPlainLocked(t, m)
		t.state = ThreadErrored
	}
	c.notify(threadID, m.Message)
}

func (c *Conductor) appendPlain(threadID string, msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	c.appendPlainLocked(t, msg)
}

func (c *Conductor) appendPlainLocked(t *threadRuntime, msg protocol.Message) {
	t.appendFeed(FeedItem{ID: msg.MessageType(), ThreadID: t.id, Message: msg, At: time.Now()})
}

// onWatchdog handles a fired timer. Control-scoped timers ("" threadID)
// are handshake and provider-status; thread-scoped are busy, cancelgrace,
// and the per-thread handshake.
func (c *Conductor) onWatchdog(threadID, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if threadID == "" {
		delete(c.controlTimers, kind)
		switch kind {
		case "wsstart":
			c.notify("", "workspace handshake timed out")
		case "providerstatus":
			c.providerStatusPending = false
			c.notify("", "provider status refresh timed out")
		}
		return
	}

	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	delete(t.timers, kind)
	switch kind {
	case "wsstart":
		t.state = ThreadErrored
		c.notify(threadID, "thread handshake timed out")
	case "busy":
		t.state = ThreadDisconnected
		if t.conn != nil {
			t.conn.Close()
		}
		c.notify(threadID, "turn exceeded the busy watchdog, connection reset")
	case "cancelgrace":
		t.state = ThreadDisconnected
		if t.conn != nil {
			t.conn.Close()
		}
		c.notify(threadID, "cancel did not complete within grace period, connection reset")
	}
}

func (c *Conductor) onControlClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify("", "control connection closed")
}

func (c *Conductor) onThreadClosed(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return
	}
	if t.state != ThreadClosed {
		t.state = ThreadDisconnected
	}
	t.stopAllTimers()
}

// startTimerLocked is startTimer's body for a caller already holding mu.
func (c *Conductor) startTimerLocked(t *threadRuntime, kind string, d time.Duration) {
	fire := func() {
		select {
		case c.events <- watchdogFired{threadID: t.id, kind: kind}:
		case <-c.done:
		}
	}
	t.stopTimer(kind)
	t.timers[kind] = time.AfterFunc(d, fire)
}
