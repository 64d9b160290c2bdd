package conductor

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/transcript"
	"github.com/agentsessiond/agentsession/internal/transport"
)

// scriptedHandler is a minimal transport.Handler standing in for the
// runtime dispatcher: it says hello immediately and, on a user_message,
// reports busy, echoes it back, replies, then reports idle, enough to exercise the
// conductor's reducer and watchdog wiring without the full runtime.
type scriptedHandler struct {
	sessionID string
}

func (h *scriptedHandler) OnConnect(ctx context.Context, conn *transport.Connection) {
	conn.Send(&protocol.ServerHello{Type: "server_hello", SessionID: h.sessionID})
}

func (h *scriptedHandler) OnMessage(ctx context.Context, conn *transport.Connection, msg protocol.Message) {
	um, ok := msg.(*protocol.UserMessage)
	if !ok {
		return
	}
	conn.Send(&protocol.SessionBusy{Type: "session_busy", SessionID: h.sessionID, Busy: true})
	conn.Send(um)
	conn.Send(&protocol.AssistantMessage{Type: "assistant_message", SessionID: h.sessionID, Text: "hi back"})
	conn.Send(&protocol.SessionBusy{Type: "session_busy", SessionID: h.sessionID, Busy: false})
}

func (h *scriptedHandler) OnDisconnect(conn *transport.Connection) {}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/session"
}

func TestConductor_OpenThreadAndEcho(t *testing.T) {
	handler := &scriptedHandler{sessionID: "sess-1"}
	transportSrv := transport.New(transport.Config{}, handler)
	srv := httptest.NewServer(transportSrv.Router())
	defer srv.Close()

	store := transcript.New(t.TempDir())
	cond := New("ws-1", wsURL(t, srv), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cond.Run(ctx)

	require.NoError(t, cond.OpenThread(ctx, "thread-1", ""))
	require.Eventually(t, func() bool {
		st, ok := cond.State("thread-1")
		return ok && st == ThreadIdle
	}, 2*time.Second, 10*time.Millisecond)

	cond.SendUserMessage("thread-1", "hello")

	require.Eventually(t, func() bool {
		st, ok := cond.State("thread-1")
		return ok && st == ThreadIdle
	}, 2*time.Second, 10*time.Millisecond)

	feed := cond.Feed("thread-1")
	require.NotEmpty(t, feed)

	var sawOptimisticResolved, sawAssistant bool
	for _, item := range feed {
		if um, ok := item.Message.(*protocol.UserMessage); ok && um.Text == "hello" {
			if !item.Optimistic {
				sawOptimisticResolved = true
			}
		}
		if _, ok := item.Message.(*protocol.AssistantMessage); ok {
			sawAssistant = true
		}
	}
	require.True(t, sawOptimisticResolved, "expected the optimistic echo to resolve")
	require.True(t, sawAssistant, "expected the assistant reply in the feed")
}

func TestConductor_QueuesMessagesDuringHandshake(t *testing.T) {
	handler := &scriptedHandler{sessionID: "sess-2"}
	transportSrv := transport.New(transport.Config{}, handler)
	srv := httptest.NewServer(transportSrv.Router())
	defer srv.Close()

	store := transcript.New(t.TempDir())
	cond := New("ws-2", wsURL(t, srv), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cond.Run(ctx)
	require.NoError(t, cond.OpenThread(ctx, "thread-1", ""))

	// Send immediately; the thread may still be handshaking.
	cond.SendUserMessage("thread-1", "queued")

	require.Eventually(t, func() bool {
		feed := cond.Feed("thread-1")
		for _, item := range feed {
			if um, ok := item.Message.(*protocol.UserMessage); ok && um.Text == "queued" && !item.Optimistic {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConductor_FlushesTranscript(t *testing.T) {
	handler := &scriptedHandler{sessionID: "sess-3"}
	transportSrv := transport.New(transport.Config{}, handler)
	srv := httptest.NewServer(transportSrv.Router())
	defer srv.Close()

	store := transcript.New(t.TempDir())
	cond := New("ws-3", wsURL(t, srv), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cond.Run(ctx)
	require.NoError(t, cond.OpenThread(ctx, "thread-1", ""))
	require.Eventually(t, func() bool {
		st, ok := cond.State("thread-1")
		return ok && st == ThreadIdle
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, err := store.ReadLog(ctx, []string{"client-transcript", "ws-3", "thread-1"})
		return err == nil && len(entries) > 0
	}, 2*time.Second, 20*time.Millisecond)
}
