package runtime

import (
	"encoding/json"
	"sync"

	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/transport"
	"github.com/agentsessiond/agentsession/pkg/types"
)

// isDenialMessage reports whether a tool error string originated from the
// mediator rejecting the call rather than the tool itself failing, so the
// projector can tell tool_output_denied apart from a genuine tool_error.
func isDenialMessage(msg string) bool {
	switch msg {
	case "Permission denied by configuration", "Permission rejected by user", "[skipped]":
		return true
	default:
		return false
	}
}

// partProgress is how much of one part the projector has already streamed
// to the client, so a later callback invocation (which always carries the
// full parts snapshot, not a delta) only emits what's new.
type partProgress struct {
	textLen  int  // TextPart/ReasoningPart: bytes already sent
	started  bool // ToolPart: tool_input_start emitted
	rawLen   int  // ToolPart: bytes of State.Raw already sent
	callSent bool // ToolPart: tool_call emitted
	done     bool // ToolPart: a terminal chunk has been emitted
}

// streamProjector turns a turn's repeated full-snapshot ProcessCallback
// invocations into the incremental model_stream_chunk sequence spec.md's
// turn execution algorithm describes, diffing each part against what was
// already streamed rather than resending it whole.
type streamProjector struct {
	conn      *transport.Connection
	sessionID string
	turnID    int64

	mu    sync.Mutex
	index int
	sent  map[string]*partProgress
}

func newStreamProjector(conn *transport.Connection, sessionID string, turnID int64) *streamProjector {
	return &streamProjector{
		conn:      conn,
		sessionID: sessionID,
		turnID:    turnID,
		sent:      make(map[string]*partProgress),
	}
}

// project diffs parts against prior progress and emits every chunk the
// delta warrants. Safe to call repeatedly with overlapping/growing
// snapshots of the same turn.
func (sp *streamProjector) project(parts []types.Part) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for _, part := range parts {
		switch tp := part.(type) {
		case *types.TextPart:
			sp.projectTextLocked(tp)
		case *types.ReasoningPart:
			sp.projectReasoningLocked(tp)
		case *types.ToolPart:
			sp.projectToolLocked(tp)
		}
	}
}

func (sp *streamProjector) progressLocked(partID string) *partProgress {
	pr, ok := sp.sent[partID]
	if !ok {
		pr = &partProgress{}
		sp.sent[partID] = pr
	}
	return pr
}

func (sp *streamProjector) projectTextLocked(tp *types.TextPart) {
	pr := sp.progressLocked(tp.ID)
	if len(tp.Text) <= pr.textLen {
		return
	}
	delta := tp.Text[pr.textLen:]
	pr.textLen = len(tp.Text)
	sp.emitLocked("text_delta", map[string]string{"text": delta})
}

func (sp *streamProjector) projectReasoningLocked(tp *types.ReasoningPart) {
	pr := sp.progressLocked(tp.ID)
	if len(tp.Text) <= pr.textLen {
		return
	}
	delta := tp.Text[pr.textLen:]
	pr.textLen = len(tp.Text)
	sp.emitLocked("reasoning_delta", map[string]string{"text": delta})
}

func (sp *streamProjector) projectToolLocked(tp *types.ToolPart) {
	pr := sp.progressLocked(tp.ID)
	if pr.done {
		return
	}
	if !pr.started {
		pr.started = true
		sp.emitLocked("tool_input_start", map[string]any{"callId": tp.CallID, "tool": tp.Tool})
	}
	if len(tp.State.Raw) > pr.rawLen {
		delta := tp.State.Raw[pr.rawLen:]
		pr.rawLen = len(tp.State.Raw)
		sp.emitLocked("tool_input_delta", map[string]any{"callId": tp.CallID, "delta": delta})
	}
	if !pr.callSent && tp.State.Status == "running" && len(tp.State.Input) > 0 {
		pr.callSent = true
		sp.emitLocked("tool_call", map[string]any{"callId": tp.CallID, "tool": tp.Tool, "input": tp.State.Input})
	}
	switch tp.State.Status {
	case "completed":
		pr.done = true
		sp.emitLocked("tool_result", map[string]any{"callId": tp.CallID, "output": tp.State.Output})
	case "error":
		pr.done = true
		if isDenialMessage(tp.State.Error) {
			sp.emitLocked("tool_output_denied", map[string]any{"callId": tp.CallID, "reason": "denied"})
		} else {
			sp.emitLocked("tool_error", map[string]any{"callId": tp.CallID, "error": tp.State.Error})
		}
	}
}

// emitLocked marshals payload and sends one model_stream_chunk. Caller must
// hold sp.mu.
func (sp *streamProjector) emitLocked(partType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	idx := sp.index
	sp.index++
	sp.conn.Send(&protocol.ModelStreamChunk{
		Type:      "model_stream_chunk",
		SessionID: sp.sessionID,
		TurnID:    sp.turnID,
		Index:     idx,
		PartType:  partType,
		Part:      data,
	})
}

// finish emits the turn's terminal chunk, always the last model_stream_chunk
// sent for turnID.
func (sp *streamProjector) finish() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.emitLocked("finish", map[string]any{})
}
