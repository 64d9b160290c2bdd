package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/agentsessiond/agentsession/internal/auth"
	"github.com/agentsessiond/agentsession/internal/command"
	"github.com/agentsessiond/agentsession/internal/event"
	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/mediator"
	"github.com/agentsessiond/agentsession/internal/protocol"
	"github.com/agentsessiond/agentsession/internal/provider"
	"github.com/agentsessiond/agentsession/internal/tool"
	"github.com/agentsessiond/agentsession/internal/transport"
	"github.com/agentsessiond/agentsession/pkg/types"
)

// Dispatcher adapts the session Service/Processor to the transport.Handler
// interface, translating wire protocol messages into runtime operations and
// runtime events back into wire protocol messages. It implements the
// explicit lifecycle state machine (initializing|idle|busy|cancelling|closed)
// spec.md's runtime module calls for, as an enum guarding transitions
// instead of the teacher's bare active-session map.
type Dispatcher struct {
	service   *Service
	toolReg   *tool.Registry
	agent     *Agent
	workDir   string
	providers *provider.Registry
	authStore *auth.Store
	authMgr   *auth.Manager
	checker   *mediator.Checker
	commands  *command.Executor

	mu          sync.Mutex
	turnSeq     int64
	sessions    map[*transport.Connection]*sessionBinding
	sessionConn map[string]*transport.Connection
}

// lifecycleState enumerates the session runtime states of spec.md §4.2.
type lifecycleState int32

const (
	stateInitializing lifecycleState = iota
	stateIdle
	stateBusy
	stateCancelling
	stateClosed
)

// sessionBinding tracks a connection's bound session: its lifecycle state
// (atomic, polled from multiple goroutines) plus the mutable configuration
// set via set_model/set_enable_mcp/set_config/harness_context_set, which a
// single connection mutates serially and so is guarded by a plain mutex.
type sessionBinding struct {
	sessionID string
	state     atomic.Int32

	cfgMu     sync.Mutex
	model     string
	provider  string
	enableMCP bool
	config    protocol.SessionConfig
	harness   *protocol.HarnessContext
}

func (b *sessionBinding) get() lifecycleState  { return lifecycleState(b.state.Load()) }
func (b *sessionBinding) set(s lifecycleState) { b.state.Store(int32(s)) }

// settings snapshots the binding's current configuration for a
// session_settings broadcast.
func (b *sessionBinding) settings() protocol.SessionSettings {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	return protocol.SessionSettings{
		Type:      "session_settings",
		SessionID: b.sessionID,
		Model:     b.model,
		Provider:  b.provider,
		EnableMCP: b.enableMCP,
		Config:    b.config,
	}
}

// NewDispatcher builds a Dispatcher over an existing Service.
func NewDispatcher(service *Service, toolReg *tool.Registry, agent *Agent, workDir string) *Dispatcher {
	return &Dispatcher{
		service:     service,
		toolReg:     toolReg,
		agent:       agent,
		workDir:     workDir,
		sessions:    make(map[*transport.Connection]*sessionBinding),
		sessionConn: make(map[string]*transport.Connection),
	}
}

// WithProviderAuth attaches provider catalog/auth support. Optional: a
// Dispatcher built without it treats every provider_auth_* message as
// unhandled, which is fine for the standalone agentsessiond entrypoint
// run without any configured providers.
func (d *Dispatcher) WithProviderAuth(providers *provider.Registry, authPath string) *Dispatcher {
	d.providers = providers
	d.authStore = auth.NewStore(authPath)
	d.authMgr = auth.NewManager(d.authStore, auth.ConfigFor)
	return d
}

// WithCommands attaches the slash-command executor backing list_commands.
// Optional: without it, list_commands reports only the built-ins.
func (d *Dispatcher) WithCommands(exec *command.Executor) *Dispatcher {
	d.commands = exec
	return d
}

// WithMediator attaches the tool mediator so permission.required events
// raised deep inside tool execution surface as approval messages on the
// connection owning the session that raised them.
func (d *Dispatcher) WithMediator(checker *mediator.Checker) *Dispatcher {
	d.checker = checker
	event.Subscribe(event.PermissionRequired, func(e event.Event) {
		data, ok := e.Data.(event.PermissionRequiredData)
		if !ok {
			return
		}
		d.mu.Lock()
		conn, ok := d.sessionConn[data.SessionID]
		d.mu.Unlock()
		if !ok {
			return
		}
		conn.Send(&protocol.Approval{
			Type:       "approval",
			SessionID:  data.SessionID,
			RequestID:  data.ID,
			Command:    data.Title,
			ReasonCode: data.PermissionType,
		})
	})
	return d
}

// OnConnect does nothing eagerly; the session is created lazily on
// client_hello so the dispatcher never guesses a working directory before
// the client identifies itself.
func (d *Dispatcher) OnConnect(ctx context.Context, conn *transport.Connection) {}

// OnDisconnect marks any session bound to this connection for cleanup.
func (d *Dispatcher) OnDisconnect(conn *transport.Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.sessions[conn]; ok {
		b.set(stateClosed)
		delete(d.sessions, conn)
		delete(d.sessionConn, b.sessionID)
	}
}

// OnMessage routes one decoded wire message for a connection.
func (d *Dispatcher) OnMessage(ctx context.Context, conn *transport.Connection, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.ClientHello:
		d.handleHello(ctx, conn, m)
	case *protocol.Ping:
		// no reply required; presence of a read is the liveness signal.
	case *protocol.UserMessage:
		d.handleUserMessage(ctx, conn, m)
	case *protocol.Cancel:
		d.handleCancel(conn, m.SessionID)
	case *protocol.SessionClose:
		d.handleClose(conn, m.SessionID)
	case *protocol.ListTools:
		d.handleListTools(conn, m.SessionID)
	case *protocol.GetMessages:
		d.handleGetMessages(ctx, conn, m)
	case *protocol.ProviderCatalogGet:
		d.handleProviderCatalogGet(conn)
	case *protocol.ProviderAuthMethodsGet:
		d.handleProviderAuthMethodsGet(conn, m)
	case *protocol.ProviderAuthSetAPIKey:
		d.handleProviderAuthSetAPIKey(conn, m)
	case *protocol.ProviderAuthAuthorize:
		d.handleProviderAuthAuthorize(ctx, conn, m)
	case *protocol.ProviderAuthCallback:
		d.handleProviderAuthCallback(ctx, conn, m)
	case *protocol.RefreshProviderStatus:
		d.handleRefreshProviderStatus(conn)
	case *protocol.ApprovalResponse:
		d.handleApprovalResponse(m)
	case *protocol.AskResponse:
		d.handleAskResponse(m)
	case *protocol.SetModel:
		d.handleSetModel(conn, m)
	case *protocol.SetEnableMCP:
		d.handleSetEnableMCP(conn, m)
	case *protocol.SetConfig:
		d.handleSetConfig(conn, m)
	case *protocol.Reset:
		d.handleReset(ctx, conn, m)
	case *protocol.ListSessions:
		d.handleListSessions(ctx, conn)
	case *protocol.ListCommands:
		d.handleListCommands(conn, m.SessionID)
	case *protocol.ListSkills:
		d.handleListSkills(conn, m.SessionID)
	case *protocol.SetSessionTitle:
		d.handleSetSessionTitle(ctx, conn, m)
	case *protocol.DeleteSession:
		d.handleDeleteSession(ctx, conn, m)
	case *protocol.UploadFile:
		d.handleUploadFile(conn, m)
	case *protocol.SessionBackupGet:
		d.handleSessionBackupGet(ctx, conn, m)
	case *protocol.SessionBackupCheckpoint:
		d.handleSessionBackupCheckpoint(ctx, conn, m)
	case *protocol.SessionBackupRestore:
		d.handleSessionBackupRestore(ctx, conn, m)
	case *protocol.SessionBackupDeleteCheckpoint:
		d.handleSessionBackupDeleteCheckpoint(ctx, conn, m)
	case *protocol.HarnessContextSet:
		d.handleHarnessContextSet(conn, m)
	case *protocol.HarnessContextGet:
		d.handleHarnessContextGet(conn, m)
	default:
		logging.Debug().Str("type", msg.MessageType()).Msg("dispatcher: unhandled message type")
	}
}

func (d *Dispatcher) handleHello(ctx context.Context, conn *transport.Connection, m *protocol.ClientHello) {
	var sess *types.Session
	var err error
	if m.SessionID != "" {
		sess, err = d.service.Get(ctx, m.SessionID)
	}
	if sess == nil {
		sess, err = d.service.Create(ctx, d.workDir, "")
	}
	if err != nil {
		conn.Send(&protocol.ErrorMessage{Type: "error", Source: "runtime", Code: "create_failed", Message: err.Error()})
		return
	}

	b := &sessionBinding{sessionID: sess.ID}
	b.set(stateIdle)
	d.mu.Lock()
	d.sessions[conn] = b
	d.sessionConn[sess.ID] = conn
	d.mu.Unlock()

	cfg, _ := json.Marshal(map[string]any{"model": ""})
	conn.Send(&protocol.ServerHello{Type: "server_hello", SessionID: sess.ID, Config: cfg})
}

func (d *Dispatcher) handleUserMessage(ctx context.Context, conn *transport.Connection, m *protocol.UserMessage) {
	d.mu.Lock()
	b, ok := d.sessions[conn]
	d.mu.Unlock()
	if !ok || b.get() == stateClosed {
		conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: m.SessionID, Source: "protocol", Code: "validation_failed", Message: "no active session for this connection"})
		return
	}

	turnID := atomic.AddInt64(&d.turnSeq, 1)
	b.set(stateBusy)
	conn.Send(&protocol.SessionBusy{Type: "session_busy", SessionID: m.SessionID, Busy: true})

	if err := d.service.AddMessage(ctx, m.SessionID, &types.Message{
		ID:        ulid.Make().String(),
		SessionID: m.SessionID,
		Role:      "user",
	}); err != nil {
		logging.Warn().Err(err).Msg("dispatcher: persist user message failed")
	}

	projector := newStreamProjector(conn, m.SessionID, turnID)
	var partsMu sync.Mutex
	var lastParts []types.Part
	callback := func(msg *types.Message, parts []types.Part) {
		projector.project(parts)
		partsMu.Lock()
		lastParts = parts
		partsMu.Unlock()
	}

	go func() {
		err := d.service.GetProcessor().Process(ctx, m.SessionID, d.agent, callback)
		if err != nil {
			conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: m.SessionID, Source: "runtime", Code: "turn_failed", Message: err.Error()})
		}
		partsMu.Lock()
		parts := lastParts
		partsMu.Unlock()
		text := ""
		for _, p := range parts {
			if tp, ok := p.(*types.TextPart); ok {
				text += tp.Text
			}
		}
		projector.finish()
		conn.Send(&protocol.AssistantMessage{Type: "assistant_message", SessionID: m.SessionID, TurnID: turnID, Text: text})
		if b.get() != stateClosed {
			b.set(stateIdle)
		}
		conn.Send(&protocol.SessionBusy{Type: "session_busy", SessionID: m.SessionID, Busy: false})
	}()
}

func (d *Dispatcher) handleCancel(conn *transport.Connection, sessionID string) {
	d.mu.Lock()
	b, ok := d.sessions[conn]
	d.mu.Unlock()
	if !ok || b.get() != stateBusy {
		return // idle cancel is a no-op per spec.md §4.2
	}
	b.set(stateCancelling)
	if err := d.service.Abort(context.Background(), sessionID); err != nil {
		logging.Warn().Err(err).Msg("dispatcher: abort failed")
	}
	// Any prompt/approval request the turn raised and is still awaiting an
	// answer must be resolved now with the synthetic skip token, or the
	// tool call blocked on it leaks forever once the turn is torn down.
	if d.checker != nil {
		d.checker.DrainSession(sessionID)
	}
}

func (d *Dispatcher) handleClose(conn *transport.Connection, sessionID string) {
	d.mu.Lock()
	if b, ok := d.sessions[conn]; ok {
		b.set(stateClosed)
		delete(d.sessions, conn)
		delete(d.sessionConn, b.sessionID)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) handleListTools(conn *transport.Connection, sessionID string) {
	ids := d.toolReg.IDs()
	data, _ := json.Marshal(ids)
	conn.Send(&protocol.Tools{Type: "tools", SessionID: sessionID, Tools: data})
}

func (d *Dispatcher) handleGetMessages(ctx context.Context, conn *transport.Connection, m *protocol.GetMessages) {
	msgs, err := d.service.GetMessages(ctx, m.SessionID)
	if err != nil {
		conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: m.SessionID, Source: "runtime", Code: "not_found", Message: err.Error()})
		return
	}
	offset, limit := m.Offset, m.Limit
	if limit == 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	if offset > len(msgs) {
		offset = len(msgs)
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	data, _ := json.Marshal(msgs[offset:end])
	conn.Send(&protocol.Sessions{Type: "sessions", Sessions: data})
}

func (d *Dispatcher) bindingFor(conn *transport.Connection) (*sessionBinding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.sessions[conn]
	return b, ok
}

// ---- Configuration ----

func (d *Dispatcher) handleSetModel(conn *transport.Connection, m *protocol.SetModel) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	b.cfgMu.Lock()
	b.model = m.Model
	b.provider = m.Provider
	b.cfgMu.Unlock()
	settings := b.settings()
	conn.Send(&settings)
}

func (d *Dispatcher) handleSetEnableMCP(conn *transport.Connection, m *protocol.SetEnableMCP) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	b.cfgMu.Lock()
	b.enableMCP = m.EnableMCP
	b.cfgMu.Unlock()
	settings := b.settings()
	conn.Send(&settings)
}

func (d *Dispatcher) handleSetConfig(conn *transport.Connection, m *protocol.SetConfig) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	b.cfgMu.Lock()
	if m.Config.Yolo != nil {
		b.config.Yolo = m.Config.Yolo
	}
	if m.Config.ObservabilityEnabled != nil {
		b.config.ObservabilityEnabled = m.Config.ObservabilityEnabled
	}
	if m.Config.SubAgentModel != nil {
		b.config.SubAgentModel = m.Config.SubAgentModel
	}
	if m.Config.MaxSteps != nil {
		b.config.MaxSteps = m.Config.MaxSteps
	}
	cfg := b.config
	b.cfgMu.Unlock()

	data, _ := json.Marshal(cfg)
	conn.Send(&protocol.ConfigUpdated{Type: "config_updated", SessionID: m.SessionID, Config: data})
	settings := b.settings()
	conn.Send(&settings)
}

// ---- Reset ----

func (d *Dispatcher) handleReset(ctx context.Context, conn *transport.Connection, m *protocol.Reset) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	if b.get() == stateBusy {
		d.handleCancel(conn, m.SessionID)
	}
	if d.checker != nil {
		d.checker.DrainSession(m.SessionID)
	}
	b.set(stateIdle)
	conn.Send(&protocol.ResetDone{Type: "reset_done", SessionID: m.SessionID})
}

// ---- Session management ----

func (d *Dispatcher) handleListSessions(ctx context.Context, conn *transport.Connection) {
	sessions, err := d.service.List(ctx, "")
	if err != nil {
		conn.Send(&protocol.ErrorMessage{Type: "error", Source: "runtime", Code: apperrorInternal, Message: err.Error()})
		return
	}
	data, _ := json.Marshal(sessions)
	conn.Send(&protocol.Sessions{Type: "sessions", Sessions: data})
}

func (d *Dispatcher) handleListCommands(conn *transport.Connection, sessionID string) {
	var cmds []*command.Command
	if d.commands != nil {
		cmds = d.commands.List()
	} else {
		cmds = command.BuiltinCommands()
	}
	data, _ := json.Marshal(cmds)
	conn.Send(&protocol.Commands{Type: "commands", Commands: data})
}

// handleListSkills reports no skills: skill discovery lives in the
// workspace-side skill registry, which this server only receives events
// from, never owns.
func (d *Dispatcher) handleListSkills(conn *transport.Connection, sessionID string) {
	conn.Send(&protocol.SkillsList{Type: "skills_list", Skills: json.RawMessage("[]")})
}

func (d *Dispatcher) handleSetSessionTitle(ctx context.Context, conn *transport.Connection, m *protocol.SetSessionTitle) {
	if _, err := d.service.Update(ctx, m.SessionID, map[string]any{"title": m.Title}); err != nil {
		conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: m.SessionID, Source: "runtime", Code: apperrorNotFound, Message: err.Error()})
		return
	}
	conn.Send(&protocol.SessionUpdated{Type: "session_updated", SessionID: m.SessionID, Title: m.Title})
}

func (d *Dispatcher) handleDeleteSession(ctx context.Context, conn *transport.Connection, m *protocol.DeleteSession) {
	if err := d.service.Delete(ctx, m.TargetSessionID); err != nil {
		conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: m.SessionID, Source: "runtime", Code: apperrorNotFound, Message: err.Error()})
		return
	}
	conn.Send(&protocol.SessionDeleted{Type: "session_deleted", SessionID: m.SessionID, TargetSessionID: m.TargetSessionID})
}

// handleUploadFile writes the decoded attachment under the session's
// working directory, mirroring how tool.Registry resolves file paths
// relative to d.workDir.
func (d *Dispatcher) handleUploadFile(conn *transport.Connection, m *protocol.UploadFile) {
	data, err := base64.StdEncoding.DecodeString(m.ContentBase64)
	if err != nil {
		conn.Send(&protocol.UploadFileResult{Type: "upload_file_result", SessionID: m.SessionID, OK: false, Message: "invalid base64 content"})
		return
	}
	dest := filepath.Join(d.workDir, filepath.Base(m.Filename))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		conn.Send(&protocol.UploadFileResult{Type: "upload_file_result", SessionID: m.SessionID, OK: false, Message: err.Error()})
		return
	}
	conn.Send(&protocol.UploadFileResult{Type: "upload_file_result", SessionID: m.SessionID, OK: true})
}

// ---- Checkpoints ----

func (d *Dispatcher) backupError(conn *transport.Connection, sessionID, action, message string) {
	conn.Send(&protocol.SessionBackupResult{Type: "session_backup_result", SessionID: sessionID, Action: action, OK: false, Message: message})
}

func (d *Dispatcher) handleSessionBackupGet(ctx context.Context, conn *transport.Connection, m *protocol.SessionBackupGet) {
	checkpoints, err := d.service.ListCheckpoints(ctx, m.SessionID)
	if err != nil {
		d.backupError(conn, m.SessionID, "list", err.Error())
		return
	}
	summaries := make([]protocol.CheckpointSummary, 0, len(checkpoints))
	for _, cp := range checkpoints {
		summaries = append(summaries, protocol.CheckpointSummary{ID: cp.ID, CreatedAt: cp.CreatedAt})
	}
	conn.Send(&protocol.SessionBackupList{Type: "session_backup_list", SessionID: m.SessionID, Checkpoints: summaries})
}

func (d *Dispatcher) handleSessionBackupCheckpoint(ctx context.Context, conn *transport.Connection, m *protocol.SessionBackupCheckpoint) {
	cp, err := d.service.Checkpoint(ctx, m.SessionID)
	if err != nil {
		d.backupError(conn, m.SessionID, "checkpoint", err.Error())
		return
	}
	conn.Send(&protocol.SessionBackupResult{Type: "session_backup_result", SessionID: m.SessionID, Action: "checkpoint", OK: true, CheckpointID: cp.ID})
}

func (d *Dispatcher) handleSessionBackupRestore(ctx context.Context, conn *transport.Connection, m *protocol.SessionBackupRestore) {
	if err := d.service.RestoreCheckpoint(ctx, m.SessionID, m.CheckpointID); err != nil {
		d.backupError(conn, m.SessionID, "restore", err.Error())
		return
	}
	conn.Send(&protocol.SessionBackupResult{Type: "session_backup_result", SessionID: m.SessionID, Action: "restore", OK: true, CheckpointID: m.CheckpointID})
}

func (d *Dispatcher) handleSessionBackupDeleteCheckpoint(ctx context.Context, conn *transport.Connection, m *protocol.SessionBackupDeleteCheckpoint) {
	if err := d.service.DeleteCheckpoint(ctx, m.SessionID, m.CheckpointID); err != nil {
		d.backupError(conn, m.SessionID, "delete", err.Error())
		return
	}
	conn.Send(&protocol.SessionBackupResult{Type: "session_backup_result", SessionID: m.SessionID, Action: "delete", OK: true, CheckpointID: m.CheckpointID})
}

// ---- Harness context ----

func (d *Dispatcher) handleHarnessContextSet(conn *transport.Connection, m *protocol.HarnessContextSet) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	ctxCopy := m.Context
	b.cfgMu.Lock()
	b.harness = &ctxCopy
	b.cfgMu.Unlock()
	conn.Send(&protocol.HarnessContextState{Type: "harness_context", SessionID: m.SessionID, Context: &ctxCopy})
}

func (d *Dispatcher) handleHarnessContextGet(conn *transport.Connection, m *protocol.HarnessContextGet) {
	b, ok := d.bindingFor(conn)
	if !ok {
		return
	}
	b.cfgMu.Lock()
	harness := b.harness
	b.cfgMu.Unlock()
	conn.Send(&protocol.HarnessContextState{Type: "harness_context", SessionID: m.SessionID, Context: harness})
}

// ---- Provider auth ----

func (d *Dispatcher) providerAuthError(conn *transport.Connection, sessionID, code, message string) {
	conn.Send(&protocol.ErrorMessage{Type: "error", SessionID: sessionID, Source: "auth", Code: code, Message: message})
}

func (d *Dispatcher) handleProviderCatalogGet(conn *transport.Connection) {
	if d.providers == nil {
		conn.Send(&protocol.ProviderCatalog{Type: "provider_catalog", All: auth.AllProviders()})
		return
	}
	all := auth.AllProviders()
	connected := make([]string, 0, len(all))
	for _, p := range all {
		if _, ok := d.authStore.Get(p); ok {
			connected = append(connected, p)
		}
	}
	def := ""
	if m, err := d.providers.DefaultModel(); err == nil {
		def = m.ProviderID
	}
	conn.Send(&protocol.ProviderCatalog{Type: "provider_catalog", All: all, Default: def, Connected: connected})
}

func (d *Dispatcher) handleProviderAuthMethodsGet(conn *transport.Connection, m *protocol.ProviderAuthMethodsGet) {
	methods := auth.MethodsFor(m.Provider)
	data, _ := json.Marshal(methods)
	conn.Send(&protocol.ProviderAuthMethods{Type: "provider_auth_methods", Methods: data})
}

func (d *Dispatcher) handleProviderAuthSetAPIKey(conn *transport.Connection, m *protocol.ProviderAuthSetAPIKey) {
	if d.authStore == nil {
		d.providerAuthError(conn, "", apperrorNotFound, "provider auth not configured")
		return
	}
	method, ok := auth.FindMethod(m.Provider, m.MethodID)
	if !ok || method.Type != "api" {
		d.providerAuthError(conn, "", apperrorValidation, "unknown api auth method")
		return
	}
	if err := d.authStore.SetAPIKey(m.Provider, m.APIKey); err != nil {
		d.providerAuthError(conn, "", apperrorInternal, err.Error())
		return
	}
	conn.Send(&protocol.ProviderAuthResult{Type: "provider_auth_result", OK: true, Provider: m.Provider, MethodID: m.MethodID, Mode: "api-key"})
	d.handleRefreshProviderStatus(conn)
	d.handleProviderCatalogGet(conn)
}

func (d *Dispatcher) handleProviderAuthAuthorize(ctx context.Context, conn *transport.Connection, m *protocol.ProviderAuthAuthorize) {
	if d.authMgr == nil {
		d.providerAuthError(conn, "", apperrorNotFound, "provider auth not configured")
		return
	}
	method, ok := auth.FindMethod(m.Provider, m.MethodID)
	if !ok || method.Type != "oauth" {
		d.providerAuthError(conn, "", apperrorValidation, "unknown oauth auth method")
		return
	}
	flow, err := d.authMgr.Authorize(ctx, m.Provider, m.MethodID)
	if err != nil {
		d.providerAuthError(conn, "", apperrorInternal, err.Error())
		return
	}
	challenge := &protocol.ProviderAuthChallenge{Type: "provider_auth_challenge", Provider: m.Provider, MethodID: m.MethodID}
	challenge.Challenge.Instructions = method.Instructions
	challenge.Challenge.URL = flow.URL
	conn.Send(challenge)

	go func() {
		ok, msg := flow.Wait(ctx, d.authStore)
		conn.Send(&protocol.ProviderAuthResult{Type: "provider_auth_result", OK: ok, Provider: m.Provider, MethodID: m.MethodID, Mode: "oauth", Message: msg})
		d.handleRefreshProviderStatus(conn)
		d.handleProviderCatalogGet(conn)
	}()
}

func (d *Dispatcher) handleProviderAuthCallback(ctx context.Context, conn *transport.Connection, m *protocol.ProviderAuthCallback) {
	if d.authMgr == nil {
		d.providerAuthError(conn, "", apperrorNotFound, "provider auth not configured")
		return
	}
	if err := d.authMgr.Callback(ctx, m.Provider, m.MethodID, m.Code); err != nil {
		conn.Send(&protocol.ProviderAuthResult{Type: "provider_auth_result", OK: false, Provider: m.Provider, MethodID: m.MethodID, Message: err.Error()})
		return
	}
}

func (d *Dispatcher) handleRefreshProviderStatus(conn *transport.Connection) {
	if d.authStore == nil {
		conn.Send(&protocol.ProviderStatus{Type: "provider_status"})
		return
	}
	creds := d.authStore.All()
	entries := make([]protocol.ProviderStatusEntry, 0, len(creds))
	for p, c := range creds {
		entries = append(entries, protocol.ProviderStatusEntry{
			Provider:   p,
			Mode:       string(c.Mode),
			Authorized: true,
			Verified:   true,
			Account:    c.Account,
		})
	}
	conn.Send(&protocol.ProviderStatus{Type: "provider_status", Providers: entries})
}

const (
	apperrorNotFound   = "not_found"
	apperrorValidation = "validation_failed"
	apperrorInternal   = "internal"
)

// handleApprovalResponse resolves a pending tool-risk approval raised via
// WithMediator's permission.required subscription. The wire protocol only
// carries a yes/no answer, so it maps to the mediator's "once" grant
// rather than "always" — a client wanting to remember the choice across
// calls would need a richer ApprovalResponse shape than spec.md defines.
func (d *Dispatcher) handleApprovalResponse(m *protocol.ApprovalResponse) {
	if d.checker == nil {
		return
	}
	action := "reject"
	if m.Approved {
		action = "once"
	}
	d.checker.Respond(m.RequestID, action)
}

// handleAskResponse resolves a pending free-form prompt the same way
// handleApprovalResponse resolves a risk approval. Prompts that aren't
// backed by a mediator request (a tool never asked) are silently dropped.
func (d *Dispatcher) handleAskResponse(m *protocol.AskResponse) {
	if d.checker == nil {
		return
	}
	d.checker.Respond(m.RequestID, m.Answer)
}
