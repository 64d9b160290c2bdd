// Package protocol defines the wire message types exchanged between the
// agent session server and its clients over the persistent transport
// connection, and the discriminated-union codec that (de)serializes them.
package protocol

import "encoding/json"

// Message is implemented by every wire message type. MessageType returns the
// exact string carried in the "type" field.
type Message interface {
	MessageType() string
}

// envelope is the two-pass decode target: read the discriminator and the
// session id (when present) before dispatching to a type-specific decoder.
// Mirrors the teacher's types.RawPart / UnmarshalPart pattern, generalized
// from message parts to whole protocol messages.
type envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// ---- Handshake ----

type ClientHello struct {
	Type    string `json:"type"`
	Client  string `json:"client"`
	Version string `json:"version"`
	// SessionID, when set, asks the runtime to reattach to an existing
	// session rather than create one.
	SessionID string `json:"sessionId,omitempty"`
}

func (m *ClientHello) MessageType() string { return "client_hello" }

type ServerHello struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Config    json.RawMessage `json:"config"`
}

func (m *ServerHello) MessageType() string { return "server_hello" }

// ---- Conversation ----

type UserMessage struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	Text            string `json:"text"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

func (m *UserMessage) MessageType() string { return "user_message" }

type Cancel struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *Cancel) MessageType() string { return "cancel" }

type Reset struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *Reset) MessageType() string { return "reset" }

type SessionClose struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *SessionClose) MessageType() string { return "session_close" }

type AssistantMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	TurnID    int64  `json:"turnId"`
	Text      string `json:"text"`
}

func (m *AssistantMessage) MessageType() string { return "assistant_message" }

type Reasoning struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"` // reasoning | summary
	Text      string `json:"text"`
}

func (m *Reasoning) MessageType() string { return "reasoning" }

type Todos struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Items     json.RawMessage `json:"items"`
}

func (m *Todos) MessageType() string { return "todos" }

type Log struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

func (m *Log) MessageType() string { return "log" }

type ErrorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Source    string `json:"source"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (m *ErrorMessage) MessageType() string { return "error" }

// ---- Incremental stream ----

// ModelStreamChunk carries one chunk of a turn's model stream. PartType is
// one of: text_delta, reasoning_delta, tool_input_start, tool_input_delta,
// tool_call, tool_result, tool_error, tool_output_denied, tool_approval_request,
// finish. Part is a provider-agnostic payload shaped by PartType.
type ModelStreamChunk struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	TurnID    int64           `json:"turnId"`
	Index     int             `json:"index"`
	PartType  string          `json:"partType"`
	Part      json.RawMessage `json:"part"`
}

func (m *ModelStreamChunk) MessageType() string { return "model_stream_chunk" }

// ---- Control ----

type SessionBusy struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Busy      bool   `json:"busy"`
}

func (m *SessionBusy) MessageType() string { return "session_busy" }

type ConfigUpdated struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Config    json.RawMessage `json:"config"`
}

func (m *ConfigUpdated) MessageType() string { return "config_updated" }

type ResetDone struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *ResetDone) MessageType() string { return "reset_done" }

// ---- Prompts ----

type Ask struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	RequestID string   `json:"requestId"`
	Question  string   `json:"question"`
	Options   []string `json:"options,omitempty"`
}

func (m *Ask) MessageType() string { return "ask" }

type AskResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Answer    string `json:"answer"`
}

func (m *AskResponse) MessageType() string { return "ask_response" }

type Approval struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	RequestID  string `json:"requestId"`
	Command    string `json:"command"`
	Dangerous  bool   `json:"dangerous"`
	ReasonCode string `json:"reasonCode"`
}

func (m *Approval) MessageType() string { return "approval" }

type ApprovalResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

func (m *ApprovalResponse) MessageType() string { return "approval_response" }

// ---- Configuration ----

type SetModel struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
	Provider  string `json:"provider,omitempty"`
}

func (m *SetModel) MessageType() string { return "set_model" }

type SetEnableMCP struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	EnableMCP bool   `json:"enableMcp"`
}

func (m *SetEnableMCP) MessageType() string { return "set_enable_mcp" }

// SessionConfig mirrors set_config's nested config object.
type SessionConfig struct {
	Yolo                 *bool   `json:"yolo,omitempty"`
	ObservabilityEnabled *bool   `json:"observabilityEnabled,omitempty"`
	SubAgentModel        *string `json:"subAgentModel,omitempty"`
	MaxSteps             *int    `json:"maxSteps,omitempty"`
}

type SetConfig struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Config    SessionConfig `json:"config"`
}

func (m *SetConfig) MessageType() string { return "set_config" }

// ---- Introspection ----

type ListTools struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *ListTools) MessageType() string { return "list_tools" }

type ListCommands struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *ListCommands) MessageType() string { return "list_commands" }

type ListSkills struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *ListSkills) MessageType() string { return "list_skills" }

type ListSessions struct {
	Type string `json:"type"`
}

func (m *ListSessions) MessageType() string { return "list_sessions" }

type Ping struct {
	Type string `json:"type"`
}

func (m *Ping) MessageType() string { return "ping" }

type Tools struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Tools     json.RawMessage `json:"tools"`
}

func (m *Tools) MessageType() string { return "tools" }

type Sessions struct {
	Type     string          `json:"type"`
	Sessions json.RawMessage `json:"sessions"`
}

func (m *Sessions) MessageType() string { return "sessions" }

// ---- Provider auth ----

type ProviderCatalogGet struct {
	Type string `json:"type"`
}

func (m *ProviderCatalogGet) MessageType() string { return "provider_catalog_get" }

type ProviderCatalog struct {
	Type      string   `json:"type"`
	All       []string `json:"all"`
	Default   string   `json:"default"`
	Connected []string `json:"connected"`
}

func (m *ProviderCatalog) MessageType() string { return "provider_catalog" }

type ProviderAuthMethodsGet struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
}

func (m *ProviderAuthMethodsGet) MessageType() string { return "provider_auth_methods_get" }

type ProviderAuthMethods struct {
	Type    string          `json:"type"`
	Methods json.RawMessage `json:"methods"`
}

func (m *ProviderAuthMethods) MessageType() string { return "provider_auth_methods" }

type ProviderAuthAuthorize struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	MethodID string `json:"methodId"`
}

func (m *ProviderAuthAuthorize) MessageType() string { return "provider_auth_authorize" }

type ProviderAuthCallback struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	MethodID string `json:"methodId"`
	Code     string `json:"code,omitempty"`
}

func (m *ProviderAuthCallback) MessageType() string { return "provider_auth_callback" }

type ProviderAuthSetAPIKey struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	MethodID string `json:"methodId"`
	APIKey   string `json:"apiKey"`
}

func (m *ProviderAuthSetAPIKey) MessageType() string { return "provider_auth_set_api_key" }

type ProviderAuthChallenge struct {
	Type      string `json:"type"`
	Provider  string `json:"provider"`
	MethodID  string `json:"methodId"`
	Challenge struct {
		Instructions string `json:"instructions"`
		Command      string `json:"command,omitempty"`
		URL          string `json:"url,omitempty"`
	} `json:"challenge"`
}

func (m *ProviderAuthChallenge) MessageType() string { return "provider_auth_challenge" }

type ProviderAuthResult struct {
	Type     string `json:"type"`
	OK       bool   `json:"ok"`
	Provider string `json:"provider"`
	MethodID string `json:"methodId"`
	Mode     string `json:"mode,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (m *ProviderAuthResult) MessageType() string { return "provider_auth_result" }

type RefreshProviderStatus struct {
	Type string `json:"type"`
}

func (m *RefreshProviderStatus) MessageType() string { return "refresh_provider_status" }

type ProviderStatusEntry struct {
	Provider   string `json:"provider"`
	Mode       string `json:"mode"`
	Authorized bool   `json:"authorized"`
	Verified   bool   `json:"verified"`
	Account    string `json:"account,omitempty"`
}

type ProviderStatus struct {
	Type      string                `json:"type"`
	Providers []ProviderStatusEntry `json:"providers"`
}

func (m *ProviderStatus) MessageType() string { return "provider_status" }

// ---- Session management ----

type GetMessages struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

func (m *GetMessages) MessageType() string { return "get_messages" }

type SetSessionTitle struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

func (m *SetSessionTitle) MessageType() string { return "set_session_title" }

type DeleteSession struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	TargetSessionID string `json:"targetSessionId"`
}

func (m *DeleteSession) MessageType() string { return "delete_session" }

type SessionBackupGet struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *SessionBackupGet) MessageType() string { return "session_backup_get" }

type SessionBackupCheckpoint struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *SessionBackupCheckpoint) MessageType() string { return "session_backup_checkpoint" }

type SessionBackupRestore struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	CheckpointID string `json:"checkpointId,omitempty"`
}

func (m *SessionBackupRestore) MessageType() string { return "session_backup_restore" }

type SessionBackupDeleteCheckpoint struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	CheckpointID string `json:"checkpointId"`
}

func (m *SessionBackupDeleteCheckpoint) MessageType() string {
	return "session_backup_delete_checkpoint"
}

// ---- Harness ----

type HarnessContext struct {
	RunID              string            `json:"runId"`
	Objective          string            `json:"objective"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria,omitempty"`
	Constraints        []string          `json:"constraints,omitempty"`
	TaskID             string            `json:"taskId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type HarnessContextSet struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Context   HarnessContext `json:"context"`
}

func (m *HarnessContextSet) MessageType() string { return "harness_context_set" }

type HarnessContextGet struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (m *HarnessContextGet) MessageType() string { return "harness_context_get" }

// ---- Uploads ----

type UploadFile struct {
	Type           string `json:"type"`
	SessionID      string `json:"sessionId"`
	Filename       string `json:"filename"`
	ContentBase64  string `json:"contentBase64"`
}

func (m *UploadFile) MessageType() string { return "upload_file" }

type UploadFileResult struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}

func (m *UploadFileResult) MessageType() string { return "upload_file_result" }

// ---- Session settings, checkpoints, commands/skills ----

// SessionSettings mirrors the session's current model/provider/MCP/config
// state, emitted after any configuration change lands so every connected
// client can reconcile without re-deriving it from individual acks.
type SessionSettings struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Model     string        `json:"model,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	EnableMCP bool          `json:"enableMcp"`
	Config    SessionConfig `json:"config"`
}

func (m *SessionSettings) MessageType() string { return "session_settings" }

type SessionUpdated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

func (m *SessionUpdated) MessageType() string { return "session_updated" }

type SessionDeleted struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	TargetSessionID string `json:"targetSessionId"`
}

func (m *SessionDeleted) MessageType() string { return "session_deleted" }

// CheckpointSummary is one entry of a session_backup_list response.
type CheckpointSummary struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

type SessionBackupList struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"sessionId"`
	Checkpoints []CheckpointSummary `json:"checkpoints"`
}

func (m *SessionBackupList) MessageType() string { return "session_backup_list" }

// SessionBackupResult acks session_backup_checkpoint/restore/delete_checkpoint.
type SessionBackupResult struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	Action       string `json:"action"` // checkpoint | restore | delete
	OK           bool   `json:"ok"`
	CheckpointID string `json:"checkpointId,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (m *SessionBackupResult) MessageType() string { return "session_backup_result" }

// HarnessContextState echoes the session's current harness context back in
// response to harness_context_get (and after harness_context_set).
type HarnessContextState struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Context   *HarnessContext `json:"context,omitempty"`
}

func (m *HarnessContextState) MessageType() string { return "harness_context" }

type Commands struct {
	Type     string          `json:"type"`
	Commands json.RawMessage `json:"commands"`
}

func (m *Commands) MessageType() string { return "commands" }

type SkillsList struct {
	Type   string          `json:"type"`
	Skills json.RawMessage `json:"skills"`
}

func (m *SkillsList) MessageType() string { return "skills_list" }
