package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/agentsessiond/agentsession/internal/apperror"
)

// decoders maps a message type discriminator to a function that unmarshals
// the full payload into the concrete type. Registered in init() the same
// way types.UnmarshalPart switches on "type", generalized to a table so new
// message types don't grow a single switch statement.
var decoders = map[string]func([]byte) (Message, error){}

func register[T Message](typ string, zero func() T) {
	decoders[typ] = func(data []byte) (Message, error) {
		v := zero()
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func init() {
	register("client_hello", func() *ClientHello { return &ClientHello{} })
	register("server_hello", func() *ServerHello { return &ServerHello{} })
	register("user_message", func() *UserMessage { return &UserMessage{} })
	register("cancel", func() *Cancel { return &Cancel{} })
	register("reset", func() *Reset { return &Reset{} })
	register("session_close", func() *SessionClose { return &SessionClose{} })
	register("assistant_message", func() *AssistantMessage { return &AssistantMessage{} })
	register("reasoning", func() *Reasoning { return &Reasoning{} })
	register("todos", func() *Todos { return &Todos{} })
	register("log", func() *Log { return &Log{} })
	register("error", func() *ErrorMessage { return &ErrorMessage{} })
	register("model_stream_chunk", func() *ModelStreamChunk { return &ModelStreamChunk{} })
	register("session_busy", func() *SessionBusy { return &SessionBusy{} })
	register("config_updated", func() *ConfigUpdated { return &ConfigUpdated{} })
	register("reset_done", func() *ResetDone { return &ResetDone{} })
	register("ask", func() *Ask { return &Ask{} })
	register("ask_response", func() *AskResponse { return &AskResponse{} })
	register("approval", func() *Approval { return &Approval{} })
	register("approval_response", func() *ApprovalResponse { return &ApprovalResponse{} })
	register("set_model", func() *SetModel { return &SetModel{} })
	register("set_enable_mcp", func() *SetEnableMCP { return &SetEnableMCP{} })
	register("set_config", func() *SetConfig { return &SetConfig{} })
	register("list_tools", func() *ListTools { return &ListTools{} })
	register("list_commands", func() *ListCommands { return &ListCommands{} })
	register("list_skills", func() *ListSkills { return &ListSkills{} })
	register("list_sessions", func() *ListSessions { return &ListSessions{} })
	register("ping", func() *Ping { return &Ping{} })
	register("tools", func() *Tools { return &Tools{} })
	register("sessions", func() *Sessions { return &Sessions{} })
	register("provider_catalog_get", func() *ProviderCatalogGet { return &ProviderCatalogGet{} })
	register("provider_catalog", func() *ProviderCatalog { return &ProviderCatalog{} })
	register("provider_auth_methods_get", func() *ProviderAuthMethodsGet { return &ProviderAuthMethodsGet{} })
	register("provider_auth_methods", func() *ProviderAuthMethods { return &ProviderAuthMethods{} })
	register("provider_auth_authorize", func() *ProviderAuthAuthorize { return &ProviderAuthAuthorize{} })
	register("provider_auth_callback", func() *ProviderAuthCallback { return &ProviderAuthCallback{} })
	register("provider_auth_set_api_key", func() *ProviderAuthSetAPIKey { return &ProviderAuthSetAPIKey{} })
	register("provider_auth_challenge", func() *ProviderAuthChallenge { return &ProviderAuthChallenge{} })
	register("provider_auth_result", func() *ProviderAuthResult { return &ProviderAuthResult{} })
	register("refresh_provider_status", func() *RefreshProviderStatus { return &RefreshProviderStatus{} })
	register("provider_status", func() *ProviderStatus { return &ProviderStatus{} })
	register("get_messages", func() *GetMessages { return &GetMessages{} })
	register("set_session_title", func() *SetSessionTitle { return &SetSessionTitle{} })
	register("delete_session", func() *DeleteSession { return &DeleteSession{} })
	register("session_backup_get", func() *SessionBackupGet { return &SessionBackupGet{} })
	register("session_backup_checkpoint", func() *SessionBackupCheckpoint { return &SessionBackupCheckpoint{} })
	register("session_backup_restore", func() *SessionBackupRestore { return &SessionBackupRestore{} })
	register("session_backup_delete_checkpoint", func() *SessionBackupDeleteCheckpoint { return &SessionBackupDeleteCheckpoint{} })
	register("harness_context_set", func() *HarnessContextSet { return &HarnessContextSet{} })
	register("harness_context_get", func() *HarnessContextGet { return &HarnessContextGet{} })
	register("upload_file", func() *UploadFile { return &UploadFile{} })
}

// sessionScoped is the set of message types spec.md requires a non-empty
// sessionId on. Handshake messages are intentionally excluded.
var sessionScoped = map[string]bool{
	"user_message": true, "cancel": true, "reset": true, "session_close": true,
	"ask_response": true, "approval_response": true, "set_model": true,
	"set_enable_mcp": true, "set_config": true, "list_tools": true,
	"list_commands": true, "list_skills": true, "get_messages": true,
	"set_session_title": true, "delete_session": true, "session_backup_get": true,
	"session_backup_checkpoint": true, "session_backup_restore": true,
	"session_backup_delete_checkpoint": true, "harness_context_set": true,
	"harness_context_get": true, "upload_file": true,
}

// Decode parses a raw wire frame into its concrete Message type. It performs
// the validation rules of spec.md §4.1 (unknown type, missing sessionId,
// numeric bounds) before returning, so callers never see a structurally
// invalid message.
func Decode(data []byte) (Message, *apperror.Error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperror.New(apperror.SourceProtocol, apperror.CodeValidationFailed, "malformed json: "+err.Error())
	}
	if env.Type == "" {
		return nil, apperror.New(apperror.SourceProtocol, apperror.CodeUnknownType, "missing type field")
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return nil, apperror.New(apperror.SourceProtocol, apperror.CodeUnknownType, fmt.Sprintf("unknown message type %q", env.Type))
	}
	if sessionScoped[env.Type] && env.SessionID == "" {
		return nil, apperror.New(apperror.SourceProtocol, apperror.CodeValidationFailed, fmt.Sprintf("%s sessionId is required", env.Type))
	}
	msg, err := decode(data)
	if err != nil {
		return nil, apperror.New(apperror.SourceProtocol, apperror.CodeValidationFailed, fmt.Sprintf("%s: %s", env.Type, err.Error()))
	}
	if verr := Validate(msg); verr != nil {
		return nil, verr
	}
	return msg, nil
}

// Encode marshals a Message as it is. It does not fill in the Type field
// from MessageType(); callers set the discriminator themselves.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
