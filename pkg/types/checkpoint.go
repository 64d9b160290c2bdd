package types

import "encoding/json"

// Checkpoint is a named, restorable snapshot of a session's transcript and
// configuration at a point in time, taken by session_backup_checkpoint and
// applied by session_backup_restore.
type Checkpoint struct {
	ID        string                     `json:"id"`
	SessionID string                     `json:"sessionId"`
	CreatedAt int64                      `json:"createdAt"`
	Session   *Session                   `json:"session"`
	Messages  []*Message                 `json:"messages"`
	Parts     map[string][]json.RawMessage `json:"parts"`
}
