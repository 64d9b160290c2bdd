// Package supervisor defines the workspace supervisor interface the client
// session conductor consumes to bind and tear down per-workspace servers,
// persist the top-level workspace/thread index, and batch transcript
// events to disk. The teacher has no analogue (it runs one server for one
// process), so the interface is new; the local implementation adapts the
// teacher's single-process entrypoint (cmd/opencode-server/main.go) and its
// atomic-JSON storage layer (internal/storage/storage.go) to bind an
// in-process server per workspace instead of one process total.
package supervisor

import (
	"encoding/json"
	"time"
)

// StartRequest names the workspace to bind a server for.
type StartRequest struct {
	WorkspaceID   string
	WorkspacePath string
	Yolo          bool
}

// WorkspaceRecord is one entry in PersistedState.Workspaces.
type WorkspaceRecord struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Path             string    `json:"path"`
	CreatedAt        time.Time `json:"createdAt"`
	LastOpenedAt     time.Time `json:"lastOpenedAt"`
	DefaultProvider  string    `json:"defaultProvider,omitempty"`
	DefaultModel     string    `json:"defaultModel,omitempty"`
	DefaultEnableMCP bool      `json:"defaultEnableMcp"`
	Yolo             bool      `json:"yolo"`
}

// ThreadStatus mirrors the runtime's disconnected/active split as seen by
// the persisted index (not the richer server-side lifecycleState).
type ThreadStatus string

const (
	ThreadStatusActive       ThreadStatus = "active"
	ThreadStatusDisconnected ThreadStatus = "disconnected"
)

// ThreadRecord is one entry in PersistedState.Threads.
type ThreadRecord struct {
	ID            string       `json:"id"`
	WorkspaceID   string       `json:"workspaceId"`
	Title         string       `json:"title"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	Status        ThreadStatus `json:"status"`
}

// PersistedState is the top-level workspace+thread record list, versioned
// so a future layout change can migrate forward.
type PersistedState struct {
	Version       int               `json:"version"`
	Workspaces    []WorkspaceRecord `json:"workspaces"`
	Threads       []ThreadRecord    `json:"threads"`
	DeveloperMode bool              `json:"developerMode,omitempty"`
}

// CurrentStateVersion is the PersistedState.Version this package writes.
const CurrentStateVersion = 1

// TranscriptEvent is one appended record: an opaque protocol message plus
// its direction and timestamp, the wire shape of spec.md §6's transcript
// record.
type TranscriptEvent struct {
	Timestamp time.Time       `json:"ts"`
	ThreadID  string          `json:"threadId"`
	Direction string          `json:"direction"` // "server" | "client"
	Payload   json.RawMessage `json:"payload"`
}

// FileEntry is one entry returned by ListDirectory, grounded on the
// teacher's FileInfo (internal/server/handlers_file.go).
type FileEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}
