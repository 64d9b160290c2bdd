package supervisor

import "context"

// Supervisor is the contract the client session conductor uses to bind and
// release per-workspace servers and persist the state that survives
// between runs. spec.md §6 leaves only this interface in scope; Local is
// the one implementation this repo ships.
type Supervisor interface {
	// StartWorkspaceServer binds a workspace server (spawned or, for
	// Local, run in-process) and returns its control connection URL.
	StartWorkspaceServer(ctx context.Context, req StartRequest) (url string, err error)

	// StopWorkspaceServer releases the server bound for workspaceID.
	// Stopping an unknown or already-stopped workspace is a no-op.
	StopWorkspaceServer(ctx context.Context, workspaceID string) error

	// PickWorkspaceDirectory prompts the user (or, for a headless
	// implementation, reads a configured default) for a new workspace
	// root. An empty string means the user cancelled.
	PickWorkspaceDirectory(ctx context.Context) (string, error)

	LoadState(ctx context.Context) (*PersistedState, error)
	SaveState(ctx context.Context, state *PersistedState) error

	// ReadTranscript returns threadID's events in append order.
	ReadTranscript(ctx context.Context, threadID string) ([]TranscriptEvent, error)
	// AppendTranscriptBatch appends events atomically as a single call,
	// the batched-flush counterpart to the conductor's 200ms ticker.
	AppendTranscriptBatch(ctx context.Context, events []TranscriptEvent) error
	DeleteTranscript(ctx context.Context, threadID string) error

	ListDirectory(ctx context.Context, path string) ([]FileEntry, error)
}
