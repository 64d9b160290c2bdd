package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/agentsessiond/agentsession/internal/config"
	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/mediator"
	"github.com/agentsessiond/agentsession/internal/provider"
	"github.com/agentsessiond/agentsession/internal/runtime"
	"github.com/agentsessiond/agentsession/internal/tool"
	"github.com/agentsessiond/agentsession/internal/transcript"
	"github.com/agentsessiond/agentsession/internal/transport"
)

// boundServer tracks one workspace's in-process server.
type boundServer struct {
	srv    *transport.Server
	cancel context.CancelFunc
}

// Local runs one transport.Server per workspace inside this process,
// the adaptation of the teacher's single-process cmd/opencode-server
// entrypoint to a per-workspace bind instead of a single global one.
// PersistedState and transcript events are stored through the same
// file-backed Storage the runtime uses for session state.
type Local struct {
	store *transcript.Storage

	mu      sync.Mutex
	servers map[string]*boundServer
}

// NewLocal builds a Local supervisor persisting state and transcripts
// under store.
func NewLocal(store *transcript.Storage) *Local {
	return &Local{store: store, servers: make(map[string]*boundServer)}
}

func (l *Local) StartWorkspaceServer(ctx context.Context, req StartRequest) (string, error) {
	l.mu.Lock()
	if existing, ok := l.servers[req.WorkspaceID]; ok {
		l.mu.Unlock()
		return "", fmt.Errorf("supervisor: workspace %s already has a bound server", req.WorkspaceID)
	}
	l.mu.Unlock()

	appConfig, err := config.Load(req.WorkspacePath)
	if err != nil {
		return "", fmt.Errorf("supervisor: load config: %w", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return "", fmt.Errorf("supervisor: ensure data paths: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	providerReg, err := provider.InitializeProviders(sessionCtx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Str("workspace", req.WorkspaceID).Msg("supervisor: some providers failed to initialize")
	}

	toolReg := tool.DefaultRegistry(req.WorkspacePath, l.store)
	permChecker := mediator.NewChecker()

	var defaultProviderID, defaultModelID string
	if appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID, defaultModelID = parts[0], parts[1]
		}
	}

	service := runtime.NewServiceWithProcessor(l.store, providerReg, toolReg, permChecker, defaultProviderID, defaultModelID)
	dispatcher := runtime.NewDispatcher(service, toolReg, runtime.DefaultAgent(), req.WorkspacePath).
		WithProviderAuth(providerReg, paths.AuthPath()).
		WithMediator(permChecker)

	srv := transport.New(transport.Config{Addr: "127.0.0.1:0"}, dispatcher)
	addr, err := srv.ListenEphemeral()
	if err != nil {
		cancel()
		return "", fmt.Errorf("supervisor: bind workspace server: %w", err)
	}

	l.mu.Lock()
	l.servers[req.WorkspaceID] = &boundServer{srv: srv, cancel: cancel}
	l.mu.Unlock()

	return fmt.Sprintf("ws://%s/session", addr), nil
}

func (l *Local) StopWorkspaceServer(ctx context.Context, workspaceID string) error {
	l.mu.Lock()
	b, ok := l.servers[workspaceID]
	if ok {
		delete(l.servers, workspaceID)
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}
	b.cancel()
	return b.srv.Shutdown(ctx)
}

// PickWorkspaceDirectory has no interactive picker in a headless
// supervisor; it always reports no selection. A desktop/TUI client wires
// its own file dialog into a different Supervisor implementation.
func (l *Local) PickWorkspaceDirectory(ctx context.Context) (string, error) {
	return "", nil
}

func (l *Local) statePath() []string { return []string{"supervisor", "state"} }

func (l *Local) LoadState(ctx context.Context) (*PersistedState, error) {
	var state PersistedState
	if err := l.store.Get(ctx, l.statePath(), &state); err != nil {
		if err == transcript.ErrNotFound {
			return &PersistedState{Version: CurrentStateVersion}, nil
		}
		return nil, err
	}
	return &state, nil
}

func (l *Local) SaveState(ctx context.Context, state *PersistedState) error {
	state.Version = CurrentStateVersion
	return l.store.Put(ctx, l.statePath(), state)
}

func (l *Local) transcriptPath(threadID string) []string {
	return []string{"supervisor", "transcript", threadID}
}

// ReadTranscript returns threadID's events in append order. A thread with no
// transcript yet returns an empty slice, not an error.
func (l *Local) ReadTranscript(ctx context.Context, threadID string) ([]TranscriptEvent, error) {
	lines, err := l.store.ReadLog(ctx, l.transcriptPath(threadID))
	if err != nil {
		return nil, err
	}
	events := make([]TranscriptEvent, 0, len(lines))
	for _, line := range lines {
		var e TranscriptEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// AppendTranscriptBatch appends events atomically per call, grouped by
// thread so each thread's append is one AppendLog call against its own
// log file rather than a read-modify-write of the whole history.
func (l *Local) AppendTranscriptBatch(ctx context.Context, events []TranscriptEvent) error {
	byThread := make(map[string][]TranscriptEvent)
	order := make([]string, 0)
	for _, e := range events {
		if _, ok := byThread[e.ThreadID]; !ok {
			order = append(order, e.ThreadID)
		}
		byThread[e.ThreadID] = append(byThread[e.ThreadID], e)
	}
	for _, threadID := range order {
		batch := byThread[threadID]
		lines := make([]json.RawMessage, 0, len(batch))
		for _, e := range batch {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			lines = append(lines, data)
		}
		if err := l.store.AppendLog(ctx, l.transcriptPath(threadID), lines); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) DeleteTranscript(ctx context.Context, threadID string) error {
	return l.store.DeleteLog(ctx, l.transcriptPath(threadID))
}

// ListDirectory lists path's immediate children, grounded on the
// teacher's listFiles handler (internal/server/handlers_file.go).
func (l *Local) ListDirectory(ctx context.Context, path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, _ := entry.Info()
		size := int64(0)
		if info != nil {
			size = info.Size()
		}
		out = append(out, FileEntry{Name: entry.Name(), IsDirectory: entry.IsDir(), Size: size})
	}
	return out, nil
}

var _ Supervisor = (*Local)(nil)
