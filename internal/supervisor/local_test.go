package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsessiond/agentsession/internal/transcript"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	return NewLocal(transcript.New(t.TempDir()))
}

func TestLocal_LoadStateDefaultsWhenMissing(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	state, err := l.LoadState(ctx)
	require.NoError(t, err)
	require.Equal(t, CurrentStateVersion, state.Version)
	require.Empty(t, state.Workspaces)
	require.Empty(t, state.Threads)
}

func TestLocal_SaveAndLoadStateRoundTrips(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	state := &PersistedState{
		Workspaces: []WorkspaceRecord{{ID: "ws-1", Name: "demo", Path: "/tmp/demo"}},
		Threads:    []ThreadRecord{{ID: "thread-1", WorkspaceID: "ws-1", Status: ThreadStatusActive}},
	}
	require.NoError(t, l.SaveState(ctx, state))

	loaded, err := l.LoadState(ctx)
	require.NoError(t, err)
	require.Equal(t, CurrentStateVersion, loaded.Version)
	require.Len(t, loaded.Workspaces, 1)
	require.Equal(t, "ws-1", loaded.Workspaces[0].ID)
	require.Len(t, loaded.Threads, 1)
	require.Equal(t, ThreadStatusActive, loaded.Threads[0].Status)
}

func TestLocal_AppendTranscriptBatchGroupsByThread(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	events := []TranscriptEvent{
		{ThreadID: "thread-1", Direction: "client", Payload: []byte(`{"a":1}`)},
		{ThreadID: "thread-2", Direction: "server", Payload: []byte(`{"b":2}`)},
		{ThreadID: "thread-1", Direction: "server", Payload: []byte(`{"c":3}`)},
	}
	require.NoError(t, l.AppendTranscriptBatch(ctx, events))

	t1, err := l.ReadTranscript(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, t1, 2)

	t2, err := l.ReadTranscript(ctx, "thread-2")
	require.NoError(t, err)
	require.Len(t, t2, 1)

	require.NoError(t, l.DeleteTranscript(ctx, "thread-1"))
	t1, err = l.ReadTranscript(ctx, "thread-1")
	require.NoError(t, err)
	require.Empty(t, t1)
}

func TestLocal_ReadTranscriptMissingIsEmptyNotError(t *testing.T) {
	l := newTestLocal(t)
	events, err := l.ReadTranscript(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLocal_ListDirectory(t *testing.T) {
	l := newTestLocal(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	entries, err := l.ListDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sawFile, sawDir bool
	for _, e := range entries {
		if e.Name == "a.txt" && !e.IsDirectory {
			sawFile = true
			require.Equal(t, int64(2), e.Size)
		}
		if e.Name == "sub" && e.IsDirectory {
			sawDir = true
		}
	}
	require.True(t, sawFile)
	require.True(t, sawDir)
}

func TestLocal_StopUnknownWorkspaceIsNoop(t *testing.T) {
	l := newTestLocal(t)
	require.NoError(t, l.StopWorkspaceServer(context.Background(), "never-started"))
}
