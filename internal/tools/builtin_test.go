package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/protocol"
)

type stubEnumerator struct{ names []string }

func (s stubEnumerator) Snapshot(context.Context) ([]string, error) { return s.names, nil }

type stubStats struct{}

func (stubStats) Stats(context.Context) (desktop.SystemStats, error) {
	return desktop.SystemStats{CPUPercent: 10, OS: "test"}, nil
}

type nopOpener struct{}

func (nopOpener) Open(string) error { return nil }

func newDesktopDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRegistry()
	require.NoError(t, RegisterDesktop(r, Desktop{
		Files:     desktop.NewFiles(dir, nopOpener{}),
		Apps:      desktop.NewAppLauncher(nopOpener{}, nil),
		Processes: stubEnumerator{names: []string{"chrome", "code"}},
		Stats:     stubStats{},
	}))
	return NewDispatcher(r, 2*time.Second, nil), dir
}

func TestRegisterDesktopDeclaresAllTools(t *testing.T) {
	d, _ := newDesktopDispatcher(t)
	var names []string
	for _, decl := range d.Declarations() {
		names = append(names, decl.Name)
	}
	assert.Equal(t, []string{
		"search_files", "read_file", "write_file", "manage_file", "open_file",
		"read_directory", "get_running_apps", "open_app", "get_system_stats",
	}, names)
}

func TestDesktopToolsWriteThenRead(t *testing.T) {
	d, dir := newDesktopDispatcher(t)
	target := filepath.Join(dir, "hello.txt")

	results := d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "w", Name: "write_file", Args: map[string]any{"fileName": target, "content": "  hi there\n"}},
	})
	require.False(t, results[0].IsError(), "%v", results[0].Response)

	results = d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "r", Name: "read_file", Args: map[string]any{"filePath": target}},
		{ID: "apps", Name: "get_running_apps", Args: map[string]any{}},
		{ID: "stats", Name: "get_system_stats", Args: map[string]any{}},
	})
	assert.Equal(t, "  hi there\n", results[0].Response["result"])
	assert.Equal(t, []string{"chrome", "code"}, results[1].Response["result"])
	assert.Equal(t, desktop.SystemStats{CPUPercent: 10, OS: "test"}, results[2].Response["result"])
}

func TestDesktopToolsWriteEmptyContent(t *testing.T) {
	d, dir := newDesktopDispatcher(t)
	empty := filepath.Join(dir, "empty.txt")
	blank := filepath.Join(dir, "blank.txt")

	results := d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "e", Name: "write_file", Args: map[string]any{"fileName": empty, "content": ""}},
		{ID: "b", Name: "write_file", Args: map[string]any{"fileName": blank, "content": "  \n"}},
	})
	require.False(t, results[0].IsError(), "%v", results[0].Response)
	require.False(t, results[1].IsError(), "%v", results[1].Response)

	data, err := os.ReadFile(empty)
	require.NoError(t, err)
	assert.Empty(t, data)
	data, err = os.ReadFile(blank)
	require.NoError(t, err)
	assert.Equal(t, "  \n", string(data))
}

func TestDesktopToolsRejectBlankNames(t *testing.T) {
	d, _ := newDesktopDispatcher(t)
	results := d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "w", Name: "write_file", Args: map[string]any{"fileName": "  ", "content": "x"}},
		{ID: "r", Name: "read_file", Args: map[string]any{"filePath": ""}},
		{ID: "a", Name: "open_app", Args: map[string]any{"appName": " "}},
	})
	for _, res := range results {
		require.True(t, res.IsError(), res.ID)
		assert.Contains(t, res.Response["error"], "is empty")
	}
}

func TestDesktopToolsBlockSecrets(t *testing.T) {
	d, dir := newDesktopDispatcher(t)
	secret := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(secret, []byte("KEY=1"), 0o600))

	results := d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "1", Name: "read_file", Args: map[string]any{"filePath": secret}},
		{ID: "2", Name: "manage_file", Args: map[string]any{"operation": "delete", "sourcePath": secret}},
	})
	for _, r := range results {
		require.True(t, r.IsError())
		assert.Contains(t, r.Response["error"], "blocked by file policy")
	}
	assert.FileExists(t, secret)
}

func TestManageFileRequiresDestinationForCopy(t *testing.T) {
	d, dir := newDesktopDispatcher(t)
	results := d.Dispatch(context.Background(), []protocol.ToolCall{
		{ID: "1", Name: "manage_file", Args: map[string]any{"operation": "copy", "sourcePath": filepath.Join(dir, "x")}},
	})
	require.True(t, results[0].IsError())
	assert.Contains(t, results[0].Response["error"], "destPath is required")
}
