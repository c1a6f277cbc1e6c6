package desktop

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOpener struct {
	opened []string
	err    error
}

func (o *recordingOpener) Open(target string) error {
	o.opened = append(o.opened, target)
	return o.err
}

func newTestFiles(t *testing.T) (*Files, string) {
	t.Helper()
	home := t.TempDir()
	f := &Files{home: home, workspace: filepath.Join(home, "Desktop"), opener: &recordingOpener{}}
	require.NoError(t, os.MkdirAll(f.workspace, 0o755))
	return f, home
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestSearchIsCaseInsensitiveAndSkipsIgnoredDirs(t *testing.T) {
	f, home := newTestFiles(t)
	writeFile(t, filepath.Join(home, "projects", "Report-Final.md"), "x")
	writeFile(t, filepath.Join(home, "projects", "node_modules", "report.js"), "x")
	writeFile(t, filepath.Join(home, "a", "b", "c", "d", "e", "report-deep.txt"), "x")

	got, err := f.Search(context.Background(), "REPORT", "")
	require.NoError(t, err)
	assert.Contains(t, got, "Report-Final.md")
	assert.NotContains(t, got, "node_modules")
	assert.NotContains(t, got, "report-deep.txt")
}

func TestSearchCapsResultsAndReportsNone(t *testing.T) {
	f, home := newTestFiles(t)
	for i := 0; i < 8; i++ {
		writeFile(t, filepath.Join(home, "notes", "note"+string(rune('a'+i))+".txt"), "x")
	}
	got, err := f.Search(context.Background(), "note", "notes")
	require.NoError(t, err)
	assert.Len(t, strings.Split(got, "\n"), 5)

	none, err := f.Search(context.Background(), "missing-file", "")
	require.NoError(t, err)
	assert.Equal(t, "No files found.", none)
}

func TestWriteBareNameGoesToWorkspace(t *testing.T) {
	f, home := newTestFiles(t)
	msg, err := f.Write("todo.txt", "buy milk")
	require.NoError(t, err)

	want := filepath.Join(home, "Desktop", "todo.txt")
	assert.Equal(t, "Success. File saved to: "+want, msg)
	body, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", string(body))

	explicit := filepath.Join(home, "elsewhere.txt")
	_, err = f.Write(explicit, "x")
	require.NoError(t, err)
	assert.FileExists(t, explicit)
}

func TestReadTruncatesLargeFiles(t *testing.T) {
	f, home := newTestFiles(t)
	path := filepath.Join(home, "big.txt")
	writeFile(t, path, strings.Repeat("a", readMaxBytes+10))

	got, err := f.Read(path)
	require.NoError(t, err)
	assert.Contains(t, got, "[truncated")

	_, err = f.Read(home)
	assert.Error(t, err)
}

func TestManageCopyMoveDelete(t *testing.T) {
	f, home := newTestFiles(t)
	src := filepath.Join(home, "a.txt")
	writeFile(t, src, "hello")

	_, err := f.Manage("copy", src, filepath.Join(home, "b.txt"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "b.txt"))

	require.NoError(t, os.MkdirAll(filepath.Join(home, "Documents"), 0o755))
	_, err = f.Manage("move", filepath.Join(home, "b.txt"), "documents")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "Documents", "b.txt"))
	assert.NoFileExists(t, filepath.Join(home, "b.txt"))

	_, err = f.Manage("delete", src, "")
	require.NoError(t, err)
	assert.NoFileExists(t, src)

	_, err = f.Manage("shred", src, "")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestResolveAliases(t *testing.T) {
	f, home := newTestFiles(t)
	assert.Equal(t, filepath.Join(home, "Downloads"), f.Resolve("Downloads"))
	assert.Equal(t, home, f.Resolve("~"))
	assert.Equal(t, home, f.Resolve("home"))
	assert.Equal(t, filepath.Join(home, "code", "iris"), f.Resolve("code/iris"))
	assert.Equal(t, filepath.Join(home, "x"), f.Resolve("~/x"))
}

func TestListDirectoryOrdersFoldersThenNewest(t *testing.T) {
	f, home := newTestFiles(t)
	dir := filepath.Join(home, "work")
	writeFile(t, filepath.Join(dir, "old.txt"), "x")
	writeFile(t, filepath.Join(dir, "new.png"), "x")
	writeFile(t, filepath.Join(dir, ".hidden"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.txt"), past, past))

	raw, err := f.ListDirectory("work")
	require.NoError(t, err)

	var listing Listing
	require.NoError(t, json.Unmarshal([]byte(raw), &listing))
	require.Equal(t, 3, listing.ItemsFound)
	assert.Equal(t, "sub", listing.Content[0].Name)
	assert.Equal(t, "directory", listing.Content[0].Type)
	assert.Equal(t, "new.png", listing.Content[1].Name)
	assert.Equal(t, "image", listing.Content[1].Type)
	assert.Equal(t, "old.txt", listing.Content[2].Name)
	assert.Contains(t, listing.Content[2].Info, "[TEXT |")

	_, err = f.ListDirectory(filepath.Join(dir, "old.txt"))
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestOpenUsesOpener(t *testing.T) {
	f, home := newTestFiles(t)
	require.NoError(t, f.Open("desktop"))
	assert.Equal(t, []string{filepath.Join(home, "Desktop")}, f.opener.(*recordingOpener).opened)
}
