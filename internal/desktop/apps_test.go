package desktop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchUsesAliasCommand(t *testing.T) {
	var ran []string
	opener := &recordingOpener{}
	l := NewAppLauncher(opener, func(_ context.Context, cmd string) error {
		ran = append(ran, cmd)
		return nil
	})
	l.aliases["my editor"] = "editor --new-window"

	msg, err := l.Launch(context.Background(), "  My   Editor ")
	require.NoError(t, err)
	assert.Equal(t, "Opened My   Editor", msg)
	assert.Equal(t, []string{"editor --new-window"}, ran)
	assert.Empty(t, opener.opened)
}

func TestLaunchFallsBackToOpener(t *testing.T) {
	opener := &recordingOpener{}
	l := NewAppLauncher(opener, func(context.Context, string) error { return errors.New("not found") })
	l.aliases["broken"] = "does-not-exist"

	msg, err := l.Launch(context.Background(), "broken")
	require.NoError(t, err)
	assert.Contains(t, msg, "via system handler")
	assert.Equal(t, []string{"broken"}, opener.opened)

	opener.err = errors.New("no handler")
	_, err = l.Launch(context.Background(), "unknown-app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find 'unknown-app'")
}

func TestLoadAliasesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  Chrome: chromium --incognito\n  notes: obsidian\n"), 0o600))

	l := NewAppLauncher(&recordingOpener{}, nil)
	require.NoError(t, l.LoadAliases(path))

	cmd, ok := l.Command("chrome")
	require.True(t, ok)
	assert.Equal(t, "chromium --incognito", cmd)
	cmd, ok = l.Command("NOTES")
	require.True(t, ok)
	assert.Equal(t, "obsidian", cmd)
}

func TestLoadAliasesRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases: [unclosed"), 0o600))
	assert.Error(t, NewAppLauncher(nil, nil).LoadAliases(path))
}
