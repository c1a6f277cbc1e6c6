package desktop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppsFile is the optional alias override file.
type AppsFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// CommandRunner starts a detached shell command.
type CommandRunner func(ctx context.Context, command string) error

// AppLauncher maps spoken app names to launch commands.
type AppLauncher struct {
	mu      sync.RWMutex
	aliases map[string]string
	run     CommandRunner
	opener  Opener
}

func NewAppLauncher(opener Opener, run CommandRunner) *AppLauncher {
	if opener == nil {
		opener = SystemOpener{}
	}
	if run == nil {
		run = startShell
	}
	aliases := make(map[string]string)
	for k, v := range defaultAliases[runtime.GOOS] {
		aliases[k] = v
	}
	return &AppLauncher{aliases: aliases, run: run, opener: opener}
}

// LoadAliases merges aliases from a YAML file over the platform defaults.
func (l *AppLauncher) LoadAliases(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read apps file: %w", err)
	}
	var file AppsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse apps file: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range file.Aliases {
		key := normalizeAppName(k)
		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}
		l.aliases[key] = strings.TrimSpace(v)
	}
	return nil
}

func (l *AppLauncher) Command(name string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cmd, ok := l.aliases[normalizeAppName(name)]
	return cmd, ok
}

// Launch runs the aliased command, falling back to the default opener.
func (l *AppLauncher) Launch(ctx context.Context, name string) (string, error) {
	app := strings.TrimSpace(name)
	if app == "" {
		return "", fmt.Errorf("app name is required")
	}
	if cmd, ok := l.Command(app); ok {
		if err := l.run(ctx, cmd); err == nil {
			return "Opened " + app, nil
		}
	}
	if err := l.opener.Open(app); err != nil {
		return "", fmt.Errorf("could not find '%s' on this system. Try opening it manually once", app)
	}
	return "Opened " + app + " via system handler", nil
}

func normalizeAppName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func startShell(ctx context.Context, command string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Apps outlive the tool call; reap the shell in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}

var defaultAliases = map[string]map[string]string{
	"windows": {
		"vscode":             "code",
		"code":               "code",
		"visual studio code": "code",
		"terminal":           "wt",
		"cmd":                "start cmd",
		"chrome":             "start chrome",
		"google chrome":      "start chrome",
		"edge":               "start msedge",
		"firefox":            "start firefox",
		"spotify":            "start spotify:",
		"whatsapp":           "start whatsapp:",
		"telegram":           "start telegram:",
		"steam":              "start steam:",
		"notepad":            "notepad",
		"calculator":         "calc",
		"settings":           "start ms-settings:",
		"explorer":           "explorer",
		"files":              "explorer",
		"task manager":       "taskmgr",
	},
	"darwin": {
		"vscode":             "open -a 'Visual Studio Code'",
		"code":               "open -a 'Visual Studio Code'",
		"visual studio code": "open -a 'Visual Studio Code'",
		"terminal":           "open -a Terminal",
		"chrome":             "open -a 'Google Chrome'",
		"google chrome":      "open -a 'Google Chrome'",
		"firefox":            "open -a Firefox",
		"safari":             "open -a Safari",
		"spotify":            "open -a Spotify",
		"whatsapp":           "open -a WhatsApp",
		"telegram":           "open -a Telegram",
		"calculator":         "open -a Calculator",
		"settings":           "open -a 'System Settings'",
		"files":              "open -a Finder",
		"finder":             "open -a Finder",
		"task manager":       "open -a 'Activity Monitor'",
	},
	"linux": {
		"vscode":             "code",
		"code":               "code",
		"visual studio code": "code",
		"terminal":           "x-terminal-emulator",
		"chrome":             "google-chrome",
		"google chrome":      "google-chrome",
		"firefox":            "firefox",
		"spotify":            "spotify",
		"telegram":           "telegram-desktop",
		"calculator":         "gnome-calculator",
		"files":              "xdg-open ~",
		"task manager":       "gnome-system-monitor",
	},
}
