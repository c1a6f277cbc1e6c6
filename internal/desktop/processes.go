package desktop

import (
	"context"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessEnumerator lists the names of user-facing running applications.
type ProcessEnumerator interface {
	Snapshot(ctx context.Context) ([]string, error)
}

// EmptyEnumerator is used on hosts where enumeration is unsupported.
type EmptyEnumerator struct{}

func (EmptyEnumerator) Snapshot(context.Context) ([]string, error) { return nil, nil }

// UserProcesses enumerates processes owned by the current user through gopsutil,
// skipping shells, helpers and session plumbing.
type UserProcesses struct {
	username string
	self     string
}

func NewUserProcesses() *UserProcesses {
	p := &UserProcesses{}
	if u, err := user.Current(); err == nil {
		p.username = u.Username
	}
	return p
}

// NewProcessEnumerator returns the enumerator for this platform.
func NewProcessEnumerator() ProcessEnumerator {
	switch runtime.GOOS {
	case "windows", "darwin", "linux":
		return NewUserProcesses()
	default:
		return EmptyEnumerator{}
	}
}

func (p *UserProcesses) Snapshot(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(procs))
	for _, proc := range procs {
		if p.username != "" {
			owner, err := proc.UsernameWithContext(ctx)
			if err != nil || !sameUser(owner, p.username) {
				continue
			}
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		name = NormalizeProcessName(name)
		if name == "" || ignoredProcess(name) {
			continue
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeProcessName lowercases and strips executable suffixes.
func NormalizeProcessName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, ".exe")
	n = strings.TrimSuffix(n, ".app")
	return n
}

func sameUser(owner, current string) bool {
	// Windows reports DOMAIN\user on one side and user on the other.
	if strings.EqualFold(owner, current) {
		return true
	}
	return strings.EqualFold(filepath.Base(strings.ReplaceAll(owner, `\`, "/")),
		filepath.Base(strings.ReplaceAll(current, `\`, "/")))
}

var ignoredProcessNames = map[string]struct{}{
	"bash": {}, "zsh": {}, "sh": {}, "fish": {}, "login": {}, "sshd": {}, "ssh-agent": {},
	"systemd": {}, "dbus-daemon": {}, "pipewire": {}, "pulseaudio": {}, "wireplumber": {},
	"conhost": {}, "svchost": {}, "runtimebroker": {}, "dllhost": {}, "taskhostw": {},
	"sihost": {}, "ctfmon": {}, "explorer": {}, "searchhost": {}, "startmenuexperiencehost": {},
	"launchd": {}, "cfprefsd": {}, "distnoted": {}, "trustd": {}, "windowserver": {},
	"iris": {}, "ps": {}, "top": {},
}

func ignoredProcess(name string) bool {
	if _, ok := ignoredProcessNames[name]; ok {
		return true
	}
	for _, suffix := range []string{"helper", "daemon", "agent", "service", "broker"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return strings.HasPrefix(name, "kworker") || strings.HasPrefix(name, "gvfs")
}
