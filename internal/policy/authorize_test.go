package policy

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestDecideFileOpBlocksSecrets(t *testing.T) {
	for _, p := range []string{
		"/home/u/.ssh/id_rsa",
		"/home/u/project/.env",
		"/home/u/.aws/credentials",
		"/srv/app/auth.json",
	} {
		got := DecideFileOp(OpRead, p)
		if !got.Blocked || got.Risk != "blocked" {
			t.Fatalf("DecideFileOp(read, %q) = %+v, want blocked", p, got)
		}
	}
}

func TestDecideFileOpBlocksMutatingSystemRoots(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	if got := DecideFileOp(OpDelete, "/etc/hosts"); !got.Blocked {
		t.Fatalf("delete /etc/hosts = %+v, want blocked", got)
	}
	if got := DecideFileOp(OpWrite, "/usr"); !got.Blocked {
		t.Fatalf("write /usr = %+v, want blocked", got)
	}
	if got := DecideFileOp(OpRead, "/etc/hosts"); got.Blocked {
		t.Fatalf("read /etc/hosts = %+v, want allowed", got)
	}
}

func TestDecideFileOpBlocksDeletingHome(t *testing.T) {
	home, ok := homeDir()
	if !ok {
		t.Skip("no home directory")
	}
	if got := DecideFileOp(OpDelete, home); !got.Blocked {
		t.Fatalf("delete home = %+v, want blocked", got)
	}
}

func TestDecideFileOpRisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notes.txt")
	cases := map[FileOp]string{
		OpRead:   "low",
		OpOpen:   "low",
		OpCopy:   "medium",
		OpWrite:  "medium",
		OpMove:   "high",
		OpDelete: "high",
	}
	for op, want := range cases {
		got := DecideFileOp(op, dir)
		if got.Blocked || got.Risk != want {
			t.Fatalf("DecideFileOp(%s) = %+v, want risk %q", op, got, want)
		}
	}
}
