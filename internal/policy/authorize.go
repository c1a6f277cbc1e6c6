package policy

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// FileOp names a filesystem action requested by a tool.
type FileOp string

const (
	OpRead   FileOp = "read"
	OpList   FileOp = "list"
	OpOpen   FileOp = "open"
	OpWrite  FileOp = "write"
	OpCopy   FileOp = "copy"
	OpMove   FileOp = "move"
	OpDelete FileOp = "delete"
)

type FileDecision struct {
	Risk    string
	Blocked bool
	Reason  string
}

var (
	secretPathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(^|[\\/])(id_rsa|id_ed25519|id_ecdsa)(\.pub)?$`),
		regexp.MustCompile(`(?i)(^|[\\/])\.env(\.[a-z0-9_-]+)?$`),
		regexp.MustCompile(`(?i)(^|[\\/])(auth|credentials|secrets?)\.json$`),
		regexp.MustCompile(`(?i)(^|[\\/])\.(ssh|gnupg|aws|kube)([\\/]|$)`),
	}
	protectedRoots = []string{
		"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/sbin", "/sys", "/usr", "/var",
		"/System", "/Library", "/Applications",
		`C:\`, `C:\Windows`, `C:\Program Files`, `C:\Program Files (x86)`,
	}
)

// DecideFileOp classifies a tool's filesystem action against the protected-path policy.
// Secrets are never readable; system roots and their direct children are never mutated.
func DecideFileOp(op FileOp, path string) FileDecision {
	p := strings.TrimSpace(path)
	if p == "" {
		return FileDecision{Risk: "low"}
	}
	clean := filepath.Clean(p)

	for _, re := range secretPathPatterns {
		if re.MatchString(clean) {
			return FileDecision{
				Risk:    "blocked",
				Blocked: true,
				Reason:  "Path looks like a credential or secret store.",
			}
		}
	}

	mutating := op == OpWrite || op == OpMove || op == OpDelete
	if mutating && isProtected(clean) {
		return FileDecision{
			Risk:    "blocked",
			Blocked: true,
			Reason:  "Refusing to modify a protected system location.",
		}
	}

	switch op {
	case OpDelete, OpMove:
		return FileDecision{Risk: "high"}
	case OpWrite, OpCopy:
		return FileDecision{Risk: "medium"}
	default:
		return FileDecision{Risk: "low"}
	}
}

func isProtected(path string) bool {
	for _, root := range protectedRoots {
		r := filepath.Clean(root)
		if samePath(path, r) {
			return true
		}
		if r == string(filepath.Separator) {
			continue
		}
		// Direct children of a system root, e.g. /etc/hosts.
		if samePath(filepath.Dir(path), r) {
			return true
		}
	}
	if home, ok := homeDir(); ok && samePath(path, home) {
		return true
	}
	return false
}

func samePath(a, b string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
