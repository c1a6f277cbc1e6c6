package policy

import (
	"os"
	"path/filepath"
	"strings"
)

func homeDir() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "", false
	}
	return filepath.Clean(home), true
}
