package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	Transport string            `json:"transport"`
	Model     string            `json:"model"`
	StoreMode string            `json:"store_mode"`
	Playback  bool              `json:"playback"`
	Checks    []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	transport := strings.ToLower(strings.TrimSpace(s.cfg.Transport))
	if transport == "" {
		transport = "websocket"
	}

	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.credentialCheck())
	checks = append(checks, s.transportChecks(transport)...)
	checks = append(checks, s.storeCheck())
	checks = append(checks, s.audioCheck())
	checks = append(checks, s.workspaceCheck())
	if c, ok := s.appsFileCheck(); ok {
		checks = append(checks, c)
	}
	checks = append(checks, openerCheck())

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		Transport: transport,
		Model:     s.cfg.Model,
		StoreMode: storeMode(s.cfg),
		Playback:  !s.cfg.PlaybackDisabled,
		Checks:    checks,
	})
}

func (s *Server) credentialCheck() onboardingCheck {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return onboardingCheck{
			ID:     "api_key",
			Status: "error",
			Label:  "Gemini API key",
			Detail: "No API key configured; connect will fail.",
			Fix:    "Set IRIS_API_KEY (or GEMINI_API_KEY) and restart.",
		}
	}
	return onboardingCheck{ID: "api_key", Status: "ok", Label: "Gemini API key", Detail: "configured"}
}

func (s *Server) transportChecks(transport string) []onboardingCheck {
	checks := []onboardingCheck{{
		ID:     "transport",
		Status: "ok",
		Label:  "Live transport",
		Detail: transport,
	}}
	if transport != "websocket" {
		return checks
	}

	u, err := url.Parse(strings.TrimSpace(s.cfg.LiveURL))
	if err != nil || u.Host == "" {
		checks = append(checks, onboardingCheck{
			ID:     "live_endpoint",
			Status: "error",
			Label:  "Live endpoint",
			Detail: "IRIS_LIVE_URL is not a valid URL.",
			Fix:    "Unset IRIS_LIVE_URL to use the default endpoint.",
		})
		return checks
	}
	addr := u.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		port := "443"
		if u.Scheme == "ws" || u.Scheme == "http" {
			port = "80"
		}
		addr = net.JoinHostPort(addr, port)
	}
	c, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if err != nil {
		checks = append(checks, onboardingCheck{
			ID:     "live_endpoint",
			Status: "warn",
			Label:  "Live endpoint",
			Detail: fmt.Sprintf("%s is not reachable: %v", addr, err),
			Fix:    "Check the network connection or proxy settings.",
		})
		return checks
	}
	_ = c.Close()
	checks = append(checks, onboardingCheck{ID: "live_endpoint", Status: "ok", Label: "Live endpoint", Detail: addr})
	return checks
}

func (s *Server) storeCheck() onboardingCheck {
	if storeMode(s.cfg) == "postgres" {
		return onboardingCheck{ID: "history_store", Status: "ok", Label: "History store", Detail: "postgres"}
	}
	return onboardingCheck{
		ID:     "history_store",
		Status: "warn",
		Label:  "History store",
		Detail: "in-memory; conversation history is lost on restart",
		Fix:    "Set DATABASE_URL to a Postgres database to keep history.",
	}
}

func (s *Server) audioCheck() onboardingCheck {
	if s.cfg.PlaybackDisabled {
		return onboardingCheck{
			ID:     "playback",
			Status: "warn",
			Label:  "Speaker playback",
			Detail: "disabled; replies are transcribed but not played",
			Fix:    "Set AUDIO_PLAYBACK_DISABLED=false.",
		}
	}
	return onboardingCheck{
		ID:     "playback",
		Status: "ok",
		Label:  "Speaker playback",
		Detail: fmt.Sprintf("%d Hz", s.cfg.PlaybackRate),
	}
}

func (s *Server) workspaceCheck() onboardingCheck {
	dir := strings.TrimSpace(s.cfg.WorkspaceDir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return onboardingCheck{
			ID:     "workspace",
			Status: "warn",
			Label:  "Workspace folder",
			Detail: fmt.Sprintf("%q does not exist; it is created on first write", dir),
		}
	}
	return onboardingCheck{ID: "workspace", Status: "ok", Label: "Workspace folder", Detail: dir}
}

func (s *Server) appsFileCheck() (onboardingCheck, bool) {
	path := strings.TrimSpace(s.cfg.AppsFile)
	if path == "" {
		return onboardingCheck{}, false
	}
	if _, err := os.Stat(path); err != nil {
		return onboardingCheck{
			ID:     "apps_file",
			Status: "warn",
			Label:  "App aliases",
			Detail: fmt.Sprintf("%s: %v", path, err),
			Fix:    "Fix APPS_ALIAS_FILE or remove it to use built-in aliases.",
		}, true
	}
	return onboardingCheck{ID: "apps_file", Status: "ok", Label: "App aliases", Detail: path}, true
}

func openerCheck() onboardingCheck {
	cli := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		cli = "open"
	case "windows":
		return onboardingCheck{ID: "opener", Status: "ok", Label: "Open files and apps", Detail: "rundll32"}
	}
	if _, err := exec.LookPath(cli); err != nil {
		return onboardingCheck{
			ID:     "opener",
			Status: "warn",
			Label:  "Open files and apps",
			Detail: cli + " not found in PATH",
			Fix:    "Install xdg-utils so open_file and open_app work.",
		}
	}
	return onboardingCheck{ID: "opener", Status: "ok", Label: "Open files and apps", Detail: cli}
}
