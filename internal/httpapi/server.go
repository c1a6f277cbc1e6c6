package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/config"
	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/engine"
	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/memory"
	"github.com/ent0n29/iris/internal/observability"
	"github.com/ent0n29/iris/internal/playback"
	"github.com/ent0n29/iris/internal/session"
)

// Engine is the session surface the control API drives.
type Engine interface {
	Connect(ctx context.Context) error
	Disconnect()
	SetMute(muted bool)
	Muted() bool
	IsConnected() bool
	State() session.State
	Session() (session.Session, error)
	SendVideoFrame(ctx context.Context, frame string) error
	Analyser() *playback.Analyser
	Subscribe() (<-chan engine.Event, func())
}

type Deps struct {
	Engine    Engine
	Sessions  *session.Manager
	History   memory.Store
	Stats     desktop.StatsProvider
	Processes desktop.ProcessEnumerator
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
}

type Server struct {
	cfg      config.Config
	deps     Deps
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
	log      zerolog.Logger
}

const (
	levelInterval   = 50 * time.Millisecond
	defaultHistory  = 50
	maxHistory      = 500
	maxVideoFrameSz = 4 << 20
)

func New(cfg config.Config, deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics("iris", prometheus.NewRegistry())
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		static:  newStaticHandler(),
		log:     logging.L("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser pages may drive the microphone session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler(s.deps.Gatherer).ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handleResetPerfLatency)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)

	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/mute", s.handleMute)
		r.Post("/video", s.handleVideoFrame)
		r.Get("/events", s.handleEventsWS)
	})
	r.Get("/v1/sessions", s.handleRecentSessions)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/system/stats", s.handleSystemStats)
	r.Get("/v1/system/apps", s.handleSystemApps)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"state":      s.deps.Engine.State().String(),
		"store_mode": storeMode(s.cfg),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status, code := "ready", http.StatusOK
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		status, code = "missing_credentials", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{"status": status, "store_mode": storeMode(s.cfg)})
}

type sessionResponse struct {
	Connected bool             `json:"connected"`
	Muted     bool             `json:"muted"`
	State     string           `json:"state"`
	Session   *session.Session `json:"session,omitempty"`
}

func (s *Server) sessionStatus() sessionResponse {
	out := sessionResponse{
		Connected: s.deps.Engine.IsConnected(),
		Muted:     s.deps.Engine.Muted(),
		State:     s.deps.Engine.State().String(),
	}
	if sess, err := s.deps.Engine.Session(); err == nil {
		out.Session = &sess
	}
	return out
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sessionStatus())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Engine.Connect(r.Context()); err != nil {
		status, code := connectErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.sessionStatus())
}

func connectErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrConfig):
		return http.StatusPreconditionFailed, "missing_credentials"
	case errors.Is(err, engine.ErrAlreadyConnected):
		return http.StatusConflict, "already_connected"
	case errors.Is(err, engine.ErrDevice):
		return http.StatusServiceUnavailable, "device_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "connect_timeout"
	default:
		return http.StatusBadGateway, "transport_error"
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.deps.Engine.Disconnect()
	respondJSON(w, http.StatusOK, s.sessionStatus())
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	muted := !s.deps.Engine.Muted()
	if req.Muted != nil {
		muted = *req.Muted
	}
	s.deps.Engine.SetMute(muted)
	respondJSON(w, http.StatusOK, s.sessionStatus())
}

type videoRequest struct {
	Frame string `json:"frame"`
}

func (s *Server) handleVideoFrame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVideoFrameSz)
	var req videoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.deps.Engine.SendVideoFrame(r.Context(), stripDataURL(req.Frame)); err != nil {
		if errors.Is(err, engine.ErrNotActive) {
			respondError(w, http.StatusConflict, "not_active", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "video_rejected", err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// stripDataURL accepts canvas.toDataURL output as well as bare base64.
func stripDataURL(frame string) string {
	frame = strings.TrimSpace(frame)
	if strings.HasPrefix(frame, "data:") {
		if i := strings.Index(frame, ","); i >= 0 {
			return frame[i+1:]
		}
	}
	return frame
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		respondJSON(w, http.StatusOK, map[string]any{"sessions": []any{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.Recent()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondJSON(w, http.StatusOK, map[string]any{"messages": []any{}})
		return
	}
	limit := defaultHistory
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}
	msgs, err := s.deps.History.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "system stats not configured")
		return
	}
	stats, err := s.deps.Stats.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSystemApps(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processes == nil {
		respondJSON(w, http.StatusOK, map[string]any{"apps": []string{}})
		return
	}
	apps, err := s.deps.Processes.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "apps_unavailable", err.Error())
		return
	}
	if apps == nil {
		apps = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func storeMode(cfg config.Config) string {
	switch raw := strings.TrimSpace(cfg.DatabaseURL); {
	case raw == "", strings.EqualFold(raw, "memory"):
		return "in-memory"
	default:
		return "postgres"
	}
}
