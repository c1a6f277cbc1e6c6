package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/iris/internal/observability"
)

// handlePerfLatency reports the rolling stage window. ?stage=a,b narrows the stages.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.StageSnapshot()
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		want := make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			want[strings.TrimSpace(name)] = true
		}
		kept := make([]observability.StageStats, 0, len(snap.Stages))
		for _, st := range snap.Stages {
			if want[st.Stage] {
				kept = append(kept, st)
			}
		}
		snap.Stages = kept
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetPerfLatency(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetStages()
	w.WriteHeader(http.StatusNoContent)
}
