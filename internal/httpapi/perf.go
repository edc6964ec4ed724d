package httpapi

import "net/http"

// handlePerfLatency reports stage, transition and outcome latency over the
// recent message window. ?reset=1 clears the window after reading it.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.LatencySnapshot()
	if r.URL.Query().Get("reset") == "1" {
		s.metrics.ResetLatency()
	}
	respondJSON(w, http.StatusOK, snap)
}
