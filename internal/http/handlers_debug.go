package http

import (
	"net/http"

	"fincontrol/internal/auth"
	"fincontrol/internal/middleware/trace"
)

// Diagnostics, mounted only when dev tools are enabled.

func (s *Server) handleDebugSession(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":       toUser(user),
		"source":     auth.SourceFromContext(r.Context()),
		"request_id": trace.GetRequestID(r.Context()),
		"client_ip":  s.detector.ExtractClientIP(r),
	})
}

func (s *Server) handleDebugMetrics(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"http":         s.trace.GetMetrics(),
		"rate_limit":   s.limiter.GetMetrics(),
		"security":     s.detector.GetMetrics(),
		"rate_clients": s.limiter.ActiveClients(),
	})
}
