package api

import "github.com/gorilla/mux"

// registerRoutes wires every route spec.md §10 names onto r (ground:
// teacher's registerBaseRoutes/registerAPIRoutes split, collapsed to one
// function since the query surface is small enough not to need the
// teacher's per-domain grouping).
func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws/attention", s.handleAttentionWebSocket).Methods("GET", "OPTIONS")

	r.HandleFunc("/api/v1/projects", s.handleListProjects).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/activity", s.handleActivity).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/estimates", s.handleEstimates).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/suggestions", s.handleSuggestions).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/sessions/{id}/assign", s.handleAssignSession).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/v1/attention", s.handleAttention).Methods("GET", "OPTIONS")
}
