package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"timeflow/internal/analyzer"
	"timeflow/internal/models"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListProjects implements GET /api/v1/projects: every project with
// its current assigned-session count.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.store.ProjectSessionCounts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type projectView struct {
		models.Project
		SessionCount int `json:"session_count"`
	}
	out := make([]projectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectView{Project: p, SessionCount: counts[p.ID]})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseRange reads from/to query params (RFC3339) required by both the
// activity and estimates routes.
func parseRange(r *http.Request) (analyzer.Range, error) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return analyzer.Range{}, err
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return analyzer.Range{}, err
	}
	return analyzer.Range{Start: from, End: to}, nil
}

// handleActivity implements GET /api/v1/activity: a thin view over
// ComputeProjectActivityUnique (C6).
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339 timestamps")
		return
	}

	opts := analyzer.Options{Hourly: r.URL.Query().Get("bucket") == "hour"}
	if p := r.URL.Query().Get("project"); p != "" {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "project must be an integer id")
			return
		}
		opts.ProjectFilter = &id
	}

	result, err := s.analyzer.ComputeProjectActivityUnique(r.Context(), rng, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEstimates implements GET /api/v1/estimates: converts the same
// range's per-project totals (C6) into billed hours and cost (C8).
func (s *Server) handleEstimates(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339 timestamps")
		return
	}

	result, err := s.analyzer.ComputeProjectActivityUnique(r.Context(), rng, analyzer.Options{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	estimates, err := s.estimates.Compute(r.Context(), result.Totals)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, estimates)
}

// handleSuggestions implements GET /api/v1/suggestions?status=pending.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	status := models.SuggestionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.SuggestionPending
	}
	suggestions, err := s.store.SuggestionsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// handleAssignSession implements POST /api/v1/sessions/{id}/assign, the
// one mutating route: the HTTP-facing twin of AssignSessionToProject
// (C11), for whatever UI layer is driving the Dashboard.
func (s *Server) handleAssignSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var body struct {
		ProjectID *int64 `json:"project_id"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.sweeper.AssignSessionToProject(r.Context(), id, body.ProjectID, models.SourceManualSessionAssign); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleAttention implements GET /api/v1/attention: the polled twin of
// /ws/attention and of assignment_attention.txt (spec.md §6).
func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountUnassignedSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attentionMessage{UnassignedCount: n})
}
