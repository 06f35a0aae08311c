package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"timeflow/internal/models"
)

type fakeStore struct {
	projects        []models.Project
	sessionCounts   map[int64]int
	suggestions     map[models.SuggestionStatus][]models.AssignmentSuggestion
	unassignedCount int
}

func (f *fakeStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	return f.projects, nil
}

func (f *fakeStore) ProjectSessionCounts(ctx context.Context) (map[int64]int, error) {
	return f.sessionCounts, nil
}

func (f *fakeStore) SuggestionsByStatus(ctx context.Context, status models.SuggestionStatus) ([]models.AssignmentSuggestion, error) {
	return f.suggestions[status], nil
}

func (f *fakeStore) CountUnassignedSessions(ctx context.Context) (int, error) {
	return f.unassignedCount, nil
}

func TestHandleListProjects_IncludesSessionCounts(t *testing.T) {
	fs := &fakeStore{
		projects:      []models.Project{{ID: 1, Name: "acme"}, {ID: 2, Name: "beta"}},
		sessionCounts: map[int64]int{1: 7},
	}
	s := &Server{store: fs}

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	rec := httptest.NewRecorder()
	s.handleListProjects(rec, req)

	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(out))
	}
	if out[0]["session_count"].(float64) != 7 {
		t.Fatalf("expected acme's session_count 7, got %v", out[0]["session_count"])
	}
	if out[1]["session_count"].(float64) != 0 {
		t.Fatalf("expected beta's session_count 0, got %v", out[1]["session_count"])
	}
}

func TestHandleSuggestions_DefaultsToPending(t *testing.T) {
	fs := &fakeStore{
		suggestions: map[models.SuggestionStatus][]models.AssignmentSuggestion{
			models.SuggestionPending: {{ID: 1}},
		},
	}
	s := &Server{store: fs}

	req := httptest.NewRequest("GET", "/api/v1/suggestions", nil)
	rec := httptest.NewRecorder()
	s.handleSuggestions(rec, req)

	var out []models.AssignmentSuggestion
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(out) != 1 || out[0].ID != 1 {
		t.Fatalf("expected the single pending suggestion, got %+v", out)
	}
}

func TestHandleAssignSession_RejectsBadID(t *testing.T) {
	s := &Server{store: &fakeStore{}}

	req := httptest.NewRequest("POST", "/api/v1/sessions/abc/assign", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	s.handleAssignSession(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for a non-numeric session id, got %d", rec.Code)
	}
}

func TestHandleAttention_ReturnsStoreCount(t *testing.T) {
	s := &Server{store: &fakeStore{unassignedCount: 5}}

	req := httptest.NewRequest("GET", "/api/v1/attention", nil)
	rec := httptest.NewRecorder()
	s.handleAttention(rec, req)

	var out attentionMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if out.UnassignedCount != 5 {
		t.Fatalf("expected unassigned_count 5, got %d", out.UnassignedCount)
	}
}
