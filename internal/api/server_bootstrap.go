// Package api implements the Dashboard query and live-signal surface
// (C12): a small read-mostly HTTP+websocket facade over the Store, the
// Interval Analyzer, and the Estimates Engine, for the out-of-scope
// tray/UI layer to consume. Ground: the teacher's internal/api package
// (server_bootstrap.go, routes_registration.go, websocket.go), whose
// mux.Router + middleware-chain + Hub/Client shape is kept verbatim and
// re-pointed at TimeFlow's own domain instead of a blockchain explorer's.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"timeflow/internal/analyzer"
	"timeflow/internal/estimates"
	"timeflow/internal/models"
	"timeflow/internal/store"
	"timeflow/internal/sweeper"

	"github.com/gorilla/mux"
)

// Store is the subset of *store.Store the query surface reads from
// directly (beyond what it reaches through the analyzer/estimates/
// sweeper collaborators).
type Store interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	ProjectSessionCounts(ctx context.Context) (map[int64]int, error)
	SuggestionsByStatus(ctx context.Context, status models.SuggestionStatus) ([]models.AssignmentSuggestion, error)
	CountUnassignedSessions(ctx context.Context) (int, error)
}

var _ Store = (*store.Store)(nil)

// Server is the Dashboard's own HTTP+websocket boundary.
type Server struct {
	store      Store
	analyzer   *analyzer.Analyzer
	estimates  *estimates.Engine
	sweeper    *sweeper.Sweeper
	hub        *Hub
	httpServer *http.Server

	attentionCache struct {
		mu        sync.Mutex
		count     int
		expiresAt time.Time
	}
}

// NewServer wires the query surface's routes onto a fresh mux.Router and
// binds it to the given port (ground: teacher's NewServer).
func NewServer(s Store, an *analyzer.Analyzer, est *estimates.Engine, sw *sweeper.Sweeper, port string) *Server {
	r := mux.NewRouter()

	srv := &Server{
		store:     s,
		analyzer:  an,
		estimates: est,
		sweeper:   sw,
		hub:       newHub(),
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)
	registerRoutes(r, srv)

	srv.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return srv
}

// Start runs the Hub's broadcast loop and the attention-poll loop, then
// blocks serving HTTP (ground: teacher's Start + refreshRangesCacheLoop).
func (s *Server) Start() error {
	go s.hub.run()
	go s.pollAttentionLoop()
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// pollAttentionLoop refreshes the attention count and pushes it to any
// attached websocket clients every few seconds, so /ws/attention doesn't
// need a per-connection ticker hitting the store independently (ground:
// teacher's refreshRangesCacheLoop background-refresh shape).
func (s *Server) pollAttentionLoop() {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := s.store.CountUnassignedSessions(ctx)
		cancel()
		if err != nil {
			continue
		}
		s.attentionCache.mu.Lock()
		s.attentionCache.count = n
		s.attentionCache.expiresAt = time.Now().Add(10 * time.Second)
		s.attentionCache.mu.Unlock()
		s.hub.broadcastAttention(n)
	}
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
