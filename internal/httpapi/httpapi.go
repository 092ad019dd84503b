// Package httpapi implements the external interfaces of the research
// agent: plain net/http handlers for streaming and buffered mission
// execution, RAG query, reports listing, stats, and health/readiness, one
// handler method per route registered on a *http.ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/mission"
	"github.com/guillermopickman-spec/market-intel-agent/internal/rag"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/streamer"
)

// Pinger checks a dependency's reachability for the health endpoint.
type Pinger func(ctx context.Context) error

// Server wires the Mission Executor and RAG Query Service to HTTP as a
// plain struct over its collaborators.
type Server struct {
	Mission     *mission.Executor
	Rag         *rag.Service
	Store       relational.Store
	CORSOrigins []string
	DBPing      Pinger
	VectorPing  Pinger
	// EventPublisher, when set, mirrors every streamed mission event to a
	// secondary sink (the mission.events topic).
	EventPublisher streamer.Publisher
}

// NewServer builds a Server.
func NewServer(m *mission.Executor, r *rag.Service, store relational.Store, corsOrigins []string) *Server {
	return &Server{Mission: m, Rag: r, Store: store, CORSOrigins: corsOrigins}
}

// Router builds the *http.ServeMux, wrapped with CORS, for the API
// routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/missions", s.missionsHandler())
	mux.HandleFunc("/api/rag/query", s.ragHandler())
	mux.HandleFunc("/api/reports", s.reportsHandler())
	mux.HandleFunc("/api/stats", s.statsHandler())
	mux.HandleFunc("/healthz", s.healthHandler())
	mux.HandleFunc("/readyz", s.readyHandler())
	return s.withCORS(mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.CORSOrigins) > 0 {
			origin = strings.Join(s.CORSOrigins, ", ")
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type missionRequest struct {
	UserInput      string `json:"user_input"`
	ConversationID int64  `json:"conversation_id"`
}

func (req missionRequest) conversationID() int64 {
	if req.ConversationID != 0 {
		return req.ConversationID
	}
	return time.Now().UnixNano()
}

// missionsHandler implements both the streaming and buffered mission
// execution contracts, branching on whether the client asked for
// application/x-ndjson.
func (s *Server) missionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req missionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		conversationID := req.conversationID()
		if strings.Contains(r.Header.Get("Accept"), "application/x-ndjson") {
			s.runStreaming(w, r, conversationID, req.UserInput)
			return
		}
		s.runBuffered(w, r, conversationID, req.UserInput)
	}
}

func (s *Server) runStreaming(w http.ResponseWriter, r *http.Request, conversationID int64, objective string) {
	sink, err := streamer.NewHTTPSink(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	st := streamer.New(sink, func() bool { return r.Context().Err() != nil })
	if s.EventPublisher != nil {
		st = st.WithPublisher(s.EventPublisher, strconv.FormatInt(conversationID, 10))
	}

	_, err = s.Mission.Run(r.Context(), conversationID, objective, st.Hooks())
	if err != nil {
		// Objective validation failed before any event was emitted; emit one
		// now since the ndjson headers are already committed.
		st.Hooks().OnEvent(mission.Event{Kind: mission.EventError, Err: err.Error()})
	}
}

type tracedStep struct {
	Tool   string `json:"tool"`
	Status string `json:"status,omitempty"`
	Result string `json:"result,omitempty"`
}

func (s *Server) runBuffered(w http.ResponseWriter, r *http.Request, conversationID int64, objective string) {
	result, err := s.Mission.Run(r.Context(), conversationID, objective, mission.Hooks{})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	status := "complete"
	if result.Status == relational.StatusFailed {
		status = "failed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"mission_id": result.MissionLogID,
		"report":     result.Report,
		"trace":      traceSteps(result.Trace),
	})
}

func traceSteps(events []mission.Event) []tracedStep {
	out := make([]tracedStep, 0, len(events))
	for _, e := range events {
		switch e.Kind {
		case mission.EventToolComplete:
			step := tracedStep{Tool: e.Tool, Status: "ok", Result: e.Summary}
			if e.Err != "" {
				step.Status = "error"
				step.Result = e.Err
			}
			out = append(out, step)
		case mission.EventActionComplete:
			step := tracedStep{Tool: e.Action, Status: "ok", Result: e.Result}
			if e.Err != "" {
				step.Status = "error"
				step.Result = e.Err
			}
			out = append(out, step)
		}
	}
	return out
}

type ragRequest struct {
	Query          string `json:"query"`
	ConversationID int64  `json:"conversation_id"`
	MissionID      string `json:"mission_id"`
}

func (s *Server) ragHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ragRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		answer, err := s.Rag.Ask(r.Context(), req.Query, req.ConversationID)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"query":           req.Query,
				"conversation_id": req.ConversationID,
				"response":        "",
				"sources":         []string{},
				"status":          "error",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":           req.Query,
			"conversation_id": req.ConversationID,
			"response":        answer.Text,
			"sources":         answer.Sources,
			"status":          "ok",
		})
	}
}

type reportSummary struct {
	ID             string                   `json:"id"`
	ConversationID int64                    `json:"conversation_id"`
	Query          string                   `json:"query"`
	Response       string                   `json:"response"`
	Status         relational.MissionStatus `json:"status"`
	CreatedAt      time.Time                `json:"created_at"`
}

func (s *Server) reportsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		logs, err := s.Store.ListRecentMissionLogs(r.Context(), 100)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		out := make([]reportSummary, len(logs))
		for i, l := range logs {
			out[i] = reportSummary{
				ID: l.ID, ConversationID: l.ConversationID, Query: l.Query,
				Response: l.Response, Status: l.Status, CreatedAt: l.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := s.Store.Stats(r.Context())
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"total_missions":     stats.Total,
			"completed_missions": stats.Completed,
			"failed_missions":    stats.Failed,
		})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := "up"
		if s.DBPing != nil {
			if err := s.DBPing(r.Context()); err != nil {
				database = "down"
			}
		}
		chromadb := "up"
		if s.VectorPing != nil {
			if err := s.VectorPing(r.Context()); err != nil {
				chromadb = "down"
			}
		}
		status := "ok"
		if database == "down" || chromadb == "down" {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      status,
			"database":    database,
			"chromadb":    chromadb,
			"server_time": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) readyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
