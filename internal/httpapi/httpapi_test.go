package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermopickman-spec/market-intel-agent/internal/actions"
	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/mission"
	"github.com/guillermopickman-spec/market-intel-agent/internal/planner"
	"github.com/guillermopickman-spec/market-intel-agent/internal/rag"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

type stubPlanner struct{ steps []planner.Step }

func (s *stubPlanner) Plan(ctx context.Context, objective string) []planner.Step { return s.steps }

type stubSearch struct {
	result string
	err    error
}

func (s *stubSearch) Search(ctx context.Context, query string, maxResults int) (string, error) {
	return s.result, s.err
}
func (s *stubSearch) SearchPrices(ctx context.Context, product, year string) (string, error) {
	return s.result, s.err
}

type stubScraper struct{ result string }

func (s *stubScraper) Scrape(ctx context.Context, url, conversationID string) (string, error) {
	return s.result, nil
}

type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	return p.response, p.err
}
func (p *stubProvider) MaxPayloadBytes() int { return 28 * 1024 }

type stubActions struct{}

func (s *stubActions) Dispatch(ctx context.Context, action actions.Action, args map[string]any) (string, error) {
	return "ok", nil
}

func newTestServer(t *testing.T) (*Server, relational.Store) {
	t.Helper()
	store := relational.NewMemory()
	gw := llm.NewGateway(&stubProvider{response: "final report text"}, 28*1024)
	ex := &mission.Executor{
		Store:    store,
		VectorDB: vectorstore.NewMemory(64),
		Embedder: embedding.NewDeterministic(64, true, 1),
		Gateway:  gw,
		Planner:  &stubPlanner{},
		Search:   &stubSearch{result: "H100 listed at $30,000 per unit."},
		Scraper:  &stubScraper{result: "scraped content"},
		Actions:  &stubActions{},
		ChunkOpt: chunker.Options{ChunkSize: 256, Overlap: 32},
	}
	ragSvc := rag.New(embedding.NewDeterministic(64, true, 1), vectorstore.NewMemory(64), gw)
	return NewServer(ex, ragSvc, store, nil), store
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, accept string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMissionsHandler_BufferedReturnsReportAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/missions", map[string]any{
		"user_input":      "find NVIDIA H100 prices",
		"conversation_id": int64(7),
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "complete", out["status"])
	assert.Equal(t, "final report text", out["report"])
	assert.NotEmpty(t, out["mission_id"])
}

func TestMissionsHandler_StreamingWritesNDJSONLines(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/missions", map[string]any{
		"user_input":      "find NVIDIA H100 prices",
		"conversation_id": int64(8),
	}, "application/x-ndjson")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, rec.Body.String(), `"type":"complete"`)
}

func TestMissionsHandler_RejectsNonPost(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/missions", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRagHandler_NoContextReturnsFixedAnswer(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/rag/query", map[string]any{
		"query":           "what is the price",
		"conversation_id": int64(1),
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "no context found", out["response"])
}

func TestReportsHandler_ListsMissionsAcrossConversations(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMissionLog(context.Background(), relational.MissionLog{
		ConversationID: 1, Query: "q1", Status: relational.StatusCompleted, Response: "r1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []reportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "q1", out[0].Query)
}

func TestStatsHandler_AggregatesMissionCounts(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMissionLog(context.Background(), relational.MissionLog{
		ConversationID: 1, Query: "q1", Status: relational.StatusCompleted,
	})
	require.NoError(t, err)
	_, err = store.CreateMissionLog(context.Background(), relational.MissionLog{
		ConversationID: 1, Query: "q2", Status: relational.StatusFailed,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out["total_missions"])
	assert.Equal(t, 1, out["completed_missions"])
	assert.Equal(t, 1, out["failed_missions"])
}

func TestHealthHandler_DegradedWhenDependencyPingFails(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.DBPing = func(ctx context.Context) error { return assert.AnError }

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, "down", out["database"])
}

func TestReadyHandler_AlwaysReady(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_DefaultsToWildcardOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
