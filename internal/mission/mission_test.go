package mission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermopickman-spec/market-intel-agent/internal/actions"
	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/planner"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

type stubPlanner struct {
	steps []planner.Step
}

func (s *stubPlanner) Plan(ctx context.Context, objective string) []planner.Step {
	return s.steps
}

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

type stubScraper struct {
	result string
	err    error
}

func (s *stubScraper) Scrape(ctx context.Context, url, conversationID string) (string, error) {
	return s.result, s.err
}

type stubGateway struct {
	response string
	err      error
}

func (s *stubGateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	return s.response, s.err
}
func (s *stubGateway) MaxPayloadBytes() int { return 28 * 1024 }

type stubActions struct {
	result string
	err    error
}

func (s *stubActions) Dispatch(ctx context.Context, action actions.Action, args map[string]any) (string, error) {
	return s.result, s.err
}

func newTestExecutor(t *testing.T, plan []planner.Step, gwResponse string, gwErr error) (*Executor, relational.Store) {
	t.Helper()
	store := relational.NewMemory()
	ex := &Executor{
		Store:    store,
		VectorDB: vectorstore.NewMemory(64),
		Embedder: embedding.NewDeterministic(64, true, 1),
		Gateway:  llm.NewGateway(&stubGateway{response: gwResponse, err: gwErr}, 28*1024),
		Planner:  &stubPlanner{steps: plan},
		Search:   &stubSearch{result: "NVIDIA H100 listed at $30,000 per unit. Another vendor: $32,500. Third: no price listed."},
		Scraper:  &stubScraper{result: "scraped page content"},
		Actions:  &stubActions{result: "ok"},
		ChunkOpt: chunker.Options{ChunkSize: 256, Overlap: 32},
	}
	return ex, store
}

func TestRun_InvalidObjectiveRejectedBeforeExecutorRuns(t *testing.T) {
	ex, store := newTestExecutor(t, nil, "report", nil)
	_, err := ex.Run(context.Background(), 1, "", Hooks{})
	require.Error(t, err)
	var ii *InvalidInput
	require.ErrorAs(t, err, &ii)

	logs, err := store.ListMissionLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRun_ObjectiveTooLongRejected(t *testing.T) {
	ex, _ := newTestExecutor(t, nil, "report", nil)
	huge := make([]byte, 1001)
	for i := range huge {
		huge[i] = 'x'
	}
	_, err := ex.Run(context.Background(), 1, string(huge), Hooks{})
	require.Error(t, err)
}

func TestRun_ScriptTagRejected(t *testing.T) {
	ex, _ := newTestExecutor(t, nil, "report", nil)
	_, err := ex.Run(context.Background(), 1, "<script>alert(1)</script>", Hooks{})
	require.Error(t, err)
}

func TestRun_PriceObjectiveWithSearchResultsCompletesAndIngestsVectors(t *testing.T) {
	plan := []planner.Step{{StepNum: 1, Tool: planner.ToolWebSearch, Args: map[string]any{"query": "NVIDIA H100 GPU pricing 2024"}}}
	ex, store := newTestExecutor(t, plan, "The H100 is priced between $30,000 and $32,500 depending on vendor.", nil)

	result, err := ex.Run(context.Background(), 7, "Find NVIDIA H100 GPU pricing 2024", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, relational.StatusCompleted, result.Status)
	assert.Contains(t, result.Report, "$30,000")

	logs, err := store.ListMissionLogs(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, relational.StatusCompleted, logs[0].Status)

	foundToolStart := false
	for _, e := range result.Trace {
		if e.Kind == EventToolStart && e.Tool == string(planner.ToolWebSearch) {
			foundToolStart = true
		}
	}
	assert.True(t, foundToolStart)
}

func TestRun_EmptyPlanFallsBackToSingleWebSearch(t *testing.T) {
	ex, _ := newTestExecutor(t, nil, "Summary of AMD MI300 specs.", nil)
	result, err := ex.Run(context.Background(), 1, "Summarize AMD MI300 specs", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, relational.StatusCompleted, result.Status)
	assert.NotEmpty(t, result.Report)

	foundFallback := false
	for _, e := range result.Trace {
		if e.Kind == EventToolStart && e.Tool == string(planner.ToolWebSearch) {
			foundFallback = true
		}
	}
	assert.True(t, foundFallback)
}

func TestRun_CancellationAfterFirstToolCompleteFailsMission(t *testing.T) {
	plan := []planner.Step{
		{StepNum: 1, Tool: planner.ToolWebSearch, Args: map[string]any{"query": "a"}},
		{StepNum: 2, Tool: planner.ToolWebSearch, Args: map[string]any{"query": "b"}},
	}
	ex, store := newTestExecutor(t, plan, "report", nil)

	toolCompletes := 0
	cancelled := false
	hooks := Hooks{
		OnEvent: func(e Event) {
			if e.Kind == EventToolComplete {
				toolCompletes++
				if toolCompletes == 1 {
					cancelled = true
				}
			}
		},
		Cancelled: func() bool { return cancelled },
	}

	result, err := ex.Run(context.Background(), 1, "objective for cancellation test", hooks)
	require.NoError(t, err)
	assert.Equal(t, relational.StatusFailed, result.Status)

	var terminalKinds []EventKind
	for _, e := range result.Trace {
		terminalKinds = append(terminalKinds, e.Kind)
	}
	assert.Equal(t, EventError, terminalKinds[len(terminalKinds)-1])
	for _, k := range terminalKinds {
		assert.NotEqual(t, EventComplete, k)
	}

	logs, err := store.ListMissionLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, relational.StatusFailed, logs[0].Status)
}

func TestValidateObjective_BoundaryBehaviors(t *testing.T) {
	assert.Error(t, ValidateObjective(""))
	assert.NoError(t, ValidateObjective("X"))
	assert.Error(t, ValidateObjective(string(make([]byte, 1001))))
	assert.Error(t, ValidateObjective("tell me about <script>evil()</script>"))
	assert.Error(t, ValidateObjective("'; DROP TABLE missions; --"))
}
