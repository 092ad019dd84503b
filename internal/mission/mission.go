// Package mission implements the Mission Executor: the plan -> act ->
// observe -> synthesize state machine that turns an objective into a
// persisted, synthesized report.
package mission

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guillermopickman-spec/market-intel-agent/internal/actions"
	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/curator"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
	"github.com/guillermopickman-spec/market-intel-agent/internal/planner"
	"github.com/guillermopickman-spec/market-intel-agent/internal/relational"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

// State is one node of the mission state machine.
type State string

const (
	StateIdle         State = "IDLE"
	StatePlanning     State = "PLANNING"
	StateResearching  State = "RESEARCHING"
	StateSynthesizing State = "SYNTHESIZING"
	StateActing       State = "ACTING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// synthesisPromptOverhead approximates the fixed template text wrapped
// around the curator's materialized evidence, reserved out of the
// gateway's MaxPayloadBytes when sizing the curator budget.
const synthesisPromptOverhead = 512

// InvalidInput is returned when an objective fails validation before the
// executor runs; no MissionLog row is created for it.
type InvalidInput struct{ Reason string }

func (e *InvalidInput) Error() string { return "invalid input: " + e.Reason }

var sqlSentinelPattern = regexp.MustCompile(`(?i)(;\s*drop\s+table|union\s+select|--\s*$|'\s*or\s+'1'\s*=\s*'1)`)

// ValidateObjective enforces the boundary behaviors required of the
// objective string.
func ValidateObjective(objective string) error {
	if len(objective) == 0 {
		return &InvalidInput{Reason: "objective must not be empty"}
	}
	if len(objective) > 1000 {
		return &InvalidInput{Reason: "objective exceeds 1000 characters"}
	}
	if strings.Contains(objective, "<script>") {
		return &InvalidInput{Reason: "objective contains a script tag"}
	}
	if sqlSentinelPattern.MatchString(objective) {
		return &InvalidInput{Reason: "objective contains a sql injection sentinel"}
	}
	return nil
}

// EventKind names one of the trace events the streamer translates into its
// NDJSON protocol.
type EventKind string

const (
	EventThinking       EventKind = "thinking"
	EventProgress       EventKind = "progress"
	EventToolStart      EventKind = "tool_start"
	EventToolComplete   EventKind = "tool_complete"
	EventActionStart    EventKind = "action_start"
	EventActionComplete EventKind = "action_complete"
	EventComplete       EventKind = "complete"
	EventError          EventKind = "error"
)

// Event is one entry in the mission trace. Exactly one field group is
// populated per Kind.
type Event struct {
	Kind       EventKind
	Content    string
	Step       int
	Total      int
	Percentage float64
	Tool       string
	Args       map[string]any
	Summary    string
	Action     string
	Title      string
	Result     string
	Report     string
	Err        string
}

// Hooks lets a caller (the Progress Streamer, or a test) observe the
// mission's trace as it happens. Every hook is optional. One exhaustive
// event enum means a new event kind is a compile-time addition, not
// another optional field.
type Hooks struct {
	OnEvent func(Event)
	// Cancelled is polled at each state transition; when it returns true the
	// executor fails the mission with a cancellation reason.
	Cancelled func() bool
}

func (h Hooks) emit(e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

func (h Hooks) cancelled() bool {
	return h.Cancelled != nil && h.Cancelled()
}

// Result is the outcome of one mission run.
type Result struct {
	MissionLogID string
	Status       relational.MissionStatus
	Report       string
	Trace        []Event
}

// Planning is the narrow contract the executor needs from the Planner,
// accepted as an interface so tests can substitute a stub LLM-backed
// planner without a real Gateway.
type Planning interface {
	Plan(ctx context.Context, objective string) []planner.Step
}

// Searching is the narrow contract the executor needs from the Web Search
// Tool.
type Searching interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
	SearchPrices(ctx context.Context, product, year string) (string, error)
}

// Scraping is the narrow contract the executor needs from the Scraper Tool.
type Scraping interface {
	Scrape(ctx context.Context, url, conversationID string) (string, error)
}

// Dispatching is the narrow contract the executor needs from the Action
// Dispatcher.
type Dispatching interface {
	Dispatch(ctx context.Context, action actions.Action, args map[string]any) (string, error)
}

// Executor wires every component the state machine drives.
type Executor struct {
	Store    relational.Store
	VectorDB vectorstore.VectorStore
	Embedder embedding.Embedder
	Gateway  *llm.Gateway
	Planner  Planning
	Search   Searching
	Scraper  Scraping
	Actions  Dispatching
	ChunkOpt chunker.Options
}

// Run executes one mission for conversationID against objective, driving
// the state machine end to end.
func (ex *Executor) Run(ctx context.Context, conversationID int64, objective string, hooks Hooks) (Result, error) {
	if err := ValidateObjective(objective); err != nil {
		return Result{}, err
	}

	log := logging.FromContext(ctx)
	var trace []Event
	record := func(e Event) {
		trace = append(trace, e)
		hooks.emit(e)
	}

	truncatedQuery := relational.TruncateQuery(objective)
	missionLog, err := ex.Store.CreateMissionLog(ctx, relational.MissionLog{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Query:          truncatedQuery,
		Status:         relational.StatusPending,
	})
	if err != nil {
		return Result{}, fmt.Errorf("mission: create mission log: %w", err)
	}
	_ = ex.Store.UpdateMissionStatus(ctx, missionLog.ID, relational.StatusInProgress, "")

	fail := func(reason string) (Result, error) {
		_ = ex.Store.UpdateMissionStatus(ctx, missionLog.ID, relational.StatusFailed, reason)
		record(Event{Kind: EventError, Err: reason})
		return Result{MissionLogID: missionLog.ID, Status: relational.StatusFailed, Report: reason, Trace: trace}, nil
	}

	if hooks.cancelled() {
		return fail("cancelled")
	}

	// PLANNING
	record(Event{Kind: EventThinking, Content: "planning research steps"})
	steps := ex.Planner.Plan(ctx, objective)
	if len(steps) == 0 {
		steps = []planner.Step{planner.FallbackStep(objective)}
	}
	if hooks.cancelled() {
		return fail("cancelled")
	}

	// RESEARCHING
	pool := curator.New(ex.curatorBudget())
	total := len(steps)
	for i, step := range steps {
		if hooks.cancelled() {
			return fail("cancelled")
		}
		record(Event{Kind: EventProgress, Step: i + 1, Total: total, Percentage: float64(i+1) / float64(total) * 100})

		if step.Tool == planner.ToolWebSearch || step.Tool == planner.ToolWebResearch {
			ex.runResearchStep(ctx, step, pool, record)
		}
	}

	if curator.IsPriceBearing(objective) && !pool.HasPriceEvidence() {
		record(Event{Kind: EventToolStart, Tool: "search_prices", Args: map[string]any{"objective": objective}})
		if text, err := ex.Search.SearchPrices(ctx, objective, currentYear()); err == nil {
			pool.Append("search_prices", text)
			record(Event{Kind: EventToolComplete, Tool: "search_prices", Summary: summarize(text)})
		} else {
			record(Event{Kind: EventToolComplete, Tool: "search_prices", Err: err.Error()})
			log.Warn().Err(err).Msg("mission: price-mission search_prices failed")
		}
	}

	if hooks.cancelled() {
		return fail("cancelled")
	}

	// SYNTHESIZING
	report, err := ex.synthesize(ctx, objective, pool)
	if err != nil {
		return fail(err.Error())
	}
	record(Event{Kind: EventThinking, Content: "synthesis complete"})

	if hooks.cancelled() {
		return fail("cancelled")
	}

	// ACTING
	for _, step := range steps {
		if step.Tool != planner.ToolSaveToNotion && step.Tool != planner.ToolDispatchMail {
			continue
		}
		ex.runActionStep(ctx, step, report, record)
	}

	// PERSISTING
	if err := ex.Store.UpdateMissionStatus(ctx, missionLog.ID, relational.StatusCompleted, report); err != nil {
		return fail(fmt.Sprintf("persist mission log: %v", err))
	}
	ex.ingestReport(ctx, conversationID, missionLog.ID, report)

	record(Event{Kind: EventComplete, Report: report})
	return Result{MissionLogID: missionLog.ID, Status: relational.StatusCompleted, Report: report, Trace: trace}, nil
}

func (ex *Executor) runResearchStep(ctx context.Context, step planner.Step, pool *curator.Curator, record func(Event)) {
	log := logging.FromContext(ctx)
	record(Event{Kind: EventToolStart, Tool: string(step.Tool), Args: step.Args})

	switch step.Tool {
	case planner.ToolWebSearch:
		query, _ := step.Args["query"].(string)
		text, err := ex.Search.Search(ctx, query, 8)
		if err != nil {
			record(Event{Kind: EventToolComplete, Tool: string(step.Tool), Err: err.Error()})
			log.Warn().Err(err).Str("query", query).Msg("mission: web_search step failed")
			return
		}
		pool.Append("web_search:"+query, text)
		record(Event{Kind: EventToolComplete, Tool: string(step.Tool), Summary: summarize(text)})

	case planner.ToolWebResearch:
		url, _ := step.Args["url"].(string)
		conversationTag, _ := step.Args["conversation_id"].(string)
		text, err := ex.Scraper.Scrape(ctx, url, conversationTag)
		if err != nil {
			record(Event{Kind: EventToolComplete, Tool: string(step.Tool), Err: err.Error()})
			log.Warn().Err(err).Str("url", url).Msg("mission: web_research step failed")
			return
		}
		pool.Append("web_research:"+url, text)
		record(Event{Kind: EventToolComplete, Tool: string(step.Tool), Summary: summarize(text)})
	}
}

func (ex *Executor) runActionStep(ctx context.Context, step planner.Step, report string, record func(Event)) {
	title := actionTitle(step)
	record(Event{Kind: EventActionStart, Action: string(step.Tool), Title: title})

	if ex.Actions == nil {
		record(Event{Kind: EventActionComplete, Action: string(step.Tool), Err: "no action dispatcher configured"})
		return
	}

	var actionName actions.Action
	switch step.Tool {
	case planner.ToolSaveToNotion:
		actionName = actions.SaveToExternalNotebook
	case planner.ToolDispatchMail:
		actionName = actions.DispatchEmail
	default:
		return
	}

	args := withReport(step.Args, report)
	result, err := ex.Actions.Dispatch(ctx, actionName, args)
	if err != nil {
		record(Event{Kind: EventActionComplete, Action: string(step.Tool), Err: err.Error()})
		return
	}
	record(Event{Kind: EventActionComplete, Action: string(step.Tool), Result: result})
}

func withReport(args map[string]any, report string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out["content"]; !ok {
		out["content"] = report
	}
	if _, ok := out["body"]; !ok {
		out["body"] = report
	}
	return out
}

func actionTitle(step planner.Step) string {
	if t, ok := step.Args["title"].(string); ok && t != "" {
		return t
	}
	return step.Thought
}

// synthesize calls the LLM Gateway with the curated evidence. On
// PayloadTooLarge it re-materializes the curator with half the normal
// budget and retries once. The curator's usual tier order applies to that
// re-materialization, so the price-summary form is produced only when the
// halved budget cannot hold the minimum-length price records.
func (ex *Executor) synthesize(ctx context.Context, objective string, pool *curator.Curator) (string, error) {
	prompt := buildSynthesisPrompt(objective, pool.Materialize())
	report, err := ex.Gateway.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 2048, Temperature: 0.2})
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, llm.ErrPayloadTooLarge) {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	pool.SetBudget(ex.curatorBudget() / 2)
	prompt = buildSynthesisPrompt(objective, pool.Materialize())
	report, err = ex.Gateway.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 2048, Temperature: 0.2})
	if err != nil {
		return "", fmt.Errorf("synthesis failed after tighter-budget retry: %w", err)
	}
	return report, nil
}

func buildSynthesisPrompt(objective, evidence string) string {
	return "Objective: " + objective + "\n\nEvidence:\n" + evidence +
		"\n\nWrite a concise, well-sourced report addressing the objective using only the evidence above."
}

func (ex *Executor) curatorBudget() int {
	budget := ex.Gateway.MaxPayloadBytes() - synthesisPromptOverhead
	if budget < 1024 {
		budget = 1024
	}
	return budget
}

// ingestReport chunks, embeds, and stores the synthesized report. A
// vector-store failure here does not revert the MissionLog; it is
// surfaced only as a warning.
func (ex *Executor) ingestReport(ctx context.Context, conversationID int64, missionLogID, report string) {
	log := logging.FromContext(ctx)

	chunks := chunker.Split(report, ex.ChunkOpt)
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ex.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Str("mission_log_id", missionLogID).Msg("mission: report embedding failed at persistence")
		return
	}
	for i, vec := range vectors {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", missionLogID, chunks[i].Index))).String()
		meta := map[string]string{
			"conversation_id": fmt.Sprintf("%d", conversationID),
			"title":           "mission report " + missionLogID,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"text":            chunks[i].Text,
		}
		if err := ex.VectorDB.Add(ctx, id, vec, meta); err != nil {
			log.Warn().Err(err).Str("mission_log_id", missionLogID).Msg("mission: vector ingestion failed at persistence")
			return
		}
	}
}

func summarize(text string) string {
	const maxLen = 160
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func currentYear() string {
	return fmt.Sprintf("%d", time.Now().Year())
}
