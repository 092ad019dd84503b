package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
)

type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	return s.response, s.err
}
func (s *stubProvider) MaxPayloadBytes() int { return 1 << 20 }

func TestExtractJSONArray_StripsSurroundingProse(t *testing.T) {
	s := "Sure, here is the plan:\n[{\"step\":1}]\nLet me know if you need anything else."
	out, ok := extractJSONArray(s)
	require.True(t, ok)
	assert.Equal(t, `[{"step":1}]`, out)
}

func TestExtractJSONArray_HandlesNestedBrackets(t *testing.T) {
	s := `[{"step":1,"args":{"tags":["a","b"]}},{"step":2}]`
	out, ok := extractJSONArray(s)
	require.True(t, ok)
	assert.Equal(t, s, out)
}

func TestExtractJSONArray_NoArrayReturnsFalse(t *testing.T) {
	_, ok := extractJSONArray("no array here at all")
	assert.False(t, ok)
}

func TestPlan_ValidStepsSurvive(t *testing.T) {
	gw := llm.NewGateway(&stubProvider{response: `[
		{"step":1,"tool":"web_search","args":{"query":"lithium price"},"thought":"find current pricing"},
		{"step":2,"tool":"dispatch_email","args":{"to":"a@example.com","subject":"s","body":"b"},"thought":"notify"}
	]`}, 1<<20)
	p := New(gw)
	steps := p.Plan(context.Background(), "find lithium prices")
	require.Len(t, steps, 2)
	assert.Equal(t, ToolWebSearch, steps[0].Tool)
	assert.Equal(t, ToolDispatchMail, steps[1].Tool)
}

func TestPlan_DropsStepsWithUnknownTool(t *testing.T) {
	gw := llm.NewGateway(&stubProvider{response: `[
		{"step":1,"tool":"delete_database","args":{},"thought":"bad"},
		{"step":2,"tool":"web_search","args":{"query":"x"},"thought":"good"}
	]`}, 1<<20)
	p := New(gw)
	steps := p.Plan(context.Background(), "objective")
	require.Len(t, steps, 1)
	assert.Equal(t, ToolWebSearch, steps[0].Tool)
}

func TestPlan_ParseFailureReturnsEmptyPlan(t *testing.T) {
	gw := llm.NewGateway(&stubProvider{response: "not json at all"}, 1<<20)
	p := New(gw)
	steps := p.Plan(context.Background(), "objective")
	assert.Empty(t, steps)
}

func TestPlan_GatewayErrorReturnsEmptyPlan(t *testing.T) {
	gw := llm.NewGateway(&stubProvider{err: assertErr{}}, 1<<20)
	p := New(gw)
	steps := p.Plan(context.Background(), "objective")
	assert.Empty(t, steps)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestFallbackStep_UsesObjectiveVerbatim(t *testing.T) {
	step := FallbackStep("find lithium prices")
	assert.Equal(t, ToolWebSearch, step.Tool)
	assert.Equal(t, "find lithium prices", step.Args["query"])
}
