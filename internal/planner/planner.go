// Package planner implements the Planner: given an objective, it asks the
// LLM Gateway for a JSON array of tool-call steps and validates the
// result.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
)

// Tool names the Planner may assign to a step.
type Tool string

const (
	ToolWebSearch    Tool = "web_search"
	ToolWebResearch  Tool = "web_research"
	ToolSaveToNotion Tool = "save_to_notion"
	ToolDispatchMail Tool = "dispatch_email"
)

var validTools = map[Tool]struct{}{
	ToolWebSearch:    {},
	ToolWebResearch:  {},
	ToolSaveToNotion: {},
	ToolDispatchMail: {},
}

// Step is one entry in a plan.
type Step struct {
	StepNum int            `json:"step"`
	Tool    Tool           `json:"tool"`
	Args    map[string]any `json:"args"`
	Thought string         `json:"thought"`
}

const systemTemplate = `You are a research planning assistant. Given an objective, respond with
ONLY a JSON array of steps, no prose before or after. Each step has this
shape:

{"step": <int>, "tool": <one of %s>, "args": {...}, "thought": "<why this step>"}

Produce the minimum number of steps needed to gather evidence for the
objective and take any requested follow-up actions.`

var toolEnum = []Tool{ToolWebSearch, ToolWebResearch, ToolSaveToNotion, ToolDispatchMail}

// Planner turns an objective into a validated plan via the LLM Gateway.
type Planner struct {
	gateway *llm.Gateway
}

// New builds a Planner backed by gateway.
func New(gateway *llm.Gateway) *Planner {
	return &Planner{gateway: gateway}
}

// Plan asks the LLM Gateway for a plan and validates it. On any parse
// failure it returns an empty plan (not an error) so the caller can fall
// back to a single web_search step using the objective verbatim.
func (p *Planner) Plan(ctx context.Context, objective string) []Step {
	log := logging.FromContext(ctx)

	toolJSON, _ := json.Marshal(toolEnum)
	prompt := fmt.Sprintf(systemTemplate, string(toolJSON)) + "\n\nObjective: " + objective

	raw, err := p.gateway.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 1024, Temperature: 0})
	if err != nil {
		log.Warn().Err(err).Msg("planner: gateway generate failed, falling back to empty plan")
		return nil
	}

	arr, ok := extractJSONArray(raw)
	if !ok {
		log.Warn().Msg("planner: could not locate a JSON array in the llm response")
		return nil
	}

	var candidates []Step
	if err := json.Unmarshal([]byte(arr), &candidates); err != nil {
		log.Warn().Err(err).Msg("planner: json array did not parse as steps")
		return nil
	}

	steps := make([]Step, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := validTools[c.Tool]; !ok {
			log.Warn().Str("tool", string(c.Tool)).Msg("planner: dropping step with unknown tool")
			continue
		}
		if c.Args == nil {
			c.Args = map[string]any{}
		}
		steps = append(steps, c)
	}
	return steps
}

// extractJSONArray locates the first '[' and its matching ']' in s, robust
// to surrounding prose, and returns the substring between them inclusive.
func extractJSONArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// FallbackStep builds the single web_search step the executor uses when
// the Planner returns an empty plan.
func FallbackStep(objective string) Step {
	return Step{
		StepNum: 1,
		Tool:    ToolWebSearch,
		Args:    map[string]any{"query": objective},
		Thought: "planner produced no usable plan; searching the objective verbatim",
	}
}
