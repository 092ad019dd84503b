// Package openai adapts the OpenAI Chat Completions API to llm.Provider.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
)

const defaultMaxPayloadBytes = 28 * 1024

type Client struct {
	sdk      sdk.Client
	model    string
	maxBytes int
}

func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = sdk.ChatModelGPT4oMini
	}

	return &Client{
		sdk:      sdk.NewClient(opts...),
		model:    model,
		maxBytes: defaultMaxPayloadBytes,
	}
}

func (c *Client) MaxPayloadBytes() int { return c.maxBytes }

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		if isRateLimitErr(err) {
			return "", &llm.RateLimitError{Err: err}
		}
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", nil
	}
	return comp.Choices[0].Message.Content, nil
}

func isRateLimitErr(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
