// Package google adapts the Google GenAI API to llm.Provider.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
)

const defaultMaxPayloadBytes = 28 * 1024

type Client struct {
	client   *genai.Client
	model    string
	maxBytes int
}

func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model, maxBytes: defaultMaxPayloadBytes}, nil
}

func (c *Client) MaxPayloadBytes() int { return c.maxBytes }

// WithModel returns a shallow copy bound to a different model, used by the
// free-tier discovery probe to try each candidate against the same
// underlying *genai.Client without reconstructing it.
func (c *Client) WithModel(model string) *Client {
	return &Client{client: c.client, model: model, maxBytes: c.maxBytes}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	var cfg *genai.GenerateContentConfig
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg = &genai.GenerateContentConfig{}
		if req.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(req.MaxTokens)
		}
		if req.Temperature > 0 {
			t := float32(req.Temperature)
			cfg.Temperature = &t
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		if isRateLimitErr(err) {
			return "", &llm.RateLimitError{Err: err}
		}
		return "", err
	}
	return resp.Text(), nil
}

func isRateLimitErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit")
}
