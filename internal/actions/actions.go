// Package actions implements the Action Dispatcher: dispatch(action, args)
// -> result_text, routed to external collaborators (a notebook service, an
// email sender) as remote Model Context Protocol tool calls rather than
// hand-rolled REST/SMTP clients.
package actions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
)

// Action names the Action Dispatcher understands.
type Action string

const (
	SaveToExternalNotebook Action = "save_to_external_notebook"
	DispatchEmail          Action = "dispatch_email"
)

// actionToServer maps each supported action to the MCP server config entry
// expected to serve it ("notebook" and "email").
var actionToServer = map[Action]string{
	SaveToExternalNotebook: "notebook",
	DispatchEmail:          "email",
}

// actionToTool maps each action to the remote tool name invoked on its MCP
// server.
var actionToTool = map[Action]string{
	SaveToExternalNotebook: "save_page",
	DispatchEmail:          "send_email",
}

// ActionFailed is returned for any dispatch that could not complete: an
// unconfigured server, a connection failure, or an error result from the
// remote tool. The mission treats this as a logged, non-fatal failure.
type ActionFailed struct {
	Action Action
	Reason string
}

func (e *ActionFailed) Error() string {
	return fmt.Sprintf("action %q failed: %s", e.Action, e.Reason)
}

// Dispatcher routes actions to their configured MCP servers.
type Dispatcher struct {
	mu       sync.Mutex
	sessions map[string]*mcppkg.ClientSession
	servers  map[string]config.MCPServerConfig
}

// New builds a Dispatcher from the configured MCP servers. Connections are
// opened lazily on first dispatch, not at construction time.
func New(servers []config.MCPServerConfig) *Dispatcher {
	byName := make(map[string]config.MCPServerConfig, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &Dispatcher{
		sessions: make(map[string]*mcppkg.ClientSession),
		servers:  byName,
	}
}

// Close closes any sessions opened during the Dispatcher's lifetime.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		_ = s.Close()
	}
}

// Dispatch invokes action with args and returns the remote tool's textual
// result. A missing server configuration, connection failure, or an
// error-flagged tool result all surface as *ActionFailed immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, args map[string]any) (string, error) {
	log := logging.FromContext(ctx)

	serverName, ok := actionToServer[action]
	if !ok {
		return "", &ActionFailed{Action: action, Reason: "unknown action"}
	}
	srv, ok := d.servers[serverName]
	if !ok {
		return "", &ActionFailed{Action: action, Reason: "no mcp server configured for " + serverName}
	}

	session, err := d.sessionFor(ctx, serverName, srv)
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("actions: failed to connect mcp server")
		return "", &ActionFailed{Action: action, Reason: err.Error()}
	}

	toolName := actionToTool[action]
	res, err := session.CallTool(ctx, &mcppkg.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("actions: mcp tool call failed")
		return "", &ActionFailed{Action: action, Reason: err.Error()}
	}
	if res.IsError {
		reason := extractText(res)
		if reason == "" {
			reason = "remote tool reported an error"
		}
		return "", &ActionFailed{Action: action, Reason: reason}
	}

	text := extractText(res)
	if text == "" {
		text = fmt.Sprintf("%s completed", action)
	}
	return text, nil
}

func extractText(res *mcppkg.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*mcppkg.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (d *Dispatcher) sessionFor(ctx context.Context, name string, srv config.MCPServerConfig) (*mcppkg.ClientSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[name]; ok {
		return s, nil
	}

	client := mcppkg.NewClient(&mcppkg.Implementation{Name: "market-intel-agent", Version: "0.1.0"}, nil)
	transport := &mcppkg.StreamableClientTransport{Endpoint: srv.URL}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to mcp server %q: %w", name, err)
	}
	d.sessions[name] = session
	return session, nil
}
