package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/debug"
)

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	Name    string
	URL     string
	Headers map[string]string
}

// Result is the outcome of one executed tool call, shaped for feeding
// back into a completion request as a tool-result part.
type Result struct {
	CallID  string
	Output  string
	IsError bool
}

// Catalog aggregates tools discovered from one or more MCP servers and
// routes tool calls to the server that owns them. Safe for concurrent use
// after Connect.
type Catalog struct {
	clients map[string]*serverClient
	// order preserves the configured server sequence; it decides which
	// server wins a duplicate tool name.
	order []string

	mu     sync.Mutex
	byName map[string]*serverClient
	cached []api.ToolDefinition
}

// serverClient wraps one MCP session.
type serverClient struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
}

// NewCatalog creates a catalog for the given servers. Call Connect before
// Tools or Execute.
func NewCatalog(servers []ServerConfig) *Catalog {
	c := &Catalog{clients: make(map[string]*serverClient, len(servers))}
	for _, cfg := range servers {
		c.clients[cfg.Name] = &serverClient{cfg: cfg}
		c.order = append(c.order, cfg.Name)
	}
	return c
}

// Connect establishes sessions to all configured servers and discovers
// their tools. A server that fails to connect fails the whole catalog;
// partial catalogs would silently drop tools the model was promised.
func (c *Catalog) Connect(ctx context.Context) error {
	for _, name := range c.order {
		if err := c.clients[name].connect(ctx, nil); err != nil {
			return fmt.Errorf("connecting to MCP server %q: %w", name, err)
		}
	}
	return c.discover(ctx)
}

// connectWithTransport wires one server over an explicit transport.
// Used by tests with in-memory transports.
func (c *Catalog) connectWithTransport(ctx context.Context, name string, transport mcp.Transport) error {
	sc, ok := c.clients[name]
	if !ok {
		sc = &serverClient{cfg: ServerConfig{Name: name}}
		c.clients[name] = sc
		c.order = append(c.order, name)
	}
	return sc.connect(ctx, transport)
}

func (sc *serverClient) connect(ctx context.Context, transport mcp.Transport) error {
	sc.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "dirigent",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t := &mcp.StreamableClientTransport{Endpoint: sc.cfg.URL}
		if len(sc.cfg.Headers) > 0 {
			t.HTTPClient = &http.Client{
				Transport: &headerTransport{
					base:    http.DefaultTransport,
					headers: sc.cfg.Headers,
				},
			}
		}
		transport = t
	}

	session, err := sc.client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	sc.session = session
	return nil
}

// headerTransport is an http.RoundTripper that adds custom headers to
// every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// discover lists tools from every connected server, in configured order,
// and builds the routing table. A name collision keeps the tool from the
// earliest-configured server and logs the loser.
func (c *Catalog) discover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byName = make(map[string]*serverClient)
	c.cached = nil

	for _, name := range c.order {
		sc := c.clients[name]
		if sc.session == nil {
			return fmt.Errorf("MCP server %q not connected", name)
		}
		for tool, err := range sc.session.Tools(ctx, nil) {
			if err != nil {
				return fmt.Errorf("listing tools from %q: %w", name, err)
			}
			if _, taken := c.byName[tool.Name]; taken {
				debug.Log("tools", "duplicate tool name, keeping first",
					"tool", tool.Name, "server", name)
				continue
			}
			td, convErr := convertTool(tool)
			if convErr != nil {
				return fmt.Errorf("converting tool %q from %q: %w", tool.Name, name, convErr)
			}
			c.byName[tool.Name] = sc
			c.cached = append(c.cached, td)
		}
	}
	return nil
}

// Tools returns the discovered tool definitions.
func (c *Catalog) Tools() []api.ToolDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Has reports whether the catalog can execute the named tool.
func (c *Catalog) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byName[name]
	return ok
}

// Execute routes one tool call to its owning server. Execution failures
// come back as error results rather than Go errors so the model can see
// and react to them.
func (c *Catalog) Execute(ctx context.Context, call api.ToolCallPart) (*Result, error) {
	c.mu.Lock()
	sc, ok := c.byName[call.Name]
	c.mu.Unlock()
	if !ok {
		return &Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("unknown tool %q", call.Name),
			IsError: true,
		}, nil
	}

	args, err := callArguments(call.Input)
	if err != nil {
		return &Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("invalid arguments: %v", err),
			IsError: true,
		}, nil
	}

	result, err := sc.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return &Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("MCP tool call error: %v", err),
			IsError: true,
		}, nil
	}

	return convertResult(call.ID, result), nil
}

// Close closes all server sessions, returning the first error.
func (c *Catalog) Close() error {
	var firstErr error
	for _, sc := range c.clients {
		if sc.session == nil {
			continue
		}
		if err := sc.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// callArguments normalizes a tool call's input into the argument map the
// MCP SDK expects. Inputs arrive either as a JSON string (accumulated from
// stream deltas) or as an already-decoded value.
func callArguments(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err != nil {
			return nil, err
		}
		return args, nil
	case map[string]any:
		return v, nil
	default:
		// Round-trip anything else through JSON.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var args map[string]any
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, err
		}
		return args, nil
	}
}

// convertTool converts an MCP Tool to a canonical tool definition.
func convertTool(t *mcp.Tool) (api.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	return api.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}, nil
}

// convertResult flattens an MCP CallToolResult into a text result.
func convertResult(callID string, result *mcp.CallToolResult) *Result {
	var output string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if output != "" {
				output += "\n"
			}
			output += tc.Text
		}
	}

	return &Result{
		CallID:  callID,
		Output:  output,
		IsError: result.IsError,
	}
}
