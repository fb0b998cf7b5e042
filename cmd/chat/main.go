// Command chat is an interactive demo client for the dirigent adapter.
// It sends one prompt to a configured orchestration service, optionally
// streaming the answer, and runs one tool round when the model requests
// tool calls and MCP servers are configured.
//
// Usage:
//
//	chat [flags] <prompt...>
//
// Configuration follows pkg/config discovery (DIRIGENT_CONFIG, then
// ./config.yaml, then /etc/dirigent/config.yaml); flags override the
// loaded values.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/auth"
	"github.com/dirigent-llm/dirigent/pkg/config"
	"github.com/dirigent-llm/dirigent/pkg/debug"
	"github.com/dirigent-llm/dirigent/pkg/provider"
	"github.com/dirigent-llm/dirigent/pkg/provider/orchestration"
	"github.com/dirigent-llm/dirigent/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chat failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (overrides discovery)")
	baseURL := flag.String("url", "", "orchestration service URL (overrides config)")
	model := flag.String("model", "", "model name (overrides config)")
	system := flag.String("system", "", "system prompt")
	stream := flag.Bool("stream", false, "stream the response")
	flag.Parse()

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		return fmt.Errorf("usage: chat [flags] <prompt>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.Upstream.BaseURL = *baseURL
	}
	if *model != "" {
		cfg.Upstream.DefaultModel = *model
	}
	if cfg.Upstream.DefaultModel == "" {
		return fmt.Errorf("no model configured; use -model or set upstream.default_model")
	}

	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return err
	}

	prov, err := orchestration.New(orchestration.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Tokens:   tokens,
		Timeout:  cfg.Upstream.Timeout,
		Defaults: cfg.Upstream.Defaults,
	})
	if err != nil {
		return err
	}
	defer prov.Close()

	if cfg.Observability.Metrics.Enabled {
		serveMetrics(cfg.Observability.Metrics)
	}

	req := &provider.Request{
		Model: cfg.Upstream.DefaultModel,
	}
	if *system != "" {
		req.Messages = append(req.Messages, api.SystemMessage(*system))
	}
	req.Messages = append(req.Messages, api.UserMessage(api.TextPart(prompt)))

	var catalog *tools.Catalog
	if len(cfg.Tools.Servers) > 0 {
		catalog = tools.NewCatalog(toolServers(cfg.Tools.Servers))
		if err := catalog.Connect(ctx); err != nil {
			return err
		}
		defer catalog.Close()
		req.Tools = catalog.Tools()
		slog.Info("tool catalog connected", "tools", len(req.Tools))
	}

	if *stream {
		return streamOnce(ctx, prov, req)
	}
	return completeWithTools(ctx, prov, catalog, req)
}

// completeWithTools performs one completion and, when the model requests
// tool calls, executes them and feeds the results back for a final answer.
func completeWithTools(ctx context.Context, prov provider.Provider, catalog *tools.Catalog, req *provider.Request) error {
	result, err := prov.Complete(ctx, req)
	if err != nil {
		return err
	}
	printWarnings(result.Warnings)

	calls := result.ToolCalls()
	if len(calls) == 0 || catalog == nil {
		fmt.Println(result.Text())
		printUsage(&result.Usage)
		return nil
	}

	// One tool round: execute every requested call, then ask again with
	// the results appended to the conversation.
	assistant := api.Message{Role: api.RoleAssistant}
	for i := range calls {
		assistant.Content = append(assistant.Content, api.ContentPart{
			Type:     api.PartToolCall,
			ToolCall: &calls[i],
		})
	}
	req.Messages = append(req.Messages, assistant)

	for _, call := range calls {
		fmt.Printf("-> tool %s(%s)\n", call.Name, call.Input)
		executed, err := catalog.Execute(ctx, call)
		if err != nil {
			return err
		}
		if executed.IsError {
			fmt.Printf("<- tool error: %s\n", executed.Output)
		}
		req.Messages = append(req.Messages, api.Message{
			Role: api.RoleTool,
			Content: []api.ContentPart{{
				Type: api.PartToolResult,
				ToolResult: &api.ToolResultPart{
					CallID: executed.CallID,
					Output: executed.Output,
				},
			}},
		})
	}

	final, err := prov.Complete(ctx, req)
	if err != nil {
		return err
	}
	printWarnings(final.Warnings)
	fmt.Println(final.Text())
	printUsage(&final.Usage)
	return nil
}

func streamOnce(ctx context.Context, prov provider.Provider, req *provider.Request) error {
	ch, err := prov.Stream(ctx, req)
	if err != nil {
		return err
	}

	for ev := range ch {
		switch ev.Type {
		case api.EventStreamStart:
			printWarnings(ev.Warnings)
		case api.EventResponseMetadata:
			slog.Debug("stream opened", "model", ev.ModelID)
		case api.EventTextDelta:
			fmt.Print(ev.Delta)
		case api.EventTextEnd:
			fmt.Println()
		case api.EventToolInputStart:
			fmt.Printf("-> tool %s ", ev.ToolName)
		case api.EventToolInputDelta:
			fmt.Print(ev.Delta)
		case api.EventToolInputEnd:
			fmt.Println()
		case api.EventFinish:
			printWarnings(ev.Warnings)
			fmt.Printf("[finish: %s]\n", ev.FinishReason.Kind)
			printUsage(ev.Usage)
		case api.EventError:
			return ev.Err
		}
	}
	return nil
}

// tokenProvider builds the upstream token source. A service key also
// carries the service URL, which fills in upstream.base_url when the
// config leaves it empty.
func tokenProvider(cfg *config.Config) (orchestration.TokenProvider, error) {
	switch cfg.Auth.Type {
	case "", "none":
		return nil, nil
	case "static":
		return auth.StaticToken(cfg.Auth.Token), nil
	case "client_credentials":
		return auth.NewClientCredentials(auth.Config{
			TokenURL:     cfg.Auth.TokenURL,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Scopes:       cfg.Auth.Scopes,
		})
	case "service_key":
		key, err := auth.LoadServiceKey(cfg.Auth.ServiceKeyFile)
		if err != nil {
			return nil, err
		}
		if cfg.Upstream.BaseURL == "" {
			cfg.Upstream.BaseURL = key.ServiceURLs.API
		}
		return key.TokenSource()
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
}

func toolServers(configs []config.MCPServerConfig) []tools.ServerConfig {
	servers := make([]tools.ServerConfig, 0, len(configs))
	for _, c := range configs {
		servers = append(servers, tools.ServerConfig{
			Name:    c.Name,
			URL:     c.URL,
			Headers: c.Headers,
		})
	}
	return servers
}

// serveMetrics exposes the Prometheus registry in the background; a demo
// client does not block on it.
func serveMetrics(cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Debug("metrics endpoint unavailable", "error", err)
		}
	}()
}

func printWarnings(warnings []api.Warning) {
	for _, w := range warnings {
		slog.Warn("advisory", "code", w.Code, "setting", w.Setting, "message", w.Message)
	}
}

func printUsage(usage *api.Usage) {
	if usage == nil || usage.TotalTokens == nil {
		return
	}
	in, out := 0, 0
	if usage.InputTokens != nil {
		in = *usage.InputTokens
	}
	if usage.OutputTokens != nil {
		out = *usage.OutputTokens
	}
	fmt.Printf("[tokens: %d in / %d out / %d total]\n", in, out, *usage.TotalTokens)
}
