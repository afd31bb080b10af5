// Package main runs the agentstage server: the session engine behind a JSON
// control API and a WebSocket push stream.
//
// Configuration is via environment variables (a .env file is honored):
//
//	AGENTSTAGE_ADDR                - Listen address (default: :3001, or :$PORT)
//	AGENTSTAGE_LOG_LEVEL           - debug, info, warn or error (default: info)
//	AGENTSTAGE_LOG_FORMAT          - json or text (default: json)
//	AGENTSTAGE_PACING              - Pause between turns (default: 500ms)
//	AGENTSTAGE_HISTORY_WINDOW      - Entries visible to a speaker (default: 15)
//	AGENTSTAGE_MAX_TOOL_ITERATIONS - Tool loop ceiling (default: 10)
//	AGENTSTAGE_THINK_DELAY         - Pause after each turn (default: 0)
//	AGENTSTAGE_MAX_TOKENS          - Reply token cap (default: adapter default)
//	ANTHROPIC_API_KEY              - Enables Claude models
//	OPENAI_API_KEY                 - Enables OpenAI chat models
//	OPENAI_BASE_URL                - Overrides the chat endpoint
//	OPENROUTER_API_KEY             - Chat models through OpenRouter
//	GOOGLE_API_KEY                 - Enables Gemini models
//	TAVILY_API_KEY                 - Enables the web_search tool
//
// Usage:
//
//	OPENROUTER_API_KEY=... go run ./cmd/agentstage
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentstage/config"
	"github.com/hupe1980/agentstage/engine"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/model"
	anthropicmodel "github.com/hupe1980/agentstage/model/anthropic"
	googlemodel "github.com/hupe1980/agentstage/model/google"
	openaimodel "github.com/hupe1980/agentstage/model/openai"
	"github.com/hupe1980/agentstage/server"
	"github.com/hupe1980/agentstage/tool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(nil).Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := newRegistry(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure providers", "error", err)
		os.Exit(1)
	}

	executor := tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = logger })
	if cfg.TavilyKey != "" {
		executor.Register(tool.NewWebSearchTool(func(o *tool.WebSearchOptions) { o.APIKey = cfg.TavilyKey }))
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = cfg.Engine()
		o.Resolver = registry
		o.Executor = executor
		o.Logger = logger
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(eng, func(o *server.Options) { o.Logger = logger }).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		// Closing the engine ends every push stream, so hijacked WebSocket
		// connections are gone before the HTTP server drains.
		_ = eng.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("orchestration server starting",
		"addr", cfg.Addr,
		"backends", registry.Backends(),
		"tools", executor.Names(),
	)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newRegistry registers a factory for every backend that has credentials.
func newRegistry(ctx context.Context, cfg *config.Config) (*model.Registry, error) {
	registry := model.NewRegistry()

	if cfg.AnthropicKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicKey))
		registry.Register(model.BackendAnthropic, anthropicmodel.NewFactory(&client))
	}

	if key, baseURL := cfg.ChatEndpoint(openaimodel.OpenRouterBaseURL); key != "" {
		provider := "openai"
		var headers map[string]string
		if baseURL == openaimodel.OpenRouterBaseURL {
			provider = "openrouter"
			headers = map[string]string{
				"HTTP-Referer": "http://localhost:3000",
				"X-Title":      "AI Agent Simulation",
			}
		}
		client := openaimodel.NewClient(openaimodel.ClientConfig{APIKey: key, BaseURL: baseURL, Headers: headers})
		registry.Register(model.BackendChat, openaimodel.NewFactory(client, func(o *openaimodel.Options) { o.Provider = provider }))
	}

	if cfg.GoogleKey != "" {
		client, err := googlemodel.NewClient(ctx, cfg.GoogleKey)
		if err != nil {
			return nil, err
		}
		registry.Register(model.BackendGoogle, googlemodel.NewFactory(client))
	}

	return registry, nil
}
