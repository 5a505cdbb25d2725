package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/api"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/chat"
	"github.com/sha1n/relic-rag/internal/config"
	"github.com/sha1n/relic-rag/internal/history"
	"github.com/sha1n/relic-rag/internal/index"
	"github.com/sha1n/relic-rag/internal/llm/ollama"
	mcputil "github.com/sha1n/relic-rag/internal/mcp"
	"github.com/sha1n/relic-rag/internal/retrieval"
	"github.com/spf13/pflag"
)

// redisDialTimeout bounds the startup connectivity check of the redis history store.
const redisDialTimeout = 5 * time.Second

// Server holds the surfaces built over one retrieval engine.
type Server struct {
	// MCP serves the stdio transport, where tool arguments name the role.
	MCP *mcp.Server
	// MCPFor builds the server for one authenticated SSE connection.
	MCPFor func(auth.Identity) *mcp.Server
	API    *api.Handler
}

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(context.Context, *Server, *config.Settings) error
	CreateServer      func(context.Context, *config.Settings) (*Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateRAGServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("Starting RELIC RAG server", "version", version)
	config.Log(settings)

	srv, cleanup, err := params.CreateServer(ctx, settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return srv.MCP.Run(ctx, transport)
	}

	slog.Info("Starting HTTP server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(ctx, srv, settings)
}

func loadSettings(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// setupLogging installs the configured logger as the slog default.
// Logs always go to stderr so stdout stays free for the stdio transport.
func setupLogging(settings *config.Settings) (func(), error) {
	logger, closer, err := config.NewLogger(settings.Log)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(logger)
	return func() { _ = closer.Close() }, nil
}

// CreateRAGServer opens the index and wires the answering pipeline behind the MCP and HTTP surfaces.
func CreateRAGServer(ctx context.Context, settings *config.Settings) (*Server, func(), error) {
	engine, err := openEngine(ctx, settings)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := newHistoryStore(ctx, settings.History)
	if err != nil {
		return nil, nil, err
	}

	generator := ollama.NewClient(ollama.Config{
		URL:           settings.Backend.URL,
		Model:         settings.Backend.Model,
		ContextWindow: settings.Backend.ContextWindow,
		Timeout:       settings.Backend.Timeout,
	})
	orchestrator := chat.NewOrchestrator(engine, store, generator)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	if settings.Index.Watch {
		go func() {
			defer close(watchDone)
			if err := retrieval.Watch(watchCtx, engine, retrieval.DefaultReloadDebounce); err != nil {
				slog.Error("Index watcher stopped", "dir", settings.Index.Dir, "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	cleanup := func() {
		stopWatch()
		<-watchDone
		closeStore()
	}

	mcpConfig := mcputil.ServerConfig{
		Name:     "relic-rag",
		Version:  "1.0.0",
		Searcher: engine,
		Answerer: orchestrator,
	}
	srv := &Server{
		MCP: mcputil.CreateServer(mcpConfig),
		MCPFor: func(id auth.Identity) *mcp.Server {
			bound := mcpConfig
			bound.Caller = &id
			return mcputil.CreateServer(bound)
		},
		API: api.NewHandler(orchestrator, store,
			api.WithLimiter(api.NewSubjectLimiter(settings.Chat.RateLimit, settings.Chat.Burst))),
	}
	return srv, cleanup, nil
}

// openEngine loads the index, compiling it from the corpus first if none exists yet.
func openEngine(ctx context.Context, settings *config.Settings) (*retrieval.Engine, error) {
	opts := []retrieval.Option{
		retrieval.WithTopK(settings.Retrieval.TopK),
		retrieval.WithScoreThreshold(settings.Retrieval.ScoreThreshold),
	}

	engine, err := retrieval.Open(settings.Index.Dir, opts...)
	if errors.Is(err, retrieval.ErrIndexNotFound) {
		slog.Warn("No index found, building it from the corpus", "corpus", settings.Index.CorpusDir, "index", settings.Index.Dir)
		if _, buildErr := index.NewBuilder(settings.Index.CorpusDir, settings.Index.Dir).Build(ctx); buildErr != nil {
			return nil, fmt.Errorf("failed to build index: %w", buildErr)
		}
		engine, err = retrieval.Open(settings.Index.Dir, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return engine, nil
}

func newHistoryStore(ctx context.Context, settings config.HistorySettings) (history.Store, func(), error) {
	switch settings.Store {
	case config.HistoryStoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		defer cancel()

		client, err := history.DialRedis(dialCtx, settings.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect history store: %w", err)
		}
		store := history.NewRedisStore(client, settings.MaxTurns, settings.TTL)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close history store", "error", err)
			}
		}, nil
	default:
		return history.NewMemoryStore(settings.MaxTurns, settings.TTL), func() {}, nil
	}
}
