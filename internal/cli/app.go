package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/oracle/internal/config"
	"github.com/harun/oracle/internal/logger"
	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/agentconfig"
	"github.com/harun/oracle/pkg/answer"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
	"github.com/harun/oracle/pkg/tools/builtin"
)

// app holds the process services shared by the commands: logging, metrics,
// tracing, the retrieval backend and the registries agents resolve against.
type app struct {
	cfg    *config.Config
	loader *config.Loader
	log    *logger.Logger
	logger zerolog.Logger

	llms       *llm.Registry
	tools      *tools.Registry
	formatters *answer.Registry
	retrieval  *retrieval.Service

	closers []func(context.Context) error
}

type appOptions struct {
	// withRetrieval opens the configured vector index.
	withRetrieval bool
	// withTelemetry starts the metrics server and the tracer provider.
	withTelemetry bool
}

// loadConfig reads the config file named by --config or its fallbacks.
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return loader, cfg, nil
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	loader, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:        cfg,
		loader:     loader,
		log:        log,
		logger:     log.Component("cli"),
		llms:       llm.DefaultRegistry(),
		tools:      tools.New(),
		formatters: answer.NewRegistry(),
	}
	a.closers = append(a.closers, func(context.Context) error { return log.Close() })

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			return observability.GetAuditLogger().Close()
		})
	}

	if opts.withTelemetry {
		if err := a.startTelemetry(); err != nil {
			a.Close()
			return nil, err
		}
	}

	var retriever builtin.Retriever
	if opts.withRetrieval {
		svc, err := a.openRetrieval()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.retrieval = svc
		a.closers = append(a.closers, func(context.Context) error { return svc.Close() })
		retriever = &meteredRetriever{backend: cfg.Retrieval.Backend, next: svc}
	}

	if err := builtin.Register(a.tools, builtin.Dependencies{Retriever: retriever}); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) startTelemetry() error {
	if a.cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(a.cfg.Tracing.ServiceName); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.closers = append(a.closers, tracing.ShutdownOpenTelemetry)
	}

	if !a.cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", srv.Addr).Msg("Metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", srv.Addr).Msg("Metrics server listening")
	a.closers = append(a.closers, srv.Shutdown)
	return nil
}

func (a *app) openRetrieval() (*retrieval.Service, error) {
	rc := a.cfg.Retrieval
	indexLogger := a.log.Component("retrieval")

	var index retrieval.Index
	switch rc.Backend {
	case config.BackendWeaviate:
		w, err := retrieval.NewWeaviateIndex(rc.WeaviateURL, indexLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open weaviate index: %w", err)
		}
		index = w
	default:
		s, err := retrieval.OpenSQLite(rc.SQLitePath, indexLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite index: %w", err)
		}
		index = s
	}

	return retrieval.NewService(retrieval.Config{
		Embedders: retrieval.NewEmbedderFactory(retrieval.EmbeddingOptions{
			APIKey:  rc.OpenAIAPIKey,
			BaseURL: rc.OpenAIBaseURL,
		}),
		Index:  index,
		Logger: indexLogger,
	})
}

// catalog answers reference checks against this process's registries.
func (a *app) catalog() agentconfig.Catalog {
	return &agentconfig.RegistryCatalog{
		LLMs:       a.llms,
		Tools:      a.tools,
		Formatters: a.formatters,
	}
}

// resolve turns the agent section of cfg into a checked AgentConfig.
func (a *app) resolve(cfg *config.Config) (*agentconfig.AgentConfig, error) {
	return agentconfig.Resolve(cfg.Agent, a.catalog())
}

// newRunner resolves the agent section of cfg and builds a runner for it.
func (a *app) newRunner(cfg *config.Config) (*agent.Runner, error) {
	agentCfg, err := a.resolve(cfg)
	if err != nil {
		return nil, err
	}
	return agent.NewRunner(agent.Config{
		Agent:      agentCfg,
		LLMs:       a.llms,
		Tools:      a.tools,
		Formatters: a.formatters,
		Logger:     a.log.Component("agent"),
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
	a.closers = nil
}

// meteredRetriever records latency and result counts per backend.
type meteredRetriever struct {
	backend string
	next    builtin.Retriever
}

func (m *meteredRetriever) Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Document, error) {
	start := time.Now()
	docs, err := m.next.Retrieve(ctx, req)
	observability.RecordRetrieval(m.backend, time.Since(start), len(docs))
	return docs, err
}
