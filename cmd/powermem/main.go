// Command powermem is the main entry point for the long-term memory service:
// it serves the HTTP surface by default, or dispatches to an operator
// subcommand (add, search, config, manage, interactive, …) when one is given.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"

	"github.com/powermem-ai/powermem/internal/cli"
	"github.com/powermem-ai/powermem/internal/config"
	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/internal/health"
	"github.com/powermem-ai/powermem/internal/httpapi"
	"github.com/powermem-ai/powermem/internal/observe"
	"github.com/powermem-ai/powermem/internal/resilience"
	"github.com/powermem-ai/powermem/pkg/idgen"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/memory/postgres"
	"github.com/powermem-ai/powermem/pkg/provider/embeddings"
	embeddingsollama "github.com/powermem-ai/powermem/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/powermem-ai/powermem/pkg/provider/embeddings/openai"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	llmanyllm "github.com/powermem-ai/powermem/pkg/provider/llm/anyllm"
	llmopenai "github.com/powermem-ai/powermem/pkg/provider/llm/openai"
	"github.com/powermem-ai/powermem/pkg/provider/reranker"
	rerankeropenai "github.com/powermem-ai/powermem/pkg/provider/reranker/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCmd(buildDeps)
	root.AddCommand(newServeCmd())

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	return cli.Run(root, args)
}

// newServeCmd starts the HTTP surface. It is the default mode: `powermem`
// with no subcommand is equivalent to `powermem serve`.
func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "powermem: config file %q not found\n", configPath)
		}
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("powermem starting", "config", configPath, "listen_addr", cfg.Server.ListenAddr)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "powermem"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	deps, err := buildDeps(configPath)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	healthHandler := health.New(health.Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			_, err := deps.Store.Statistics(ctx, memory.Filter{})
			return err
		},
	})

	server := httpapi.New(httpapi.Config{
		Core:    deps.Core,
		Store:   deps.Store,
		Health:  healthHandler,
		Metrics: observe.DefaultMetrics(),
		APIKeys: cfg.Server.APIKeys,
	})

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// buildDeps loads configuration and constructs every provider named in it,
// wiring them into a [cli.Deps]. Used both by the CLI subcommands and by
// runServe.
func buildDeps(configPath string) (*cli.Deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	reg := config.NewRegistry()
	registerProviders(reg)

	store, err := reg.CreateVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("vector_store: %w", err)
	}

	embedder, err := reg.CreateEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmClient, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	llmClient, err = withLLMFallbacks(reg, llmClient, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm_fallbacks: %w", err)
	}

	var coreOpts []core.Option
	if cfg.Reranker != nil && cfg.Reranker.Enabled {
		rerank, err := reg.CreateReranker(*cfg.Reranker)
		if err != nil {
			return nil, fmt.Errorf("reranker: %w", err)
		}
		coreOpts = append(coreOpts, core.WithReranker(rerank))
	}

	ids, err := idgen.New(shardFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("idgen: %w", err)
	}

	c := core.New(store, embedder, llmClient, ids, coreOpts...)
	return &cli.Deps{Core: c, Store: store}, nil
}

// withLLMFallbacks wraps client in a [resilience.LLMFallback] when the
// configuration names one or more fallback backends, so a primary LLM outage
// fails over instead of aborting every Add/search call that needs inference.
func withLLMFallbacks(reg *config.Registry, client llm.Provider, cfg *config.Config) (llm.Provider, error) {
	if len(cfg.LLMFallbacks) == 0 {
		return client, nil
	}

	fallback := resilience.NewLLMFallback(client, cfg.LLM.Provider, resilience.FallbackConfig{})
	for _, section := range cfg.LLMFallbacks {
		backend, err := reg.CreateLLM(section)
		if err != nil {
			return nil, err
		}
		fallback.AddFallback(section.Provider, backend)
	}
	return fallback, nil
}

// shardFromConfig picks the snowflake shard id for this process. A single
// fixed shard is correct for a single-process deployment; multi-instance
// deployments must set distinct shards out of band (environment-specific,
// outside this package's scope).
func shardFromConfig(cfg *config.Config) int64 {
	return 1
}

// registerProviders wires every provider constructor this build ships with
// into reg, keyed by the name used in configuration (spec.md §6).
func registerProviders(reg *config.Registry) {
	reg.RegisterVectorStore("postgres", func(section config.ProviderSection) (memory.Store, error) {
		c := section.Config
		coll := memory.Collection{
			Name:                 c.CollectionName,
			DenseDimension:       c.EmbeddingModelDims,
			Metric:               memory.MetricCosine,
			SupportsNativeHybrid: c.EnableNativeHybrid,
		}
		if coll.Name == "" {
			coll.Name = "memories"
		}
		dsn := c.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.DBName)
		}
		return postgres.NewStore(context.Background(), dsn, coll)
	})

	reg.RegisterLLM("openai", func(section config.ProviderSection) (llm.Provider, error) {
		c := section.Config
		var opts []llmopenai.Option
		if c.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(c.BaseURL))
		}
		return llmopenai.New(c.APIKey, c.Model, opts...)
	})

	reg.RegisterLLM("anyllm", func(section config.ProviderSection) (llm.Provider, error) {
		c := section.Config
		backend, _ := c.Options["backend"].(string)
		var opts []anyllmlib.Option
		if c.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
		}
		if c.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(c.BaseURL))
		}
		return llmanyllm.New(backend, c.Model, opts...)
	})

	reg.RegisterEmbedder("openai", func(section config.ProviderSection) (embeddings.Provider, error) {
		c := section.Config
		var opts []embeddingsopenai.Option
		if c.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(c.BaseURL))
		}
		if c.EmbeddingDims > 0 {
			opts = append(opts, embeddingsopenai.WithDimensions(c.EmbeddingDims))
		}
		return embeddingsopenai.New(c.APIKey, c.Model, opts...)
	})

	reg.RegisterEmbedder("ollama", func(section config.ProviderSection) (embeddings.Provider, error) {
		c := section.Config
		var opts []embeddingsollama.Option
		if c.EmbeddingDims > 0 {
			opts = append(opts, embeddingsollama.WithDimensions(c.EmbeddingDims))
		}
		return embeddingsollama.New(c.BaseURL, c.Model, opts...)
	})

	reg.RegisterReranker("openai", func(section config.RerankerSection) (reranker.Provider, error) {
		c := section.Config
		client, err := llmopenai.New(c.APIKey, c.Model)
		if err != nil {
			return nil, err
		}
		return rerankeropenai.New(client), nil
	})
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
