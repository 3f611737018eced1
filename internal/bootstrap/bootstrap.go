package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/core/usecase"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/grounded-rag/internal/observability/metrics"
)

// ReadinessCheck probes one backing dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	QueryUC   ports.QueryService

	Pipeline  *metrics.PipelineMetrics
	Readiness []ReadinessCheck

	closeFns []func()
}

// New wires every adapter. Pipeline and breaker series are registered on registerer.
func New(ctx context.Context, cfg config.Config, service string, registerer prometheus.Registerer) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	pipelineMetrics := metrics.NewPipelineMetrics(service, registerer)
	app.Pipeline = pipelineMetrics

	executor := resilience.NewExecutor(resilienceConfig(cfg.Resilience))
	executor.OnStateChange(pipelineMetrics.ObserveBreakerState)
	executor.OnStateChange(func(operation, from, to string) {
		slog.Warn("circuit_breaker_state_change", "operation", operation, "from", from, "to", to)
	})

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo
	app.Readiness = append(app.Readiness, ReadinessCheck{Name: "postgres", Check: repo.Ping})

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFns = append(app.closeFns, queue.Close)
	app.Queue = queue
	app.Readiness = append(app.Readiness, ReadinessCheck{Name: "nats", Check: queue.Ping})

	oracle, embedder, embedModel := newModelAdapters(cfg, executor)
	app.Readiness = append(app.Readiness, breakerReadiness(executor, modelOperations(cfg.OracleProvider)...))

	if cfg.RedisAddr != "" {
		store, err := rediscache.NewStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		app.closeFns = append(app.closeFns, store.Close)
		app.Readiness = append(app.Readiness, ReadinessCheck{Name: "redis", Check: store.Ping})
		embedder = rediscache.NewCachedEmbedder(embedder, store, embedModel, cfg.EmbeddingCacheTTL)
	}

	vectorDB, err := qdrant.New(cfg.QdrantAddr, cfg.QdrantCollection, cfg.QdrantAPIKey)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = vectorDB.Close() })
	app.Readiness = append(app.Readiness, ReadinessCheck{Name: "qdrant", Check: vectorDB.Ping})

	opts := pipelineOptions(cfg.Pipeline)
	classifier := usecase.NewDocumentTagger(oracle, pipelineMetrics, usecase.RetryPolicy{
		Attempts:    opts.SynthesisAttempts,
		BackoffStep: opts.BackoffStep,
	})
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := plaintext.NewExtractor(storage)
	retriever := usecase.NewVectorRetriever(embedder, vectorDB)

	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, extractor, classifier, chunker, embedder, vectorDB)
	app.QueryUC = usecase.NewPipelineUseCase(oracle, retriever, pipelineMetrics, opts)

	slog.Info("bootstrap_ready",
		"oracle_provider", cfg.OracleProvider,
		"embed_model", embedModel,
		"embedding_cache", cfg.RedisAddr != "",
		"qdrant_collection", cfg.QdrantCollection,
	)
	ok = true
	return app, nil
}

func newModelAdapters(cfg config.Config, executor *resilience.Executor) (ports.Oracle, ports.Embedder, string) {
	if cfg.OracleProvider == config.OracleProviderOpenAI {
		client := openai.New(openai.Config{
			APIKey:             cfg.OpenAIAPIKey,
			BaseURL:            cfg.OpenAIBaseURL,
			ChatModel:          cfg.OpenAIChatModel,
			EmbedModel:         cfg.OpenAIEmbedModel,
			Dimensions:         cfg.OpenAIEmbedDimensions,
			Timeout:            cfg.OpenAITimeout,
			ResilienceExecutor: executor,
		})
		return openai.NewOracle(client), openai.NewEmbedder(client), cfg.OpenAIEmbedModel
	}

	client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout,
		ResilienceExecutor: executor,
	})
	return ollama.NewOracle(client), ollama.NewEmbedder(client), cfg.OllamaEmbedModel
}

// modelOperations names the executor operations used by the selected model provider.
func modelOperations(provider string) []string {
	if provider == config.OracleProviderOpenAI {
		return []string{"openai.chat", "openai.embed"}
	}
	return []string{"ollama.generate", "ollama.embed"}
}

// breakerReadiness fails while any of the operations has an open circuit.
func breakerReadiness(executor *resilience.Executor, operations ...string) ReadinessCheck {
	return ReadinessCheck{
		Name: "model_breaker",
		Check: func(context.Context) error {
			var errs []error
			for _, operation := range operations {
				if state := executor.State(operation); state == "open" {
					errs = append(errs, fmt.Errorf("circuit %s is %s", operation, state))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func resilienceConfig(cfg config.ResilienceConfig) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerMinRequests = cfg.BreakerMinRequests
	out.BreakerFailureRatio = cfg.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	return out
}

func pipelineOptions(cfg config.PipelineConfig) usecase.Options {
	return usecase.Options{
		ExpandVariants:    cfg.ExpandVariants,
		ExpandAttempts:    cfg.ExpandAttempts,
		RerankAttempts:    cfg.RerankAttempts,
		SynthesisAttempts: cfg.SynthesisAttempts,
		BackoffStep:       cfg.BackoffStep,
		RerankCharBudget:  cfg.RerankCharBudget,
		FanOutWorkers:     cfg.FanOutWorkers,
		TopKPerQuery:      cfg.TopKPerQuery,
		TopKFinal:         cfg.TopKFinal,
		NotFoundAnswer:    cfg.NotFoundAnswer,
	}
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
