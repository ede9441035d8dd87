// Command supportd is the process entrypoint: it loads configuration, wires
// every internal package into a running server, and serves both the REST
// surface (internal/httpapi) and the WebSocket surface (internal/transport)
// on one listener until an interrupt triggers a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"supportcore/internal/config"
	"supportcore/internal/httpapi"
	"supportcore/internal/llm"
	"supportcore/internal/llm/anthropic"
	"supportcore/internal/llm/google"
	"supportcore/internal/llm/openai"
	"supportcore/internal/llm/providers"
	"supportcore/internal/memory"
	"supportcore/internal/monitoring"
	"supportcore/internal/objectstore"
	"supportcore/internal/observability"
	"supportcore/internal/pipeline"
	"supportcore/internal/security"
	"supportcore/internal/tools"
	"supportcore/internal/transport"
	"supportcore/internal/workflow"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	observability.InitLogger(os.Getenv("LOG_PATH"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	hotRDB := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer hotRDB.Close()
	if err := hotRDB.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed at startup, continuing")
	}
	hotStore := memory.NewRedisKVStore(hotRDB)
	warmStore := memory.NewRedisKVStore(hotRDB)

	var pgPool *pgxpool.Pool
	if cfg.Postgres.DSN != "" {
		pgPool, err = pgxpool.New(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pgPool.Close()
	}

	coldStore, err := newColdStore(context.Background(), cfg.S3, httpClient)
	if err != nil {
		log.Warn().Err(err).Msg("s3 cold store unavailable, falling back to in-memory store")
		coldStore = objectstore.NewMemoryStore()
	}

	primary, err := newProvider(cfg.LLMClient.Provider, cfg.LLMClient, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build primary llm provider")
	}
	var provider llm.Provider = primary
	if cfg.LLMClient.FallbackProvider != "" {
		fallback, err := newProvider(cfg.LLMClient.FallbackProvider, cfg.LLMClient, httpClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build fallback llm provider")
		}
		provider = providers.NewPrimaryFallback(primary, fallback, cfg.LLMClient.PrimaryMaxAttempts, cfg.LLMClient.FallbackMaxAttempts)
	}

	gate := security.NewGate(cfg.RateLimit, 8192, hotRDB)

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewKBSearchTool(&tools.InMemoryKBBackend{})); err != nil {
		log.Fatal().Err(err).Msg("failed to register kb_search tool")
	}
	if pgPool != nil {
		ticketing := tools.NewTicketingTool(pgPool)
		if err := ticketing.Init(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to init ticketing store")
		}
		if err := registry.Register(ticketing); err != nil {
			log.Fatal().Err(err).Msg("failed to register ticketing tool")
		}
	} else {
		log.Warn().Msg("postgres dsn not set, ticketing tool disabled")
	}

	model := modelFor(cfg.LLMClient.Provider, cfg.LLMClient)
	mem := memory.NewManager(cfg.Memory, hotStore, warmStore, coldStore, provider, model)

	var publisher workflow.EventPublisher
	var kafkaWriter *kafka.Writer
	if cfg.Kafka.Brokers != "" {
		kafkaWriter = &kafka.Writer{
			Addr:     kafka.TCP(splitBrokers(cfg.Kafka.Brokers)...),
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
		publisher = kafkaWriter
	}
	idempo := workflow.NewRedisIdempotencyStore(hotRDB)
	engine := workflow.NewEngine(cfg.Workflow, warmStore, workflow.NewHandlerRegistry(), idempo, publisher)

	monLogger := monitoring.NewLogger("supportd", warmStore)
	metrics := monitoring.NewMetrics()
	alerts := monitoring.NewEvaluator(metrics, warmStore, monLogger)
	registerDefaultAlerts(alerts, cfg.Monitoring)
	if err := alerts.Start("@every 15s"); err != nil {
		log.Warn().Err(err).Msg("failed to start alert evaluator")
	}
	defer alerts.Stop()

	health := monitoring.NewHealthChecker(
		time.Duration(cfg.Monitoring.HealthyLatencyMS)*time.Millisecond,
		time.Duration(cfg.Monitoring.DegradedLatencyMS)*time.Millisecond,
	)
	health.Register("redis", func(ctx context.Context) error { return hotRDB.Ping(ctx).Err() })
	health.Register("cold_store", func(ctx context.Context) error {
		_, err := coldStore.List(ctx, objectstore.ListOptions{MaxKeys: 1})
		return err
	})
	health.Register("llm_provider", func(ctx context.Context) error {
		_, err := provider.Chat(ctx, []llm.Message{{Role: "user", Content: "ping"}}, nil, model)
		return err
	})

	pipe := pipeline.New(pipeline.Config{
		Gate:              gate,
		Provider:          provider,
		Registry:          registry,
		Memory:            mem,
		Metrics:           metrics,
		Logger:            monLogger,
		Model:             model,
		SystemInstruction: "You are a helpful customer support assistant.",
		MaxTokens:         cfg.LLMClient.MaxOutputTokens,
		Dedupe:            idempo,
		DedupeTTL:         10 * time.Minute,
	})

	wsServer := transport.NewServer(pipe, monLogger)
	restServer := httpapi.NewServer(httpapi.Deps{
		Memory:   mem,
		Handler:  pipe,
		Registry: registry,
		Engine:   engine,
		Health:   health,
		Metrics:  metrics,
		Alerts:   alerts,
		Logger:   monLogger,
		Memcfg:   cfg.Memory,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/", restServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("supportd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	} else {
		log.Info().Msg("supportd stopped")
	}
}

// newProvider builds an llm.Provider for name using the matching section of
// clientCfg. name is one of "anthropic", "openai", "google".
func newProvider(name string, clientCfg config.LLMClientConfig, httpClient *http.Client) (llm.Provider, error) {
	switch name {
	case "anthropic":
		return anthropic.New(clientCfg.Anthropic, httpClient), nil
	case "openai":
		return openai.New(clientCfg.OpenAI, httpClient), nil
	case "google":
		return google.New(clientCfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// modelFor returns the configured model name for the given provider key.
func modelFor(name string, clientCfg config.LLMClientConfig) string {
	switch name {
	case "openai":
		return clientCfg.OpenAI.Model
	case "google":
		return clientCfg.Google.Model
	default:
		return clientCfg.Anthropic.Model
	}
}

// newColdStore builds the production S3-backed ObjectStore. An empty bucket
// means no cold store is configured for this deployment.
func newColdStore(ctx context.Context, cfg config.S3Config, httpClient *http.Client) (objectstore.ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}
	return objectstore.NewS3Store(ctx, cfg, objectstore.WithHTTPClient(httpClient))
}

// registerDefaultAlerts wires the standard error-rate and latency alert
// rules against the thresholds in cfg.
func registerDefaultAlerts(ev *monitoring.Evaluator, cfg config.MonitoringConfig) {
	errorRate := cfg.AlertErrorRate
	if errorRate <= 0 {
		errorRate = 0.05
	}
	p95 := cfg.AlertP95MS
	if p95 <= 0 {
		p95 = 2000
	}
	ev.RegisterRule(monitoring.AlertRule{
		ID:          "high_error_rate",
		Name:        "Request error rate above threshold",
		Metric:      "requests_total",
		Aggregation: monitoring.AggAvg,
		Comparison:  monitoring.CompGT,
		Threshold:   errorRate,
		Window:      5 * time.Minute,
		Duration:    time.Minute,
		Severity:    monitoring.SeverityHigh,
		Enabled:     true,
	})
	ev.RegisterRule(monitoring.AlertRule{
		ID:          "high_p95_latency",
		Name:        "Request p95 latency above threshold",
		Metric:      "request_duration_seconds",
		Aggregation: monitoring.AggMax,
		Comparison:  monitoring.CompGT,
		Threshold:   float64(p95) / 1000,
		Window:      5 * time.Minute,
		Duration:    time.Minute,
		Severity:    monitoring.SeverityMedium,
		Enabled:     true,
	})
	ev.RegisterRule(monitoring.AlertRule{
		ID:          "llm_fallback_spike",
		Name:        "LLM fallback usage spike",
		Metric:      "llm_fallbacks_total",
		Aggregation: monitoring.AggSum,
		Comparison:  monitoring.CompGT,
		Threshold:   10,
		Window:      5 * time.Minute,
		Duration:    time.Minute,
		Severity:    monitoring.SeverityMedium,
		Enabled:     true,
	})
}

// splitBrokers parses a comma-separated broker list.
func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
