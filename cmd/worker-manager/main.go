// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediguard-agents/internal/agents"
	"mediguard-agents/internal/common/camunda"
	"mediguard-agents/internal/common/config"
	"mediguard-agents/internal/common/database"
	"mediguard-agents/internal/common/files"
	"mediguard-agents/internal/common/llamaparse"
	"mediguard-agents/internal/common/llm"
	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/observability"
	"mediguard-agents/internal/common/session"

	"mediguard-agents/internal/workers/mediguard/decision"
	filechat "mediguard-agents/internal/workers/mediguard/file-chat"
	medicaleval "mediguard-agents/internal/workers/mediguard/medical-evaluation"
	getweather "mediguard-agents/internal/workers/weather/get-weather"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics unavailable", zap.Error(err))
		obs = observability.NewNoop()
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.UsePlaintextConnection,
		})
		return err
	}, cfg.Camunda.ConnectRetries, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))

	messenger := camunda.NewZeebeMessenger(zeebe, config.GetDuration(cfg.Camunda.MessageTTL), obs, log)

	var closers []func() error
	handlers := make(map[string]camunda.JobHandler)

	var llmClient *llm.Client
	if config.IsAgentEnabled(cfg, config.AgentFileChat) || config.IsAgentEnabled(cfg, config.AgentEvaluation) {
		llmClient = llm.NewClient(cfg.OpenAI, log)
	}

	// --- Weather ---
	if config.IsAgentEnabled(cfg, getweather.TaskType) {
		handlers[getweather.TaskType] = getweather.NewHandler(getweather.NewConfig(cfg), log)
	}

	// --- File chat ---
	if config.IsAgentEnabled(cfg, filechat.TaskType) {
		store, closeStore, err := newSessionStore(ctx, cfg, zapLog)
		if err != nil {
			zapLog.Fatal("session store init failed", zap.Error(err))
		}
		if closeStore != nil {
			closers = append(closers, closeStore)
		}

		var cloud filechat.CloudParser
		if cfg.LlamaParse.Enabled() {
			cloud = llamaparse.NewClient(cfg.LlamaParse)
		} else {
			zapLog.Info("LlamaParse not configured, documents use text extraction")
		}

		fcCfg := filechat.NewConfig(cfg)
		workflow := filechat.NewWorkflow(fcCfg, filechat.NewDocumentParser(cloud, log), llmClient, llmClient, store, log)
		handlers[filechat.TaskType] = filechat.NewHandler(fcCfg, files.NewClient(cfg.Files), workflow, messenger, log)
	}

	// --- Medical evaluation ---
	if config.IsAgentEnabled(cfg, medicaleval.TaskType) {
		handlers[medicaleval.TaskType] = medicaleval.NewHandler(medicaleval.NewConfig(cfg), llmClient, messenger, log)
	}

	// --- Decision ---
	if config.IsAgentEnabled(cfg, decision.TaskType) {
		var audit decision.AuditStore
		if cfg.Database.Postgres.Enabled() {
			var pg *database.PostgresClient
			err := retryWithBackoff(func() error {
				var err error
				pg, err = database.NewPostgres(ctx, cfg.Database.Postgres)
				return err
			}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
			if err != nil {
				zapLog.Fatal("postgres failed after retries", zap.Error(err))
			}
			closers = append(closers, pg.Close)

			store := decision.NewPostgresAuditStore(pg.DB)
			if err := store.EnsureSchema(ctx); err != nil {
				zapLog.Fatal("decision audit schema failed", zap.Error(err))
			}
			audit = store
			zapLog.Info("Decision audit enabled")
		}
		handlers[decision.TaskType] = decision.NewHandler(decision.NewConfig(cfg), audit, log)
	}

	// --- Start workers ---
	var workers []worker.JobWorker
	for _, taskType := range config.KnownAgents {
		handler, ok := handlers[taskType]
		if !ok {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			continue
		}
		ac := config.GetAgentConfig(cfg, taskType)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), camunda.Registration{
			TaskType:      taskType,
			MaxJobsActive: ac.MaxJobsActive,
			Timeout:       ac.TimeoutDuration(),
		}, handler, obs, log))

		zapLog.Info("worker started",
			zap.String("taskType", taskType),
			zap.Int("maxJobsActive", ac.MaxJobsActive),
			zap.Int("timeout_ms", ac.Timeout),
		)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           newMux(cfg, zeebe),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	for _, w := range workers {
		w.AwaitClose()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	for _, c := range closers {
		if err := c(); err != nil {
			zapLog.Error("Error closing resource", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping metrics provider", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// newSessionStore builds the configured file chat session store. The returned
// closer is nil when nothing needs closing.
func newSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, func() error, error) {
	ttl := config.GetDuration(cfg.SessionStore.TTL)

	switch cfg.SessionStore.Backend {
	case "redis":
		var rc *database.RedisClient
		err := retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 5, 2*time.Second, log, "Redis connection")
		if err != nil {
			return nil, nil, err
		}
		log.Info("Session store: redis", zap.String("address", cfg.Database.Redis.Address), zap.Duration("ttl", ttl))
		return session.NewRedisStore(rc.Client, cfg.SessionStore.KeyPrefix, ttl), rc.Close, nil
	default:
		log.Info("Session store: memory", zap.Int("maxSessions", cfg.SessionStore.MaxSessions), zap.Duration("ttl", ttl))
		return session.NewLRUStore(cfg.SessionStore.MaxSessions, ttl), nil, nil
	}
}

func newMux(cfg *config.Config, zeebe *camunda.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := zeebe.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, agents.Catalog(cfg, time.Now()))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
