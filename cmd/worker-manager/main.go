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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"listing-workers/internal/common/camunda"
	"listing-workers/internal/common/config"
	"listing-workers/internal/common/database"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/observability"
	"listing-workers/internal/schools"
	"listing-workers/internal/search/executor"

	"listing-workers/pkg/registry"

	clf "listing-workers/internal/workers/search/compile-listing-filters"
	ql "listing-workers/internal/workers/search/query-listings"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

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
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()

	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClient(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	schoolService := schools.NewService(
		&schools.Config{CacheTTL: cfg.Search.SchoolCacheTTL},
		pg.DB, redis.Client, log,
	)
	listingExecutor := executor.New(
		&executor.Config{MaxOverfetchMultiplier: cfg.Search.MaxOverfetchMultiplier},
		pg.DB, schoolService, log,
	)

	var workers []*camunda.CamundaWorker

	if config.IsWorkerEnabled(cfg, clf.TaskType) {
		handler := clf.NewHandler(clf.LoadConfig(cfg), obs, log)
		workers = append(workers, startWorker(zeebe, clf.TaskType, cfg, handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", clf.TaskType))
	}

	if config.IsWorkerEnabled(cfg, ql.TaskType) {
		handler := ql.NewHandler(ql.LoadConfig(cfg), listingExecutor, obs, log)
		workers = append(workers, startWorker(zeebe, ql.TaskType, cfg, handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", ql.TaskType))
	}

	zapLog.Info("workers registered", zap.Int("count", len(workers)))
	checkRegistry(cfg, workers, zapLog)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "redis": "ok", "zeebe": "ok"}
		code := http.StatusOK
		if err := pg.Ping(checkCtx); err != nil {
			checks["postgres"], code = err.Error(), http.StatusServiceUnavailable
		}
		if err := redis.Ping(checkCtx); err != nil {
			checks["redis"], code = err.Error(), http.StatusServiceUnavailable
		}
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			checks["zeebe"], code = err.Error(), http.StatusServiceUnavailable
		}

		status := "ready"
		if code != http.StatusOK {
			status = "not ready"
		}
		writeStatus(w, code, status, checks)
	})
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client *camunda.Client, taskType string, cfg *config.Config, handler camunda.JobHandler, log logger.Logger) *camunda.CamundaWorker {
	wcfg := config.GetWorkerConfig(cfg, taskType)
	return camunda.NewWorker(client.GetClient(), taskType, camunda.WorkerOptions{
		MaxJobsActive: wcfg.MaxJobsActive,
		Timeout:       config.GetDuration(wcfg.Timeout),
	}, handler, log)
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if checks != nil {
		body["checks"] = checks
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// checkRegistry warns about running workers the activity registry does not
// document. A missing or invalid registry is not fatal.
func checkRegistry(cfg *config.Config, workers []*camunda.CamundaWorker, log *zap.Logger) {
	reg, err := registry.LoadRegistry(cfg.App.RegistryPath)
	if err != nil {
		log.Warn("activity registry unavailable", zap.String("path", cfg.App.RegistryPath), zap.Error(err))
		return
	}
	if err := reg.Validate(); err != nil {
		log.Warn("activity registry invalid", zap.Error(err))
		return
	}
	for _, w := range workers {
		a, ok := reg.Find(w.TaskType())
		if !ok {
			log.Warn("worker missing from activity registry", zap.String("taskType", w.TaskType()))
			continue
		}
		log.Info("activity registered",
			zap.String("taskType", a.TaskType),
			zap.String("version", a.Version),
			zap.Strings("errorCodes", a.ErrorCodes),
		)
	}
}
