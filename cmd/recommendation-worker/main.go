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

	"welfare-recommender/internal/catalog"
	"welfare-recommender/internal/common/aws"
	"welfare-recommender/internal/common/camunda"
	"welfare-recommender/internal/common/config"
	"welfare-recommender/internal/common/database"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/observability"
	"welfare-recommender/internal/engine"
	"welfare-recommender/internal/engine/cache"
	"welfare-recommender/internal/notify"
	"welfare-recommender/internal/profile"

	er "welfare-recommender/internal/workers/recommendation/explain-recommendation"
	gr "welfare-recommender/internal/workers/recommendation/get-recommendations"
	ir "welfare-recommender/internal/workers/recommendation/invalidate-recommendations"
	rr "welfare-recommender/internal/workers/recommendation/refresh-recommendations"
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

// readinessCheck is one dependency probed by /ready.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.Build(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting recommendation worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability disabled", zap.Error(err))
		obs = observability.NewNoop()
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			zapLog.Warn("meter provider shutdown failed", zap.Error(err))
		}
	}()

	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ConfigFromApp(cfg.Camunda))
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	checks := []readinessCheck{{name: "zeebe", check: zeebe.HealthCheck}}

	var pg *database.PostgresClient
	if cfg.Profile.Source == config.SourcePostgres || cfg.Catalog.Source == config.SourcePostgres {
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
		checks = append(checks, readinessCheck{name: "postgres", check: pg.Ping})
		zapLog.Info("PostgreSQL connected successfully")
	}

	var rdb *database.RedisClient
	if cfg.Engine.CacheBackend == config.BackendRedis || cfg.Catalog.CacheTTL > 0 {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		checks = append(checks, readinessCheck{name: "redis", check: rdb.Ping})
		zapLog.Info("Redis connected successfully")
	}

	var es *database.ElasticsearchClient
	if cfg.Catalog.Source == config.SourceElasticsearch {
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		checks = append(checks, readinessCheck{name: "elasticsearch", check: es.Ping})
		zapLog.Info("Elasticsearch connected successfully")
	}

	profiles := newProfileProvider(cfg, pg, log)
	schemes := newSchemeProvider(cfg, pg, es, rdb, log)

	settings := engine.SettingsFromConfig(cfg)
	cacheManager := cache.NewManager(newCacheStore(ctx, cfg, rdb, settings.CacheTTL, zapLog), settings.CacheTTL, time.Now, log)

	deps := engine.Dependencies{
		Profiles: profiles,
		Schemes:  schemes,
		Cache:    cacheManager,
		Logger:   log,
		Now:      time.Now,
	}
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		deps.Publisher = notify.NewSNSPublisher(snsClient, cfg.Notifications.SNS.TopicARN, log)
		zapLog.Info("SNS publisher enabled", zap.String("topicArn", cfg.Notifications.SNS.TopicARN))
	}

	eng, err := engine.New(deps, settings)
	if err != nil {
		zapLog.Fatal("engine init failed", zap.Error(err))
	}

	workers := startWorkers(cfg, zeebe, eng, obs, log, zapLog)
	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	server := newHealthServer(cfg.Server.Address, checks)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(20 * time.Second)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Recommendation worker stopped gracefully")
}

func newProfileProvider(cfg *config.Config, pg *database.PostgresClient, log logger.Logger) engine.ProfileProvider {
	if cfg.Profile.Source == config.SourceHTTP {
		return profile.NewHTTPClient(
			cfg.Profile.BaseURL,
			config.GetDuration(cfg.Profile.Timeout),
			profile.BreakerSettings{
				MaxFailures: cfg.Profile.Breaker.MaxFailures,
				OpenTimeout: config.GetDuration(cfg.Profile.Breaker.OpenTimeout),
			},
			log,
		)
	}
	return profile.NewPostgresStore(pg.DB, log)
}

func newSchemeProvider(cfg *config.Config, pg *database.PostgresClient, es *database.ElasticsearchClient, rdb *database.RedisClient, log logger.Logger) engine.SchemeProvider {
	var source catalog.Source
	if cfg.Catalog.Source == config.SourceElasticsearch {
		source = catalog.NewElasticsearchCatalog(es.Client, cfg.Catalog.Index, log, time.Now)
	} else {
		source = catalog.NewPostgresCatalog(pg.DB, log, time.Now)
	}

	if cfg.Catalog.CacheTTL > 0 {
		return catalog.NewCachedCatalog(source, rdb.Client, config.GetDuration(cfg.Catalog.CacheTTL), log)
	}
	return source
}

func newCacheStore(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, ttl time.Duration, log *zap.Logger) cache.Store {
	if cfg.Engine.CacheBackend == config.BackendRedis {
		return cache.NewRedisStore(rdb.Client)
	}

	store := cache.NewMemoryStore(time.Now)
	interval := ttl / 4
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.Purge(); n > 0 {
					log.Debug("purged expired cache entries", zap.Int("count", n))
				}
			}
		}
	}()
	log.Warn("using in-process recommendation cache; entries are not shared between replicas")
	return store
}

func startWorkers(cfg *config.Config, zeebe *camunda.Client, eng *engine.Engine, obs *observability.Observability, log logger.Logger, zapLog *zap.Logger) []*camunda.Worker {
	var workers []*camunda.Worker
	add := func(taskType string, handler camunda.HandlerFunc) {
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, zapLog); w != nil {
			workers = append(workers, w)
		}
	}

	getHandler, err := gr.NewHandler(gr.HandlerOptions{
		Config:   gr.LoadConfig(config.GetWorkerConfig(cfg, gr.TaskType)),
		Engine:   eng,
		Observer: obs,
		Logger:   log,
	})
	if err != nil {
		zapLog.Fatal("failed to create get-recommendations handler", zap.Error(err))
	}
	add(gr.TaskType, getHandler.Handle)

	explainHandler, err := er.NewHandler(er.HandlerOptions{
		Config:   er.LoadConfig(config.GetWorkerConfig(cfg, er.TaskType)),
		Engine:   eng,
		Observer: obs,
		Logger:   log,
	})
	if err != nil {
		zapLog.Fatal("failed to create explain-recommendation handler", zap.Error(err))
	}
	add(er.TaskType, explainHandler.Handle)

	refreshHandler, err := rr.NewHandler(rr.HandlerOptions{
		Config:   rr.LoadConfig(config.GetWorkerConfig(cfg, rr.TaskType)),
		Engine:   eng,
		Observer: obs,
		Logger:   log,
	})
	if err != nil {
		zapLog.Fatal("failed to create refresh-recommendations handler", zap.Error(err))
	}
	add(rr.TaskType, refreshHandler.Handle)

	invalidateHandler, err := ir.NewHandler(ir.HandlerOptions{
		Config:   ir.LoadConfig(config.GetWorkerConfig(cfg, ir.TaskType)),
		Engine:   eng,
		Observer: obs,
		Logger:   log,
	})
	if err != nil {
		zapLog.Fatal("failed to create invalidate-recommendations handler", zap.Error(err))
	}
	add(ir.TaskType, invalidateHandler.Handle)

	return workers
}

func newHealthServer(address string, checks []readinessCheck) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[c.name] = err.Error()
				continue
			}
			deps[c.name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		writeJSON(w, status, map[string]interface{}{
			"status":       state,
			"dependencies": deps,
			"time":         time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
