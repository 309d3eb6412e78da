// Command api runs the ET map HTTP front-end: it accepts requests for
// an area of interest and date range, orchestrates the raw-data fetch
// pipeline, and serves job status and result artifacts.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/etmap/rawdata/internal/artifacts"
	"github.com/etmap/rawdata/internal/cache"
	"github.com/etmap/rawdata/internal/config"
	"github.com/etmap/rawdata/internal/fetch"
	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/handlers"
	"github.com/etmap/rawdata/internal/httpclient"
	"github.com/etmap/rawdata/internal/jobmanager"
	"github.com/etmap/rawdata/internal/middleware"
	"github.com/etmap/rawdata/internal/orchestrator"
	"github.com/etmap/rawdata/internal/store"
	"github.com/etmap/rawdata/internal/store/memory"
	"github.com/etmap/rawdata/internal/store/postgres"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	jobStore, closeStore := mustJobStore(ctx, cfg, logger)
	defer closeStore()

	var resultCache *cache.Cache
	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL)
		if err != nil {
			logger.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			resultCache = c
			defer resultCache.Close()
		}
	}

	artifactStore, err := artifacts.New(ctx, cfg.S3Bucket, "", cfg.AWSRegion)
	if err != nil {
		logger.Warn("artifact mirroring unavailable, continuing without it", "error", err)
		artifactStore = nil
	}

	boundsReader := geo.NewGDALBoundsReader()
	coverage := geo.NewCoverageChecker(cfg.DataDir, boundsReader)

	httpClient := httpclient.NewOutbound(cfg.DownloadTimeout)
	layout := geo.Layout{DataDir: cfg.DataDir}

	fetchers := fetch.NewManager(logger)
	fetchers.Register("landsat", &fetch.LandsatFetcher{
		HTTPClient:  httpClient,
		CatalogURL:  cfg.LandsatCatalogURL,
		Collection:  cfg.LandsatCollection,
		WindowDays:  cfg.LandsatWindowDays,
		MaxScenes:   50,
		Layout:      layout,
		Log:         logger,
		Concurrency: cfg.FetchConcurrency,
	})
	fetchers.Register("prism", &fetch.PRISMFetcher{
		HTTPClient:  httpClient,
		BaseURL:     cfg.PrismBaseURL,
		Layout:      layout,
		Log:         logger,
		Concurrency: cfg.FetchConcurrency,
	})
	fetchers.Register("nldas", &fetch.NLDASFetcher{
		HTTPClient:  httpClient,
		BaseURL:     cfg.NLDASBaseURL,
		NetrcPath:   cfg.NetrcPath,
		MaxRetries:  cfg.MaxRetries,
		Layout:      layout,
		Log:         logger,
		Concurrency: cfg.FetchConcurrency,
	})

	jobs := jobmanager.New(jobStore)

	orch := &orchestrator.Orchestrator{
		Jobs:            jobs,
		Coverage:        coverage,
		Fetchers:        fetchers,
		Cache:           resultCache,
		AutoCalculation: cfg.AutoCalculationEnabled,
		CalcBinaryPath:  cfg.CalcBinaryPath,
		DBDSN:           cfg.DBDSN,
		Log:             logger,
	}

	h := handlers.New(jobs, orch, resultCache, artifactStore, cfg.ResultsDir, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.LogFailedRequestBodies)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Routes(r)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server exited")
}

// mustJobStore connects to Postgres when a DSN is configured, falling
// back to the in-memory store for local/offline runs. The returned
// close function is always safe to call.
func mustJobStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.JobStore, func()) {
	if cfg.DBDSN == "" {
		log.Warn("ETMAP_DB_DSN not set, using in-memory job store (not durable)")
		return memory.New(), func() {}
	}

	pg, err := postgres.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Error("failed to connect to postgres, falling back to in-memory store", "error", err)
		return memory.New(), func() {}
	}
	if err := pg.Migrate(ctx); err != nil {
		log.Error("failed to migrate postgres schema, falling back to in-memory store", "error", err)
		pg.Close()
		return memory.New(), func() {}
	}
	return pg, pg.Close
}
