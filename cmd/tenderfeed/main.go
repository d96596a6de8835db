// Package main wires together the tenderfeed service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tkearney/tenderfeed/internal/adapter/contractsfinder"
	"github.com/tkearney/tenderfeed/internal/adapter/findatender"
	"github.com/tkearney/tenderfeed/internal/api"
	"github.com/tkearney/tenderfeed/internal/classify"
	"github.com/tkearney/tenderfeed/internal/clock/system"
	"github.com/tkearney/tenderfeed/internal/config"
	collyfetcher "github.com/tkearney/tenderfeed/internal/fetcher/colly"
	"github.com/tkearney/tenderfeed/internal/hash/sha256"
	"github.com/tkearney/tenderfeed/internal/id/uuid"
	"github.com/tkearney/tenderfeed/internal/logging"
	"github.com/tkearney/tenderfeed/internal/merge"
	"github.com/tkearney/tenderfeed/internal/metrics"
	"github.com/tkearney/tenderfeed/internal/normalize"
	"github.com/tkearney/tenderfeed/internal/orchestrator"
	"github.com/tkearney/tenderfeed/internal/progress"
	"github.com/tkearney/tenderfeed/internal/progress/sinks"
	memorypublisher "github.com/tkearney/tenderfeed/internal/publisher/memory"
	pubsubpublisher "github.com/tkearney/tenderfeed/internal/publisher/pubsub"
	gcsStorage "github.com/tkearney/tenderfeed/internal/storage/gcs"
	memoryStorage "github.com/tkearney/tenderfeed/internal/storage/memory"
	pgStorage "github.com/tkearney/tenderfeed/internal/storage/postgres"
	"github.com/tkearney/tenderfeed/internal/tender"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, cleanupStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}
	defer cleanupStore()

	publisher, cleanupPublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer cleanupPublisher()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.HTTPTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	})

	var sources []orchestrator.Source
	if cfg.Sources.ContractsFinder.Enabled {
		sources = append(sources, orchestrator.Source{
			Adapter: contractsfinder.New(fetcher, contractsfinder.Config{
				BaseURL:  cfg.Sources.ContractsFinder.BaseURL,
				PageSize: cfg.Sources.ContractsFinder.PageSize,
			}),
			Profile:  contractsfinder.Source,
			MaxPages: cfg.Sources.ContractsFinder.MaxPages,
		})
	}
	if cfg.Sources.FindATender.Enabled {
		sources = append(sources, orchestrator.Source{
			Adapter: findatender.New(fetcher, findatender.Config{
				BaseURL:  cfg.Sources.FindATender.BaseURL,
				PageSize: cfg.Sources.FindATender.PageSize,
			}),
			Profile:  findatender.Source,
			MaxPages: cfg.Sources.FindATender.MaxPages,
		})
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("progress sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(
		progress.Config{BaseContext: ctx, Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	orch := orchestrator.New(
		sources,
		store,
		normalize.New(sha256.New()),
		classify.NewDefault(),
		merge.New(merge.Config{MinValue: cfg.Refresh.MinValueGBP}),
		publisher,
		system.New(),
		hub,
		orchestrator.Config{Budget: cfg.CycleBudget()},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(store, orch, uuid.New(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if interval := cfg.RefreshInterval(); interval > 0 {
		go func() {
			logger.Info("refresh scheduler started", zap.Duration("interval", interval))
			orch.RunSchedule(ctx, interval)
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildStore(ctx context.Context, cfg config.Config) (tender.SnapshotStore, func(), error) {
	switch cfg.Storage.Provider {
	case "memory":
		return memoryStorage.NewSnapshotStore(), func() {}, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcsStorage.New(client, gcsStorage.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				zap.L().Warn("gcs client close failed", zap.Error(err))
			}
		}
		return store, cleanup, nil
	case "postgres":
		store, err := pgStorage.New(ctx, pgStorage.Config{
			DSN:   cfg.Storage.PostgresDSN,
			Table: cfg.Storage.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (tender.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New(), func() {}, nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub publisher: %w", err)
	}
	cleanup := func() {
		if err := pub.Close(); err != nil {
			zap.L().Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	return pub, cleanup, nil
}
