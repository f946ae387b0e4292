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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpadapter "github.com/compound-floodrisk/sfincs-batch/internal/adapter/http"
	kafkaadapter "github.com/compound-floodrisk/sfincs-batch/internal/adapter/kafka"
	"github.com/compound-floodrisk/sfincs-batch/internal/config"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/pipeline"
	"github.com/compound-floodrisk/sfincs-batch/internal/postprocess"
	"github.com/compound-floodrisk/sfincs-batch/internal/sfincs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scenario of the scenario table that has not run yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireScenarioTable(); err != nil {
			return err
		}
		return runBatch(cmd.Context(), cfg)
	},
}

func newProcessor(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *postprocess.Processor {
	loader := sfincs.NewCachedIndexLoader(sfincs.FileIndexLoader, cfg.IndexCacheSize).OnLookup(func(hit bool) {
		if hit {
			metrics.IndexCache.WithLabelValues("hit").Inc()
		} else {
			metrics.IndexCache.WithLabelValues("miss").Inc()
		}
	})
	return postprocess.New(loader, logger, metrics, postprocess.Options{
		MinFloodDepth: cfg.MinFloodDepth,
		MaxPlotDepth:  cfg.MaxPlotDepth,
	})
}

func newExecutor(cfg *config.Config, post pipeline.Postprocessor, logger *slog.Logger, metrics *observability.Metrics) pipeline.Executor {
	if cfg.Executor == config.ExecutorContainer {
		return &pipeline.ContainerExecutor{
			Runtime:  cfg.ContainerRuntime,
			Image:    cfg.Image,
			GPU:      cfg.GPU,
			StageDir: cfg.StageDir,
			Shared:   cfg.StageShared,
			Post:     post,
			Output:   os.Stdout,
			Logger:   logger,
			Metrics:  metrics,
		}
	}
	return &pipeline.LocalExecutor{Executable: cfg.Executable, Post: post, Logger: logger}
}

func runBatch(parent context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var publisher pipeline.StatusPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kp
		logger.Info("publishing run status", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	post := newProcessor(cfg, logger, metrics)
	p := pipeline.New(
		pipeline.CSVSource{Path: cfg.ScenarioTable},
		newExecutor(cfg, post, logger, metrics),
		publisher,
		logger,
		metrics,
		pipeline.Options{ModelDir: cfg.ModelDir, Suffixes: cfg.Suffixes, RerunFailed: cfg.RerunFailed},
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, p, prometheus.DefaultGatherer, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	sum, runErr := p.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			logger.Error("write metrics textfile failed", "path", cfg.MetricsTextfile, "error", err)
		}
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d scenario runs failed", sum.Failed, sum.Total)
	}
	return nil
}
