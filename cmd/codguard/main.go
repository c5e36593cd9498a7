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

	"github.com/codguard/codguard/api"
	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/baseline"
	"github.com/codguard/codguard/internal/config"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/drift"
	"github.com/codguard/codguard/internal/history"
	"github.com/codguard/codguard/internal/lifecycle"
	"github.com/codguard/codguard/internal/predict"
	"github.com/codguard/codguard/internal/registry"
	"github.com/codguard/codguard/internal/scheduler"
	"github.com/codguard/codguard/internal/training"
	"github.com/codguard/codguard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "codguard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zlog, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zlog.Sync()
	log := zlog.Sugar()

	reg, err := registry.NewStore(cfg.Storage.VersionsDir, training.DecodeModel,
		logger.Named(zlog, "registry"))
	if err != nil {
		return err
	}
	baselines, err := baseline.NewStore(cfg.Storage.BaselinesDir,
		logger.Named(zlog, "baselines"))
	if err != nil {
		return err
	}
	snapshots, err := dataset.NewSnapshots(cfg.Storage.SnapshotsDir,
		logger.Named(zlog, "snapshots"))
	if err != nil {
		return err
	}
	hist, err := history.Open(cfg.Storage.HistoryDBPath, logger.Named(zlog, "history"))
	if err != nil {
		return err
	}

	detector := drift.NewDetector(baselines, logger.Named(zlog, "drift"))
	detector.KSThreshold = cfg.Drift.KSThreshold
	detector.MeanShiftThreshold = cfg.Drift.MeanShiftThreshold
	detector.MinSamples = cfg.Drift.MinSamples
	detector.PrecisionFloor = cfg.Drift.PrecisionFloor
	detector.RecallFloor = cfg.Drift.RecallFloor

	sched := scheduler.New(cfg.Storage.SchedulerStatePath, logger.Named(zlog, "scheduler"))
	sched.RetrainIntervalDays = cfg.Scheduler.RetrainIntervalDays
	sched.MinNewOrders = cfg.Scheduler.MinNewOrders

	trainer := training.NewLogisticTrainer()
	trainer.Epochs = cfg.Training.Epochs
	trainer.LearningRate = cfg.Training.LearningRate

	orchestrator := lifecycle.NewOrchestrator(
		reg, detector, sched, trainer,
		dataset.NewValidator(logger.Named(zlog, "validator")),
		baselines, snapshots, hist, hist,
		lifecycle.Options{
			PrimaryMetric:   cfg.Training.PrimaryMetric,
			TestSize:        cfg.Training.TestSize,
			MinSamples:      cfg.Training.MinSamples,
			TrainingTimeout: cfg.Training.Timeout,
		},
		logger.Named(zlog, "lifecycle"),
	)

	engine := predict.NewEngine(logger.Named(zlog, "predict"))

	// Load the newest stored artifact into serving; a fresh deployment
	// has none and serves 404s until the first training run.
	if artifact, err := reg.Load(""); err != nil {
		if !cerr.IsNotFound(err) {
			return err
		}
		log.Warnw("no model artifacts found, predictions disabled until first training")
	} else {
		reg.SetActive(artifact)
		log.Infow("model loaded", "version", artifact.Version,
			"features", len(artifact.FeatureNames))
	}

	server := api.NewServer(zlog, engine, reg, orchestrator, snapshots, hist,
		cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
