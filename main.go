package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/neuroevo/config"
	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/sim"
	"github.com/pthm-cable/neuroevo/storage"
	"github.com/pthm-cable/neuroevo/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, -1 = time-based)")
	generations := flag.Int("generations", -1, "Generations to run (-1 = use config, 0 = until interrupted)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and best model")
	logStats := flag.Bool("log-stats", false, "Output per-generation stats via slog")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	resume := flag.String("resume", "", "Run ID to resume from the configured store")
	verbose := flag.Bool("v", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *logStats {
		cfg.Telemetry.LogStats = true
	}
	if *metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = *metricsAddr
	}
	if *generations >= 0 {
		cfg.Simulation.Generations = *generations
	}

	rngSeed := cfg.Seed
	switch {
	case *seed == -1:
		rngSeed = time.Now().UnixNano()
	case *seed != 0:
		rngSeed = *seed
	}
	cfg.Seed = rngSeed

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resume); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, resumeID string) error {
	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer storage.CloseIfSupported(store)
	}

	var (
		runID string
		pop   *evolution.Population
	)
	if resumeID != "" {
		if store == nil {
			return errors.New("resume needs a storage backend")
		}
		snap, ok, err := store.LatestPopulation(ctx, resumeID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no population snapshot for run " + resumeID)
		}
		if pop, err = snap.Restore(); err != nil {
			return err
		}
		runID = resumeID
		slog.Info("resuming run", "run_id", runID, "generation", snap.Generation)
	} else {
		record := storage.NewRunRecord(cfg.Seed, cfg.Derived.Topology, cfg.Population.Size)
		runID = record.ID
		if store != nil {
			if err := store.SaveRun(ctx, record); err != nil {
				return err
			}
		}
	}

	output, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		return err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsAddr != "" {
		metrics = telemetry.NewMetrics()
		srv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: metricsMux(metrics)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
	}

	s, err := sim.New(sim.Options{
		Config:     cfg,
		Seed:       cfg.Seed,
		Population: pop,
		RunID:      runID,
		Store:      store,
		Output:     output,
		Metrics:    metrics,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	slog.Info("starting run",
		"run_id", runID,
		"seed", cfg.Seed,
		"topology", cfg.Derived.Topology.String(),
		"population", s.Population().Size(),
		"generations", cfg.Simulation.Generations,
		"output_dir", output.Dir(),
	)

	if err := s.Run(ctx, cfg.Simulation.Generations); err != nil {
		return err
	}
	if best, ok := s.HallOfFame().Best(); ok {
		slog.Info("run finished", "best_fitness", best.Fitness, "best_genome", best.GenomeID, "ticks", s.Ticks())
	}
	return nil
}

func metricsMux(m *telemetry.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
