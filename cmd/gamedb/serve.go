package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	apihttp "gamedb/internal/http"
	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/config"
	"gamedb/pkg/db"
	"gamedb/pkg/metrics"
	"gamedb/pkg/replication"
	"gamedb/pkg/types"
	"gamedb/pkg/wal"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, replication worker and reconciler",
		Example: `  gamedb serve --config ./config.yaml
  gamedb serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	return cmd
}

func serve(ctx context.Context, configPath string) (err error) {
	cfg, err := initConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := initLogger(&cfg)

	topo, err := cfg.Topology()
	if err != nil {
		return err
	}

	backends, err := openBackends(cfg.Nodes)
	if err != nil {
		return err
	}
	defer func() {
		for id, b := range backends {
			if cerr := b.Close(); cerr != nil {
				logger.Warn("failed to close backend", "node", id, "error", cerr)
			}
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	router := cluster.NewPartitioner(topo, cfg.Partition.ThresholdYear)
	registry := cluster.NewRegistry(topo)

	queueCfg := replication.QueueConfig{
		WarnDepth: cfg.Reconciler.WarnDepth,
		Logger:    logger.With("component", "queue"),
		Metrics:   m,
	}
	if path := cfg.Reconciler.JournalPath; path != "" {
		journal, jerr := wal.Open(path)
		if jerr != nil {
			return fmt.Errorf("open retry journal: %w", jerr)
		}
		defer func() {
			err = errors.Join(err, journal.Close())
		}()
		queueCfg.Journal = journal
	}
	queue, err := replication.RestoreQueue(queueCfg)
	if err != nil {
		return err
	}

	disp := replication.NewDispatcher(registry, backends, cfg.Reconciler.AttemptTimeout)
	engine := replication.NewEngine(replication.Config{
		Topology:    topo,
		Partitioner: router,
		Dispatcher:  disp,
		Queue:       queue,
		Logger:      logger.With("component", "replication"),
		Metrics:     m,
	})

	// the worker outlives the signal so that changes accepted during
	// shutdown are still handed to the engine
	async := replication.NewAsync(engine, cfg.Replication.Buffer)
	async.Start(context.WithoutCancel(ctx))

	reconciler := replication.NewReconciler(queue, disp, cfg.Reconciler.Interval, logger.With("component", "reconciler"), m)
	reconciler.Start(ctx)

	records := db.New(db.Config{
		Topology:    topo,
		Partitioner: router,
		Registry:    registry,
		Backends:    backends,
		Propagator:  async,
		Options:     db.Options{CheckMirrorUniqueness: cfg.DB.CheckMirrorUniqueness},
		Logger:      logger.With("component", "db"),
	})

	server := apihttp.NewServer(apihttp.Deps{
		Topology:   topo,
		Records:    records,
		Registry:   registry,
		Queue:      queue,
		Reconciler: reconciler,
		Backends:   backends,
		Gatherer:   prometheus.DefaultGatherer,
	}, apihttp.Options{
		Port:              strconv.Itoa(cfg.Server.Port),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	})
	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("gamedb started",
		"port", cfg.Server.Port,
		"threshold_year", router.Threshold(),
		"mirror", topo.Mirror.ID,
		"lower", topo.Lower.ID,
		"upper", topo.Upper.ID,
		"pending", queue.Len(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("error stopping server", "error", err)
	}
	async.Stop()
	reconciler.Wait()

	logger.Info("gamedb stopped", "pending", queue.Len())
	return nil
}

func openBackends(nodes []config.NodeConfig) (map[types.NodeID]backend.Backend, error) {
	out := make(map[types.NodeID]backend.Backend, len(nodes))
	for _, n := range nodes {
		id := types.NodeID(n.ID)
		b, err := backend.Open(id, n.BackendOptions())
		if err != nil {
			for _, opened := range out {
				_ = opened.Close()
			}
			return nil, err
		}
		slog.Info("backend opened", "node", id, "driver", n.Driver)
		out[id] = b
	}
	return out, nil
}
