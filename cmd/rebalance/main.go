// Command rebalance loads a labeled table, rebalances and selects features as
// configured, and writes the result back to the database.
//
// Usage:
//
//	rebalance --config config.yaml [--seed 7] [--output-table prepared]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/TrevorS/rebalance"
	"github.com/TrevorS/rebalance/config"
	"github.com/TrevorS/rebalance/evaluate"
	"github.com/TrevorS/rebalance/internal/logger"
	"github.com/TrevorS/rebalance/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rebalance:", err)
		if errors.Is(err, rebalance.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("rebalance", pflag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the configuration file")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	raw, err := (&store.Loader{DB: db, Logger: log.Named("loader")}).Load(ctx, store.Query{
		Table:  cfg.Database.TableName,
		Fields: cfg.EnabledFields(),
		Target: cfg.TargetField,
		Where:  cfg.Database.WhereClause,
		Kind:   rebalance.ModelKind(cfg.ModelType),
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	processor := rebalance.NewProcessor(
		rebalance.WithLogger(log),
		rebalance.WithMetrics(rebalance.NewMetrics(reg)),
		rebalance.WithEvaluator(evaluate.NewHoldout(cfg.Seed)),
		rebalance.WithSink(&store.Sink{DB: db, Logger: log.Named("sink"), BatchSize: cfg.Database.BatchSize}),
		rebalance.WithSeed(cfg.Seed),
	)
	out, err := processor.Process(ctx, raw, cfg.EnabledFields(), cfg.Pipeline())
	if err != nil {
		return err
	}

	printSummary(stdout, out)

	if cfg.Metrics.PushgatewayURL != "" {
		err := push.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job).
			Gatherer(reg).
			Grouping("run_id", out.RunID).
			PushContext(ctx)
		if err != nil {
			log.Warn("pushing metrics failed", zap.String("url", cfg.Metrics.PushgatewayURL), zap.Error(err))
		}
	}

	if out.PersistenceError != nil {
		return fmt.Errorf("processed data was not saved: %w", out.PersistenceError)
	}
	return nil
}

func printSummary(w io.Writer, out *rebalance.ProcessedDataset) {
	fmt.Fprintf(w, "Run %s\n", out.RunID)
	order := "feature selection, then balancing"
	if out.BalancingFirst {
		order = "balancing, then feature selection"
	}
	fmt.Fprintf(w, "Order: %s\n", order)
	fmt.Fprintf(w, "Balancing: %s (order %d)\n", out.BalancingMethod, out.BalancingExecutionOrder)
	fmt.Fprintf(w, "Selection: %s (order %d)\n", out.SelectionMethod, out.SelectionExecutionOrder)
	fmt.Fprintf(w, "Samples: %d original, %d after balancing (%d synthetic)\n",
		out.OriginalSampleCount, out.BalancedSampleCount, out.SyntheticSampleCount)
	fmt.Fprintf(w, "Features: %d\n\n", len(out.FeatureNames))
	fmt.Fprint(w, out.SelectionReport)
}
