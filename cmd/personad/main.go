// Command personad serves the persona engine over gRPC.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/config"
	"github.com/danielpatrickdp/persona-state/internal/gate"
	"github.com/danielpatrickdp/persona-state/internal/logging"
	"github.com/danielpatrickdp/persona-state/internal/orchestrator"
	"github.com/danielpatrickdp/persona-state/internal/outcome"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/signals"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/state/pgstore"
	"github.com/danielpatrickdp/persona-state/internal/telemetry"
	"github.com/danielpatrickdp/persona-state/internal/transport"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #region main
func main() {
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	logger, err := telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, cfg.TracingEndpoint())
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	// Side tables always live in SQLite.
	sqlite, err := state.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer sqlite.Close()

	var repo persona.Repository = sqlite
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		defer pg.Close()
		repo = pg
	}

	decisions, err := logging.NewDecisionLog(sqlite.DB())
	if err != nil {
		log.Fatalf("failed to open decision log: %v", err)
	}
	acts, err := activity.NewStore(sqlite.DB())
	if err != nil {
		log.Fatalf("failed to open activity log: %v", err)
	}
	ledger, err := outcome.NewSQLiteLedger(sqlite.DB())
	if err != nil {
		log.Fatalf("failed to open outcome ledger: %v", err)
	}

	store := persona.NewStore(repo, update.NewEngine(nil, cfg.UpdateConfig()),
		persona.WithDecisionLog(decisions),
		persona.WithLogger(logger),
		persona.WithGate(gate.NewGate(nil, cfg.GateConfig())),
	)
	classifier := signals.NewClassifier(outcome.NewTracker(ledger, outcome.DefaultTrackerConfig()), signals.DefaultClassifierConfig())
	orch := orchestrator.New(store, classifier, acts,
		orchestrator.WithLogger(logger),
		orchestrator.WithLanguage(cfg.Language),
	)

	srv, err := transport.Listen(cfg.Addr, transport.NewService(orch), logger)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	logger.Info("persona engine ready", "db", cfg.DBPath, "postgres", cfg.DatabaseURL != "", "addr", srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

// #endregion main
