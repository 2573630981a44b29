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
	"time"

	"golang.org/x/sync/errgroup"

	"aurum/internal/account"
	auditengine "aurum/internal/audit/engine"
	auditmetrics "aurum/internal/audit/metrics"
	auditstore "aurum/internal/audit/store"
	burningmetrics "aurum/internal/burning/metrics"
	burningservice "aurum/internal/burning/service"
	burningstore "aurum/internal/burning/store"
	"aurum/internal/compliance"
	depositservice "aurum/internal/deposit/service"
	depositstore "aurum/internal/deposit/store"
	"aurum/internal/events"
	"aurum/internal/events/kafka"
	httpapi "aurum/internal/http"
	"aurum/internal/ledger"
	mintingmetrics "aurum/internal/minting/metrics"
	mintingservice "aurum/internal/minting/service"
	mintingstore "aurum/internal/minting/store"
	"aurum/internal/platform/config"
	"aurum/internal/platform/httpserver"
	"aurum/internal/platform/logger"
	"aurum/internal/platform/postgres"
	platformredis "aurum/internal/platform/redis"
	reservemetrics "aurum/internal/reserve/metrics"
	reserveservice "aurum/internal/reserve/service"
	reservestore "aurum/internal/reserve/store"
	tokenmetrics "aurum/internal/token/metrics"
	tokenservice "aurum/internal/token/service"
	tokenstore "aurum/internal/token/store"
	"aurum/internal/transaction"
	withdrawalservice "aurum/internal/withdrawal/service"
	withdrawalstore "aurum/internal/withdrawal/store"
)

// main wires stores, workflows, and background loops, then runs the
// operational HTTP surface until a shutdown signal arrives.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Error("ledger service exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warn("no kafka brokers configured, events stay in-process")
		publisher = events.NewMemoryPublisher()
	}
	emitter := events.NewEmitter(1024, log)

	gateClient, err := compliance.NewClient(cfg.Compliance, compliance.WithLogger(log))
	if err != nil {
		return fmt.Errorf("compliance gate: %w", err)
	}
	gate := compliance.NewObservedGate(
		compliance.NewCachedGate(gateClient, redisClient, cfg.Redis.CheckTTL, log),
		emitter,
	)

	var accounts account.Verifier
	if cfg.Account.BaseURL != "" {
		accounts, err = account.NewClient(cfg.Account, account.WithLogger(log))
		if err != nil {
			return fmt.Errorf("account service: %w", err)
		}
	} else {
		log.Warn("no account service configured, burn balance checks are skipped")
		accounts = account.NewTrusting(log)
	}

	var tokens tokenstore.Store
	var reserves reservestore.Store
	if db != nil {
		tokenPG := tokenstore.NewPostgres(db)
		if err := tokenPG.EnsureSchema(ctx); err != nil {
			return err
		}
		reservePG := reservestore.NewPostgresStore(db)
		if err := reservePG.EnsureSchema(ctx); err != nil {
			return err
		}
		tokens, reserves = tokenPG, reservePG
	} else {
		tokens, reserves = tokenstore.NewInMemoryStore(), reservestore.NewInMemoryStore()
	}

	mintRequests := mintingstore.NewInMemoryStore()
	burnRequests := burningstore.NewInMemoryStore()
	deposits := depositstore.NewInMemoryStore()
	withdrawals := withdrawalstore.NewInMemoryStore()
	transactions := transaction.NewInMemoryStore()
	audits := auditstore.NewInMemoryStore()

	guard := ledger.NewGuard()

	reserveSvc, err := reserveservice.New(reserves,
		reserveservice.WithLogger(log),
		reserveservice.WithMetrics(reservemetrics.New()),
		reserveservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return err
	}

	tokenSvc, err := tokenservice.New(tokens, reserveSvc, guard,
		tokenservice.WithLogger(log),
		tokenservice.WithMetrics(tokenmetrics.New()),
		tokenservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return err
	}

	engine, err := auditengine.New(audits, tokenSvc, reserveSvc, cfg.Audit,
		auditengine.WithLogger(log),
		auditengine.WithMetrics(auditmetrics.New()),
		auditengine.WithEventEmitter(emitter),
		auditengine.WithWorkflowSweeps(mintRequests, burnRequests),
	)
	if err != nil {
		return err
	}

	depositSvc, err := depositservice.New(deposits, gate,
		depositservice.WithLogger(log),
		depositservice.WithEventEmitter(emitter),
		depositservice.WithAuditStubber(engine),
	)
	if err != nil {
		return err
	}

	withdrawalSvc, err := withdrawalservice.New(withdrawals, reserveSvc, gate, guard, cfg.Withdrawal,
		withdrawalservice.WithLogger(log),
		withdrawalservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return err
	}

	mintSvc, err := mintingservice.New(mintRequests, tokenSvc, reserveSvc, depositSvc,
		transactions, gate, guard, cfg.Minting,
		mintingservice.WithLogger(log),
		mintingservice.WithMetrics(mintingmetrics.New()),
		mintingservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return err
	}
	mintWorker := mintingservice.NewWorker(mintSvc, mintingservice.WithWorkerLogger(log))

	burnSvc, err := burningservice.New(burnRequests, tokenSvc, reserveSvc, accounts,
		transactions, gate, guard, cfg.Burning,
		burningservice.WithLogger(log),
		burningservice.WithMetrics(burningmetrics.New()),
		burningservice.WithEventEmitter(emitter),
		burningservice.WithWithdrawals(withdrawalSvc),
	)
	if err != nil {
		return err
	}
	burnWorker := burningservice.NewWorker(burnSvc, burningservice.WithWorkerLogger(log))

	checks := []httpapi.ReadinessCheck{}
	if db != nil {
		checks = append(checks, httpapi.ReadinessCheck{
			Name:  "postgres",
			Check: db.PingContext,
		})
	}
	if redisClient != nil {
		checks = append(checks, httpapi.ReadinessCheck{
			Name:  "redis",
			Check: redisClient.Health,
		})
	}
	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(checks...))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return emitter.Run(ctx, publisher) })
	group.Go(func() error { return mintWorker.Run(ctx) })
	group.Go(func() error { return burnWorker.Run(ctx) })
	group.Go(func() error { return engine.Run(ctx) })
	group.Go(func() error {
		log.Info("ledger service listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
