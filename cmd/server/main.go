// Command server runs the review consensus engine.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	credhandler "proofpals/internal/credential/handler"
	credservice "proofpals/internal/credential/service"
	credstore "proofpals/internal/credential/store"
	escalationhandler "proofpals/internal/escalation/handler"
	escalationservice "proofpals/internal/escalation/service"
	"proofpals/internal/ledger"
	ledgerstore "proofpals/internal/ledger/store"
	"proofpals/internal/platform/config"
	ringhandler "proofpals/internal/ring/handler"
	ringservice "proofpals/internal/ring/service"
	ringstore "proofpals/internal/ring/store"
	submissionhandler "proofpals/internal/submission/handler"
	submissionmodels "proofpals/internal/submission/models"
	submissionservice "proofpals/internal/submission/service"
	substore "proofpals/internal/submission/store"
	transport "proofpals/internal/transport/http"
	"proofpals/pkg/platform/audit"
	audithandler "proofpals/pkg/platform/audit/handler"
	auditmemory "proofpals/pkg/platform/audit/store/memory"
	auditpg "proofpals/pkg/platform/audit/store/postgres"
	"proofpals/pkg/platform/audit/publisher"
	"proofpals/pkg/platform/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type schemaStore interface {
	Schema(ctx context.Context) error
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	}

	var (
		ringStore  ringservice.Store
		subStore   interface {
			submissionservice.Store
			escalationservice.Store
		}
		credStore credservice.Store
		auditLog  audit.Log
		kil       ledger.KeyImageLedger
	)
	if db != nil {
		pgRings := ringstore.NewPostgres(db)
		pgSubs := substore.NewPostgres(db)
		pgCreds := credstore.NewPostgres(db)
		pgAudit := auditpg.New(db)
		pgLedger := ledgerstore.NewPostgres(db)
		for _, s := range []schemaStore{pgRings, pgSubs, pgCreds, pgAudit, pgLedger} {
			if err := s.Schema(ctx); err != nil {
				return err
			}
		}
		ringStore, subStore, credStore, auditLog, kil = pgRings, pgSubs, pgCreds, pgAudit, pgLedger
	} else {
		logger.Warn("no database configured, using in-memory stores")
		ringStore = ringstore.NewInMemory()
		subStore = substore.NewInMemory()
		credStore = credstore.NewInMemory()
		auditLog = auditmemory.New()
		kil = ledgerstore.NewInMemory()
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		kil = ledgerstore.NewRedis(client)
	}

	var pubOpts []publisher.Option
	pubOpts = append(pubOpts, publisher.WithLogger(logger))
	if cfg.AuditAsyncBuffer > 0 {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(cfg.AuditAsyncBuffer))
	}
	if len(cfg.KafkaSeeds) > 0 {
		sink, err := publisher.NewKafkaSink(cfg.KafkaSeeds, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		pubOpts = append(pubOpts, publisher.WithSink(sink))
	}
	emitter := publisher.New(auditLog, pubOpts...)
	defer emitter.Close()

	rings := ringservice.New(ringStore, emitter)
	issuer := credservice.New(credStore, rings, subStore, emitter, cfg.IdentityPepper, cfg.CredentialTTL)
	rule := submissionmodels.ConsensusRule{
		Quorum:        cfg.VoteQuorum,
		Margin:        cfg.VoteMargin,
		FlagEscalates: cfg.FlagEscalates,
	}
	aggregator := submissionservice.New(subStore, rings, kil, issuer, emitter, rule, logger)
	resolver := escalationservice.New(subStore, emitter)

	auth := middleware.NewAuth([]byte(cfg.JWTSigningKey), cfg.AdminToken)
	router := transport.New(transport.Deps{
		Auth:   auth,
		Logger: logger,
		Reviewer: []transport.Registrar{
			credhandler.New(issuer, logger),
			submissionhandler.New(aggregator, logger),
		},
		Admin: []transport.Registrar{
			ringhandler.New(rings, issuer, logger),
			submissionhandler.NewAdmin(aggregator, logger),
			escalationhandler.New(resolver, logger),
			audithandler.New(auditLog, logger),
		},
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
