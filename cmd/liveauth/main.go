package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"liveauth/internal/adapter/cli"
	"liveauth/internal/adapter/csvstore"
	"liveauth/internal/adapter/memory"
	"liveauth/internal/adapter/postgres"
	"liveauth/internal/adapter/redisstore"
	"liveauth/internal/adapter/replay"
	"liveauth/internal/adapter/s3store"
	"liveauth/internal/adapter/sqlite"
	"liveauth/internal/adapter/sso"
	"liveauth/internal/app"
	"liveauth/internal/config"
	"liveauth/internal/domain"
	"liveauth/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("liveauth stopped", zap.Error(err))
	}
}

// store bundles the repositories one backend provides.
type store struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	attempts domain.AttemptRepository
	samples  domain.SampleStore
	closers  []io.Closer
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	auth := app.NewAuthService(st.users, st.sessions, cfg.Session.TTL, logger.Named("auth"))
	if cfg.Seed.DemoUsers {
		if err := auth.SeedUsers(ctx, app.DemoUsers); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}
	if err := auth.PurgeExpiredSessions(ctx); err != nil {
		logger.Warn("purge expired sessions", zap.Error(err))
	}

	var verifier domain.CredentialVerifier = auth
	if cfg.OIDC.Enabled {
		v, err := sso.New(ctx, sso.Config{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			Scopes:       cfg.OIDC.Scopes,
		}, st.users, logger.Named("sso"))
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
		verifier = v
	}

	ledger := app.NewAttemptLedger(st.attempts, st.samples, logger.Named("ledger"))

	hands, faces := replay.NewDetector(replay.Hands), replay.NewDetector(replay.Faces)
	defer func() { _ = hands.Close() }()
	defer func() { _ = faces.Close() }()

	machine := app.NewMachine(
		verifier,
		replay.NewCamera(cfg.Camera.Recording, cfg.Camera.FPS),
		hands, faces,
		ledger,
		auth,
		app.WithLogger(logger.Named("flow")),
		app.WithLivenessWindow(cfg.Liveness.Window),
		app.WithGestureTimeout(cfg.Liveness.GestureTimeout),
		app.WithSampleObserver(cli.OrientationPrinter(os.Stdout)),
	)

	logger.Info("ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("samples", cfg.Samples.Driver),
		zap.Bool("oidc", cfg.OIDC.Enabled),
		zap.String("recording", cfg.Camera.Recording),
	)

	cli.New(machine, ledger, os.Stdin, os.Stdout, logger.Named("cli")).Run(ctx)

	// Leave no session behind when the terminal closes.
	if err := machine.Logout(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("logout on exit", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store, error) {
	st := &store{}

	switch cfg.Store.Driver {
	case "memory":
		db := memory.New()
		st.users, st.sessions, st.attempts, st.samples = db, db.NewSessionRepo(), db, db
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		st.closers = append(st.closers, db)
		st.users, st.sessions, st.attempts, st.samples = db, sqlite.NewSessionRepo(db), db, db
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		st.closers = append(st.closers, db)
		st.users, st.sessions, st.attempts, st.samples = db, postgres.NewSessionRepo(db), db, db
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Samples.Driver {
	case "db":
	case "csv":
		cs, err := csvstore.New(cfg.Samples.CSVDir)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.samples = cs
	case "s3":
		client, err := s3store.NewClient(ctx, s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		st.samples = s3store.New(client, cfg.S3.Bucket, cfg.S3.Prefix)
	case "redis":
		rs, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis open: %w", err)
		}
		st.closers = append(st.closers, rs)
		st.samples = rs
	default:
		st.Close()
		return nil, fmt.Errorf("unknown samples driver %q", cfg.Samples.Driver)
	}
	return st, nil
}
