package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"librarycatalog/internal/ratelimit"
	"librarycatalog/internal/util"
	"librarycatalog/pkg/auth"
	"librarycatalog/pkg/store"
	"librarycatalog/services/catalog/internal/app"
	"librarycatalog/services/catalog/internal/config"
	"librarycatalog/services/catalog/internal/server"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 20 * time.Second
)

func main() {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("catalog exited", "err", err)
		stop()
		log.Fatalf("catalog: %v", err)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	bookStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	appCore, err := app.New(app.Config{Store: bookStore})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := appCore.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}()

	gate, err := newGate(cfg, logger)
	if err != nil {
		return err
	}

	limiter, err := newLoginLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Gate:           gate,
		LoginLimiter:   limiter,
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		CookieName:     cfg.SessionCookieName,
		SecureCookies:  cfg.IsProduction(),
		ExposeErrors:   cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("catalog server listening", "addr", addr, "environment", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("catalog server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.FileConfig) (store.BookStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		s, err := store.NewMongoStore(connCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newGate(cfg config.FileConfig, logger *slog.Logger) (*auth.Gate, error) {
	secret := cfg.SessionSecret
	if secret == "" {
		// Sessions do not survive a restart without a configured secret.
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("sessionSecret not configured; using a per-process random secret")
	}
	ttl, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewSessionSigner(secret, auth.SessionOptions{TTL: ttl})
	if err != nil {
		return nil, fmt.Errorf("init session signer: %w", err)
	}
	gate, err := auth.NewGate(cfg.AuthUsername, cfg.AuthPassword, signer)
	if err != nil {
		return nil, fmt.Errorf("init auth gate: %w", err)
	}
	return gate, nil
}

func newLoginLimiter(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) (ratelimit.Limiter, error) {
	limit := cfg.LoginRateLimitPerMinute
	if cfg.RedisAddr == "" {
		limiter, err := ratelimit.NewLocalLimiter(limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
		return limiter, nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "catalog:ratelimit:login", limit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		// The limiter fails closed, so logins are refused until Redis is back.
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	return limiter, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
