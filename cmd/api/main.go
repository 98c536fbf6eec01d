package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account"
	"github.com/ovaphlow/pitchfork/service-identity/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity/internal/auth"
	"github.com/ovaphlow/pitchfork/service-identity/internal/avatar"
	"github.com/ovaphlow/pitchfork/service-identity/internal/config"
	"github.com/ovaphlow/pitchfork/service-identity/internal/identity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/router"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
	tokenrepo "github.com/ovaphlow/pitchfork/service-identity/internal/token/repo"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-identity")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalf("service failed: %v", err)
	}
	sugar.Info("goodbye")
}

func run(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	// init db
	db, err := database.Open(database.Config{
		DSN:            cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		Timeout:        5 * time.Second,
		TimeZone:       cfg.DatabaseTimeZone,
		ClientEncoding: cfg.DatabaseEncoding,
	})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	if err := repo.EnsureTables(ctx, db); err != nil {
		return fmt.Errorf("ensure account tables: %w", err)
	}
	tokens := tokenrepo.NewTokenRepo(db)
	if err := tokens.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure token table: %w", err)
	}

	var secIDs token.SecondaryIDs
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		secIDs = token.NewRedisSecondaryIDs(rdb, cfg.SecIDTTL, cfg.SecIDTimeout)
	} else {
		sugar.Warn("REDIS_ADDR not set; secondary identifiers are kept in memory")
		secIDs = token.NewMemorySecondaryIDs()
	}

	key, err := token.LoadOrCreateKey(cfg.TokenSigningKeyPath)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	issuer := token.NewIssuer(key, tokens, utilities.NewIDGenerator(cfg.SnowflakeNode), secIDs,
		token.Options{Issuer: cfg.TokenIssuer, TTL: cfg.TokenTTL}, sugar)

	admin := identity.NewAdminClient(ctx, identity.AdminConfig{
		BaseURL:      cfg.IDPAdminURL,
		ClientID:     cfg.IDPAdminClientID,
		ClientSecret: cfg.IDPAdminClientSecret,
		TokenURL:     cfg.IDPAdminTokenURL,
		Timeout:      cfg.IDPTimeout,
	}, nil, sugar)
	verifier, err := identity.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, admin, cfg.IDPTimeout, sugar)
	if err != nil {
		return fmt.Errorf("oidc discovery: %w", err)
	}

	accounts := repo.NewAccountRepo(db)
	avatars := avatar.NewProvisioner(cfg.AvatarDir, cfg.AvatarBaseURL, accounts, sugar)
	defer avatars.Wait()

	engine := auth.NewEngine(auth.Deps{
		Verifier: verifier,
		Admin:    admin,
		Accounts: accounts,
		Places:   repo.NewPlaceRepo(db),
		Drivers:  repo.NewDriverRepo(db),
		Tokens:   issuer,
		Avatars:  avatars,
		Logger:   sugar,
	})

	// mount http server
	handler := router.RegisterRoutes(sugar, router.Deps{
		Auth:          auth.NewHandler(engine, account.NewService(accounts, nil, sugar), issuer, sugar),
		Tokens:        token.NewHandler(issuer, sugar),
		Authenticator: issuer,
		AvatarDir:     cfg.AvatarDir,
		AvatarPath:    cfg.AvatarBaseURL,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Infow("service is running", "addr", cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	// ping db once more
	if err := db.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}
	return nil
}
