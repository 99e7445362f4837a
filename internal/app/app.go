// Package app wires every package into the running service and owns its
// top-level lifecycle: load config, open collaborators, mount the HTTP
// surface, and serve until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/handlers"
	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/internal/platform"
	"github.com/keyward/keyward/internal/seed"
	"github.com/keyward/keyward/internal/telemetry"
	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/fragment"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/sealer"
	"github.com/keyward/keyward/pkg/tenant"
	"github.com/keyward/keyward/pkg/user"
)

// version identifies this build in /system/version and /system/informations.
// The corpus carries no build-info injection for this service, so it is a
// constant rather than a linker-set variable.
const version = "dev"

// Run starts the service in cfg.Mode. In "api" mode it blocks until ctx is
// cancelled; the seed modes return once their provisioning finishes.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening postgres pool: %w", err)
	}
	defer db.Close()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}

	switch cfg.Mode {
	case "api":
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("opening redis client: %w", err)
		}
		defer rdb.Close()
		return runAPI(ctx, cfg, logger, db, rdb)
	case "seed-system":
		return seed.Run(ctx, db, cfg, logger)
	case "create-application":
		return seed.CreateApplication(ctx, db, cfg, logger)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	seal, err := sealer.New(cfg.SealerMode, cfg.EncryptionKeyHex, cfg.HSMModulePath, cfg.HSMTokenLabel, cfg.HSMUserPIN, cfg.HSMMasterKeyTag)
	if err != nil {
		return fmt.Errorf("building sealer: %w", err)
	}

	fragmentNodes := make([]*redis.Client, 0, len(cfg.FragmentNodes))
	for _, addr := range cfg.FragmentNodes {
		fragmentNodes = append(fragmentNodes, redis.NewClient(&redis.Options{Addr: addr}))
	}
	defer func() {
		for _, c := range fragmentNodes {
			_ = c.Close()
		}
	}()
	fragments, err := fragment.New(fragmentNodes, cfg.FragmentThreshold, cfg.FragmentShares)
	if err != nil {
		return fmt.Errorf("building fragment store: %w", err)
	}

	license := policy.NewLicenseCell(policy.Tier(cfg.LicenseTier))

	appStore := application.NewStore(db)
	poolCache := application.NewPoolCache(cfg.DatabaseURL)
	defer poolCache.Close()
	provisioner := &application.Provisioner{
		DB:            db,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsApplicationDir,
		Logger:        logger,
	}

	privateKey, err := authn.LoadPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("loading jwt private key: %w", err)
	}
	publicKey, err := authn.LoadPublicKey(cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("loading jwt public key: %w", err)
	}
	accessDuration, err := time.ParseDuration(cfg.JWTAccessTokenDuration)
	if err != nil {
		return fmt.Errorf("parsing access token duration: %w", err)
	}
	refreshDuration, err := time.ParseDuration(cfg.JWTRefreshTokenDuration)
	if err != nil {
		return fmt.Errorf("parsing refresh token duration: %w", err)
	}
	openIDDuration, err := time.ParseDuration(cfg.JWTOpenIDTokenDuration)
	if err != nil {
		return fmt.Errorf("parsing openid token duration: %w", err)
	}
	oauthDuration, err := time.ParseDuration(cfg.JWTOAuthCodeDuration)
	if err != nil {
		return fmt.Errorf("parsing oauth code duration: %w", err)
	}
	minter, err := authn.NewTokenMinter(privateKey, publicKey, authn.MinterConfig{
		AccessDuration:  accessDuration,
		RefreshDuration: refreshDuration,
		OpenIDDuration:  openIDDuration,
		OAuthDuration:   oauthDuration,
	})
	if err != nil {
		return fmt.Errorf("building token minter: %w", err)
	}
	guard := authn.NewAntiReplayGuard(rdb, accessDuration)
	revoked := authn.NewRevokedTokenStore(db)

	smtpHost := cfg.SMTPAddr
	if i := strings.LastIndex(smtpHost, ":"); i >= 0 {
		smtpHost = smtpHost[:i]
	}
	mailer := user.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword, smtpHost)

	tenants := tenant.NewRegistry(poolCache, appStore, license, seal, fragments, mailer, revoked, minter)
	authMiddleware := &authn.Middleware{Minter: minter, Guard: guard, Users: tenants, DevModeAllowed: cfg.AntiReplayDevModeAllowed}

	auditTimeout, err := time.ParseDuration(cfg.AuditSinkTimeout)
	if err != nil {
		return fmt.Errorf("parsing audit sink timeout: %w", err)
	}
	auditSink := audit.NewSink(cfg.AuditSinkURL, auditTimeout, logger)
	go auditSink.Run(ctx)
	defer auditSink.Wait()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, authMiddleware.Authenticate, authn.RequireAuth)

	deps := &handlers.Deps{
		Tenants:      tenants,
		Applications: appStore,
		Provisioner:  provisioner,
		Minter:       minter,
		Guard:        guard,
		License:      license,
		Audit:        auditSink,
		Logger:       logger,
		Version:      version,
	}
	handlers.MountPublic(srv.Router, deps)
	handlers.MountAuthenticated(srv.APIRouter, deps)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
