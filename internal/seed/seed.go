// Package seed implements the two bootstrap commands the service ships as
// alternate run modes instead of as separate binaries: provisioning the
// first System Application with its ROLE_SUPER_ADMIN operator, and
// provisioning any later Application.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/sealer"
	"github.com/keyward/keyward/pkg/user"
)

// Run provisions the System Application (if one does not already exist as
// determined by the caller re-running this command) and a ROLE_SUPER_ADMIN
// user within it, printing the generated login and password once. There is
// no interactive prompt: both are random, high-entropy, and never stored in
// plaintext anywhere but this one log line.
func Run(ctx context.Context, db *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) error {
	provisioner := &application.Provisioner{
		DB:            db,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsApplicationDir,
		Logger:        logger,
	}
	app, err := provisioner.Provision(ctx, "System", cfg.SysAdminEmail, true, nil)
	if err != nil {
		return fmt.Errorf("provisioning system application: %w", err)
	}
	logger.Info("system application created", "id", app.ID, "name", app.Name)

	seal, err := sealer.New(cfg.SealerMode, cfg.EncryptionKeyHex, cfg.HSMModulePath, cfg.HSMTokenLabel, cfg.HSMUserPIN, cfg.HSMMasterKeyTag)
	if err != nil {
		return fmt.Errorf("building sealer: %w", err)
	}
	license := policy.NewLicenseCell(policy.Tier(cfg.LicenseTier))

	pool, err := application.NewPoolCache(cfg.DatabaseURL).Get(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("opening system application pool: %w", err)
	}

	appStore := application.NewStore(db)
	userStore := user.NewStore(pool)
	connStore := user.NewConnexionStore(pool)
	registry := user.NewRegistry(userStore, connStore, appStore, license, seal, nil)

	login, err := authn.GeneratePassword(32)
	if err != nil {
		return fmt.Errorf("generating login: %w", err)
	}
	password, err := authn.GeneratePassword(32)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}

	_, err = registry.CreateUser(ctx, user.AdminCreateInput{
		ApplicationID: app.ID,
		Login:         login,
		Email:         cfg.SysAdminEmail,
		Password:      password,
		Roles:         []string{string(policy.RoleSuperAdmin)},
		IsAdmin:       true,
	}, app.ID, true)
	if err != nil {
		return fmt.Errorf("creating super admin: %w", err)
	}

	logger.Info("system super admin created — record these now, they are never shown again",
		"login", login, "password", password)
	return nil
}

// CreateApplication provisions a single Application's schema and migrations
// without creating any user inside it; an operator with the resulting
// application_id then uses the admin-create route to seed its first users.
func CreateApplication(ctx context.Context, db *pgxpool.Pool, cfg *config.Config, logger *slog.Logger) error {
	if cfg.NewApplicationName == "" || cfg.NewApplicationContactEmail == "" {
		return fmt.Errorf("NEW_APPLICATION_NAME and NEW_APPLICATION_CONTACT_EMAIL must be set")
	}
	provisioner := &application.Provisioner{
		DB:            db,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsApplicationDir,
		Logger:        logger,
	}
	app, err := provisioner.Provision(ctx, cfg.NewApplicationName, cfg.NewApplicationContactEmail, false, nil)
	if err != nil {
		return fmt.Errorf("provisioning application: %w", err)
	}
	logger.Info("application created", "id", app.ID, "name", app.Name)
	return nil
}
