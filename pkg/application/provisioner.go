package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyward/keyward/internal/platform"
)

// Provisioner creates and tears down per-Application schemas. Deprovisioning
// here only ever tombstones the Application record (see Store.SoftDelete);
// the schema itself is dropped only via the explicit DropSchema call, kept
// separate so that an accidental soft-delete never destroys key material.
type Provisioner struct {
	DB            *pgxpool.Pool
	DatabaseURL   string
	MigrationsDir string
	Logger        *slog.Logger
}

// Provision creates the applications row, the app_<id> schema, and runs the
// per-Application migrations against it.
func (p *Provisioner) Provision(ctx context.Context, name, contactEmail string, isSystem bool, createdBy *uuid.UUID) (*Application, error) {
	store := NewStore(p.DB)

	app, err := store.Create(ctx, name, contactEmail, isSystem, createdBy)
	if err != nil {
		return nil, fmt.Errorf("inserting application record: %w", err)
	}

	schema := SchemaName(app.ID)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		_ = store.SoftDelete(ctx, app.ID, createdBy)
		return nil, fmt.Errorf("creating schema %s: %w", schema, err)
	}

	scopedURL, err := withSearchPath(p.DatabaseURL, schema)
	if err != nil {
		return nil, fmt.Errorf("building application database URL: %w", err)
	}

	if err := platform.RunApplicationMigrations(scopedURL, p.MigrationsDir); err != nil {
		_, _ = p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		_ = store.SoftDelete(ctx, app.ID, createdBy)
		return nil, fmt.Errorf("running application migrations: %w", err)
	}

	p.Logger.Info("application provisioned", "application_id", app.ID, "schema", schema)
	return app, nil
}

// DropSchema destroys an Application's schema and all key material in it.
// Callers should require super-admin confirmation before invoking this: it
// is irreversible.
func (p *Provisioner) DropSchema(ctx context.Context, id int) error {
	schema := SchemaName(id)
	if _, err := p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("dropping schema %s: %w", schema, err)
	}
	p.Logger.Warn("application schema dropped", "application_id", id, "schema", schema)
	return nil
}

func withSearchPath(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
