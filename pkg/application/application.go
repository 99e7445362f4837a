// Package application implements the Application module: tenant-like
// boundaries, each owning a PostgreSQL schema named app_<id> that holds its
// users, sentinels, and clusters. Unlike a slug-addressed tenant, an
// Application is addressed by its integer ID end to end, matching every
// JWT claim, DTO, and table foreign key this module's semantics are drawn
// from.
package application

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Application is the top-level tenant boundary. KeysNumber is adjusted by
// the key create and delete paths in pkg/sentinel rather than computed on
// read. UsersNumber is not incremented when a user is created; the license
// cap counts live user rows instead.
type Application struct {
	ID           int
	Name         string
	ContactEmail string
	IsSystem     bool
	KeysNumber   int
	UsersNumber  int
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	DeletedAt    *time.Time
	CreatedByID  *uuid.UUID
	UpdatedByID  *uuid.UUID
	DeletedByID  *uuid.UUID
}

// SchemaName returns the PostgreSQL schema name for an Application ID.
func SchemaName(id int) string {
	return "app_" + strconv.Itoa(id)
}

type contextKey string

const infoKey contextKey = "application_info"

// NewContext stores the resolved Application in the context.
func NewContext(ctx context.Context, app *Application) context.Context {
	return context.WithValue(ctx, infoKey, app)
}

// FromContext extracts the resolved Application from the context, or nil.
func FromContext(ctx context.Context) *Application {
	v, _ := ctx.Value(infoKey).(*Application)
	return v
}
