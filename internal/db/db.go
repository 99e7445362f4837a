// Package db defines the minimal database access surface shared by every
// domain store. There is no generated query layer here: each store writes
// its own SQL against DBTX, the way the original incident/user stores in
// this codebase's lineage did for most of their own methods.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx, letting
// stores run either against a pooled connection or inside a caller-managed
// transaction without changing their code.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
