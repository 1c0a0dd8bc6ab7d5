package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Migrator is the pool surface migrations need. *pgxpool.Pool and pgxmock
// pools satisfy it.
type Migrator interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// migrationLockKey serializes replicas that start at the same time.
const migrationLockKey int64 = 0x656c6561726e // "elearn"

var migrationRetry = DefaultRetryPolicy()

// transientDBError reports whether err is a lost or refused connection as
// opposed to an error raised by the server.
func transientDBError(err error) bool {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case pgconn.SafeToRetry(err):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// pendingMigrations lists the *.up.sql files at the root of migrations in
// name order.
func pendingMigrations(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, each in its own transaction under an advisory lock.
// Lost connections are retried; SQL errors are not.
func RunMigrations(ctx context.Context, pool Migrator, migrations fs.FS, logger *slog.Logger) error {
	names, err := pendingMigrations(migrations)
	if err != nil {
		return err
	}
	return retry(ctx, migrationRetry, logger, "run migrations", transientDBError, func(ctx context.Context) error {
		if _, err := pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("create schema_migrations table: %w", err)
		}
		for _, name := range names {
			if err := applyMigration(ctx, pool, migrations, name, logger); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyMigration(ctx context.Context, pool Migrator, migrations fs.FS, name string, logger *slog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("lock for migration %s: %w", name, err)
	}

	var applied bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name).Scan(&applied); err != nil {
		return fmt.Errorf("check migration %s: %w", name, err)
	}
	if applied {
		logger.DebugContext(ctx, "migration already applied", slog.String("version", name))
		return nil
	}

	body, err := fs.ReadFile(migrations, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	committed = true

	logger.InfoContext(ctx, "migration applied", slog.String("version", name))
	return nil
}
