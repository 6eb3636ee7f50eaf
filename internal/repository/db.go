package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/NirnayK/InvoxAI-sub000/internal/common"
)

// Dialect identifies the SQL flavor behind a DB handle.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a database handle with its dialect so repositories can bind
// placeholders correctly for either backend.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect

	pool *pgxpool.Pool // non-nil for postgres only
}

// Open connects to the store named by cfg.DSN: postgres:// DSNs go through a
// pgx pool wrapped for database/sql, anything else is treated as a SQLite
// path. An empty DSN is rejected rather than silently falling back to an
// in-memory store; callers that want one use OpenSQLite(":memory:") directly.
// Migrations run on every open and are idempotent.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "database DSN is required", common.ErrInvalidInput)
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		return openPostgres(ctx, cfg, logger)
	}
	return OpenSQLite(cfg.DSN, logger)
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dialect", DialectPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-batch"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(ctx, db); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("successfully connected to database")
	return &DB{SQL: db, Dialect: DialectPostgres, pool: pool}, nil
}

// OpenSQLite opens a file-backed or in-memory SQLite store. An empty path or
// ":memory:" yields an in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*DB, error) {
	if path == "" {
		path = ":memory:"
	}
	logger.Info("connecting to database", "dialect", DialectSQLite, "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The modernc driver is not safe for concurrent writes on one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if err := runMigrations(context.Background(), db); err != nil {
		return nil, err
	}
	return &DB{SQL: db, Dialect: DialectSQLite}, nil
}

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	logger.Info("closing database connections")
	if err := d.SQL.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the store to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	return d.SQL.PingContext(ctx)
}

// runMigrations executes the schema statement by statement; pgx's extended
// protocol rejects multi-statement strings.
func runMigrations(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	return nil
}

// rebind converts ?-style placeholders to $N for postgres. SQLite takes the
// query as written.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
