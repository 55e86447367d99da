package testdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// lockTimeout keeps contention tests from hanging on a stuck row lock
const lockTimeout = "5000"

// TestDB is a migrated PostgreSQL running in a container
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string

	tables []string
}

// NewTestDB starts PostgreSQL, applies every migration and opens a pool
func NewTestDB(ctx context.Context) (*TestDB, error) {
	scripts, err := migrationScripts()
	if err != nil {
		return nil, err
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("moneyguard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(scripts...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	db, err := open(ctx, container)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return db, nil
}

func open(ctx context.Context, container *postgres.PostgresContainer) (*TestDB, error) {
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["lock_timeout"] = lockTimeout
	cfg.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	tables, err := publicTables(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(tables) == 0 {
		pool.Close()
		return nil, fmt.Errorf("migrations created no tables")
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		tables:    tables,
	}, nil
}

// Reset empties every table in one statement.
// TRUNCATE does not fire the append-only row triggers.
func (db *TestDB) Reset(ctx context.Context) error {
	idents := make([]string, len(db.tables))
	for i, t := range db.tables {
		idents[i] = pgx.Identifier{t}.Sanitize()
	}
	if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(idents, ", ")+" CASCADE"); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

// Close closes the pool and terminates the container
func (db *TestDB) Close(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

func publicTables(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// migrationScripts returns the repository's *.up.sql files in version order
func migrationScripts() ([]string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("failed to get current file path")
	}

	// testutil/testdb/postgres.go -> <root>/migrations
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	scripts, err := filepath.Glob(filepath.Join(root, "migrations", "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no migrations found under %s", filepath.Join(root, "migrations"))
	}
	sort.Strings(scripts)
	return scripts, nil
}
