// Package dbtest opens a migrated PostgreSQL pool for repository tests.
// Tests that use it are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthmate/healthmate/internal/platform/db"
)

// EnvURL names the variable holding the test database URL.
const EnvURL = "TEST_DATABASE_URL"

// migrationLockKey serializes migrations across test binaries sharing one database.
const migrationLockKey = 7245931

var (
	migrateOnce sync.Once
	migrateErr  error
)

// MigrationsDir returns the repository's migrations directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

// Pool returns a pool on the test database with every migration applied.
// The pool is closed when the test ends.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", EnvURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	migrateOnce.Do(func() { migrateErr = migrate(ctx, pool) })
	if migrateErr != nil {
		t.Fatalf("migrate test database: %v", migrateErr)
	}
	return pool
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return err
	}
	defer conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey) //nolint:errcheck

	_, err = db.NewMigrator(pool, MigrationsDir()).Up(ctx)
	return err
}

// Account inserts an account with the given role and names and removes it,
// along with everything that cascades from it, when the test ends.
func Account(t *testing.T, pool *pgxpool.Pool, role, username, fullName string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO accounts (id, email, username, full_name, role)
		VALUES ($1, $2, $3, $4, $5)`,
		id, id.String()+"@test.healthmate.local", username, fullName, role)
	if err != nil {
		t.Fatalf("insert %s account: %v", role, err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), `DELETE FROM accounts WHERE id = $1`, id); err != nil {
			t.Errorf("delete account %s: %v", id, err)
		}
	})
	return id
}
