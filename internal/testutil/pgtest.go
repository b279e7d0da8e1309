// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresDB returns a migrated database for integration tests.
//
// When POSTGRES_URL is set it is used directly (CI with a provisioned
// database). Otherwise a throwaway postgres:16 container is started; the
// test is skipped when no container runtime is available.
func PostgresDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		dsn = startContainer(t)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("connect to database: %v", err)
	}

	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, migrationsDir(t)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func startContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	// testcontainers panics rather than returning an error when it cannot
	// resolve a docker host at all; turn that into a skip as well
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("no container runtime available: %v", r)
		}
	}()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("codenest"),
		tcpostgres.WithUsername("codenest"),
		tcpostgres.WithPassword("codenest"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("no container runtime available: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("resolve connection string: %v", err)
	}
	return dsn
}

// migrationsDir walks up from the test's working directory to the
// repository root, which holds the migrations directory.
func migrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations directory not found")
		}
		dir = parent
	}
}
