package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/multisense/agent/db"
)

// ChunkDB wraps a PostgreSQL test container prepared for the pgvector
// chunk store: the pgvector extension is available and the chunks schema is
// migrated.
type ChunkDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupChunkDB starts a pgvector-enabled PostgreSQL container, runs the
// embedded migrations and returns a ready connection pool. The returned
// cleanup function terminates the container.
//
// Tests calling this should skip in -short mode; the container requires a
// local Docker daemon.
func SetupChunkDB(t *testing.T) (*ChunkDB, func()) {
	t.Helper()

	ctx := context.Background()

	// testcontainers panics instead of returning an error when no Docker
	// daemon can be found; fold that into the skip path below.
	pgContainer, err := func() (c *postgres.PostgresContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panic: %v", r)
			}
		}()
		return postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase("multisense_test"),
			postgres.WithUsername("multisense_test"),
			postgres.WithPassword("test_password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("starting PostgreSQL container (is Docker running?): %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("creating connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("pinging database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return &ChunkDB{Container: pgContainer, Pool: pool, ConnStr: connStr}, cleanup
}
