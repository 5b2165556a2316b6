// Package testutil starts the backing services used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/metinatakli/cinex-booking/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	dbName         = "cinex_booking"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"
)

// SkipIfShort skips integration tests under `go test -short`.
func SkipIfShort(t testing.TB) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// PostgresDSN starts a migrated PostgreSQL container and returns its DSN.
// The container is terminated when the test finishes.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	SkipIfShort(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		dbImageName,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
						dbUser, dbPassword, host, port.Port(), dbName)
				}),
			).WithDeadline(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start DB container: %s", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	if err := migrations.Up(dsn); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	return dsn
}

// Postgres returns a pool connected to a fresh, migrated database.
func Postgres(t testing.TB) *pgxpool.Pool {
	t.Helper()

	dsn := PostgresDSN(t)

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to create pool: %s", err)
	}
	t.Cleanup(db.Close)

	return db
}

// RedisAddr starts a Redis container and returns its host:port address.
func RedisAddr(t testing.TB) string {
	t.Helper()
	SkipIfShort(t)

	ctx := context.Background()

	container, err := tcredis.Run(ctx, cacheImageName)
	if err != nil {
		t.Fatalf("failed to start cache container: %s", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %s", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %s", err)
	}

	return host + ":" + port.Port()
}

// Redis returns a client for a fresh Redis container.
func Redis(t testing.TB) redis.UniversalClient {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(t)})
	t.Cleanup(func() { _ = client.Close() })

	return client
}
