// Package testdb bootstraps a disposable Postgres instance for tests,
// used by eventcore's integration suite (the unit suite runs against an
// in-memory fake and does not need it). It is
// deliberately outside pkg/eventcore: connection pooling and schema
// bootstrap are explicit non-core collaborators (spec.md §1).
package testdb

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"go-eventcore/pkg/eventcore"
)

// Instance is a running Postgres container plus a pool connected to it.
type Instance struct {
	Pool      *pgxpool.Pool
	container testcontainers.Container
}

func randomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf)[:n], nil
}

// Start launches a postgres:17.5-alpine container, applies schema.sql,
// and returns a ready-to-use pool. Grounded on the teacher's
// setupPostgresContainer (pkg/dcb/test_helpers.go): a plain
// testcontainers.GenericContainerRequest, no ORM, no migration tool.
func Start(ctx context.Context) (*Instance, error) {
	password, err := randomPassword(16)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	schema, err := schemaSQL()
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Instance{Pool: pool, container: container}, nil
}

// Close terminates the container and closes the pool.
func (i *Instance) Close(ctx context.Context) {
	if i.Pool != nil {
		i.Pool.Close()
	}
	if i.container != nil {
		_ = i.container.Terminate(ctx)
	}
}

// Truncate resets the events table between tests.
func (i *Instance) Truncate(ctx context.Context) error {
	_, err := i.Pool.Exec(ctx, "TRUNCATE TABLE events RESTART IDENTITY CASCADE")
	return err
}

// Seed appends fixture events directly through AdminAppendUnchecked,
// bypassing conflict checking, so a test can establish baseline state
// (a pre-existing concert, a batch of historical bookings) before
// exercising the behaviour under test. Grounded on the teacher's
// seedEvents test helper (pkg/dcb/test_helpers.go), which inserts
// fixture rows the same unconditional way.
func Seed[Ev any](ctx context.Context, i *Instance, encode eventcore.Encoder[Ev], events []Ev, metadata map[string]string) ([]int64, error) {
	store, err := eventcore.NewPostgresEventLog(ctx, i.Pool)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return eventcore.AdminAppendUnchecked(ctx, store, encode, events, metadata)
}

// schemaSQL locates internal/migrations/schema.sql relative to this
// source file, so tests can run from any working directory.
func schemaSQL() (string, error) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("unable to locate schema.sql: runtime.Caller failed")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "migrations", "schema.sql")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return filterPsqlMetaCommands(string(data)), nil
}

// filterPsqlMetaCommands strips psql meta-commands (\something) that a
// plain SQL driver can't execute, the same filtering the teacher's
// test_setup.go applies to its schema.sql before running it through
// pgx.
func filterPsqlMetaCommands(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "\\") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
