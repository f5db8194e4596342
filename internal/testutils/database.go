// Package testutils starts throwaway PostgreSQL containers for integration tests.
package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ory/dockertest"
	logger "github.com/sirupsen/logrus"
)

const (
	postgresImage    = "postgres"
	postgresTag      = "16-alpine"
	postgresPassword = "secret"
	postgresDB       = "redeemy"
)

// RunTestDatabase starts PostgreSQL in docker and returns its DSN and a cleanup function.
func RunTestDatabase() (string, func(), error) {
	noop := func() {}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", noop, fmt.Errorf("could not connect to docker %w", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.Run(postgresImage, postgresTag, []string{
		"POSTGRES_PASSWORD=" + postgresPassword,
		"POSTGRES_DB=" + postgresDB,
	})
	if err != nil {
		return "", noop, fmt.Errorf("could not start postgres %w", err)
	}

	cleanUp := func() {
		if err := pool.Purge(resource); err != nil {
			logger.Errorf("could not purge postgres container: %s", err)
		}
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@localhost:%s/%s?sslmode=disable",
		postgresPassword, resource.GetPort("5432/tcp"), postgresDB)

	err = pool.Retry(func() error {
		conn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		return conn.Ping(context.Background())
	})
	if err != nil {
		return "", cleanUp, fmt.Errorf("postgres did not become ready %w", err)
	}

	return dsn, cleanUp, nil
}
