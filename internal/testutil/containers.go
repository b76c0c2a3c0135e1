package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres runs a throwaway Postgres and returns its DSN plus a
// function that removes the container.
func StartPostgres(ctx context.Context) (string, func(), error) {
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("falacomigo_test"),
		postgres.WithUsername("falacomigo"),
		postgres.WithPassword("falacomigo"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, errors.Wrap(err, "start postgres container")
	}
	stop := func() { _ = testcontainers.TerminateContainer(ctr) }

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		stop()
		return "", nil, errors.Wrap(err, "postgres dsn")
	}
	return dsn, stop, nil
}

// StartRedis runs a throwaway Redis and returns host:port.
func StartRedis(ctx context.Context) (string, func(), error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "start redis container")
	}
	stop := func() { _ = testcontainers.TerminateContainer(ctr) }

	host, err := ctr.Host(ctx)
	if err != nil {
		stop()
		return "", nil, errors.Wrap(err, "redis host")
	}
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	if err != nil {
		stop()
		return "", nil, errors.Wrap(err, "redis port")
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), stop, nil
}
