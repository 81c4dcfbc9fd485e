// Package infra provisions the PostgreSQL the stress suite runs against and
// applies the schema. The default path is a throwaway testcontainers instance;
// when Docker is unavailable the suite can fall back to a local server or a
// DSN handed in from outside.
package infra

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Postgres wraps a disposable database container. The zero value stands in for
// an externally managed database and Stop is a no-op on it.
type Postgres struct {
	container *postgres.PostgresContainer
}

// LaunchPostgres brings up a PostgreSQL 16 container and returns it together
// with a superuser DSN.
func LaunchPostgres(ctx context.Context) (*Postgres, string, error) {
	container, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("jobengine"),
		postgres.WithUsername("jobengine"),
		postgres.WithPassword("jobengine"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("launch postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("container connection string: %w", err)
	}
	return &Postgres{container: container}, dsn, nil
}

// Stop tears the container down. Safe on the zero value.
func (p *Postgres) Stop(ctx context.Context) error {
	if p == nil || p.container == nil {
		return nil
	}
	return p.container.Terminate(ctx)
}
