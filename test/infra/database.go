package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5"
)

const (
	localStressDB   = "agenthire_stress"
	localStressUser = "agenthire_tester"
	localStressPass = "agenthire"
)

// LocalPostgres recreates a dedicated stress database on a PostgreSQL server
// already running on localhost:5432 and returns its DSN. It is the fallback
// for machines without Docker.
func LocalPostgres(ctx context.Context) (string, error) {
	if err := exec.CommandContext(ctx, "pg_isready", "-h", "127.0.0.1", "-p", "5432").Run(); err != nil {
		return "", fmt.Errorf("no local postgres on 127.0.0.1:5432: %w", err)
	}

	admin, err := adminConnect(ctx)
	if err != nil {
		return "", err
	}
	defer admin.Close(ctx)

	if err := recreateStressDB(ctx, admin); err != nil {
		return "", err
	}
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:5432/%s?sslmode=disable",
		localStressUser, localStressPass, localStressDB), nil
}

// adminConnect tries the usual local superuser spellings until one works.
func adminConnect(ctx context.Context) (*pgx.Conn, error) {
	users := []string{"postgres", os.Getenv("USER")}
	var lastErr error
	for _, u := range users {
		if u == "" {
			continue
		}
		for _, cred := range []string{u, u + ":postgres"} {
			conn, err := pgx.Connect(ctx, fmt.Sprintf("postgres://%s@127.0.0.1:5432/postgres?sslmode=disable", cred))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
	}
	return nil, fmt.Errorf("no admin connection to local postgres: %w", lastErr)
}

// recreateStressDB drops any leftover stress database and builds a fresh one
// owned by the test role, so each run starts from nothing.
func recreateStressDB(ctx context.Context, admin *pgx.Conn) error {
	mkRole := fmt.Sprintf(
		"DO $$ BEGIN CREATE ROLE %s WITH LOGIN PASSWORD '%s'; EXCEPTION WHEN duplicate_object THEN NULL; END $$;",
		localStressUser, localStressPass)
	if _, err := admin.Exec(ctx, mkRole); err != nil {
		return fmt.Errorf("create test role: %w", err)
	}

	_, _ = admin.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		localStressDB)
	if _, err := admin.Exec(ctx, "DROP DATABASE IF EXISTS "+localStressDB); err != nil {
		return fmt.Errorf("drop stale stress database: %w", err)
	}

	create := fmt.Sprintf("CREATE DATABASE %s OWNER %s", localStressDB, pgx.Identifier{localStressUser}.Sanitize())
	if _, err := admin.Exec(ctx, create); err != nil {
		return fmt.Errorf("create stress database: %w", err)
	}
	if _, err := admin.Exec(ctx, fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", localStressDB, localStressUser)); err != nil {
		return fmt.Errorf("grant stress database: %w", err)
	}
	return nil
}
