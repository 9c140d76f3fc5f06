//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tordrt/pgschemadoc/internal/schema"
)

const fixtureSQL = `
CREATE TABLE users (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	email varchar(255) NOT NULL UNIQUE,
	display_name text,
	created_at timestamp with time zone NOT NULL DEFAULT now()
);

CREATE TABLE invoices (
	id serial PRIMARY KEY,
	user_id uuid NOT NULL REFERENCES users(id),
	total numeric(12, 2) NOT NULL CONSTRAINT "total|positive" CHECK (total > 0),
	memo varchar(120) DEFAULT 'this default value is deliberately longer than fifty characters'
);

CREATE TABLE backup_2023 (
	id integer
);
`

// startPostgres runs a throwaway PostgreSQL container loaded with the fixture schema
func startPostgres(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, fixtureSQL)
	require.NoError(t, err)

	return connStr
}

// findTable is a helper function to find a table by name in the schema
func findTable(s *schema.Schema, name schema.TableName) *schema.Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// hasConstraint reports whether the table carries a constraint of the given kind and name
func hasConstraint(table *schema.Table, kind, name string) bool {
	for _, c := range table.Constraints {
		if c.Kind == kind && c.Name == name {
			return true
		}
	}
	return false
}
