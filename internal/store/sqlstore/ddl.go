package sqlstore

import (
	"context"
	_ "embed"
	"strings"
)

//go:embed schema_sqlite.sql
var sqliteDDL string

//go:embed schema_postgres.sql
var postgresDDL string

// DDLStatements returns the CREATE TABLE / INDEX statements for the dialect,
// split on semicolons with blank statements dropped.
func DDLStatements(d Dialect) []string {
	file := sqliteDDL
	if d == Postgres {
		file = postgresDDL
	}
	parts := strings.Split(file, ";")
	var out []string
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// Migrate creates the schema if it does not exist yet. Every statement is
// idempotent, so Migrate is safe to run on each start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range DDLStatements(s.dialect) {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
