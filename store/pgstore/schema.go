package pgstore

import (
	"context"
	"fmt"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    graph_path TEXT NOT NULL,
    edge_index INTEGER NOT NULL,
    data       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (graph_path, edge_index)
)`

// EnsureSchema creates the delay-region table if it does not already exist.
// A convenience helper for development; production deployments should use
// migration tooling instead.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(createTableSQL, s.tableName)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("pgstore: create table: %w", err)
	}
	return nil
}
