// Package pgstore is the PostgreSQL-backed implementation of store.Store,
// used when persistent delays must survive process restarts rather than
// just engine iterations.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/preesm/spider2-sub002/store"
)

const defaultTableName = "spider_delay_regions"

// Querier abstracts the pgx query methods pgstore needs. Both *pgxpool.Pool
// and pgx.Tx satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists reserved delay regions as BYTEA rows keyed by graph path
// and edge index.
type Store struct {
	db        Querier
	tableName string
}

var _ store.Store = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithTableName overrides the default table name, sanitized via
// pgx.Identifier before being interpolated into queries.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
	}
}

// New creates a Postgres-backed store over db.
func New(db Querier, opts ...Option) *Store {
	s := &Store{db: db, tableName: defaultTableName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve inserts a zero-filled row of size bytes for key. A row that
// already exists for key is left as it is: its size and content are not
// changed.
func (s *Store) Reserve(ctx context.Context, key store.Key, size int) error {
	query := fmt.Sprintf(`INSERT INTO %s (graph_path, edge_index, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (graph_path, edge_index) DO NOTHING`, s.tableName)
	_, err := s.db.Exec(ctx, query, key.GraphPath, key.EdgeIndex, make([]byte, size))
	if err != nil {
		return fmt.Errorf("pgstore: reserve %s: %w", key, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key store.Key) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE graph_path = $1 AND edge_index = $2`, s.tableName)
	var data []byte
	err := s.db.QueryRow(ctx, query, key.GraphPath, key.EdgeIndex).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("pgstore: %s: %w", key, store.ErrNotReserved)
		}
		return nil, fmt.Errorf("pgstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Write(ctx context.Context, key store.Key, data []byte) error {
	query := fmt.Sprintf(`UPDATE %s SET data = $3 WHERE graph_path = $1 AND edge_index = $2`, s.tableName)
	tag, err := s.db.Exec(ctx, query, key.GraphPath, key.EdgeIndex, data)
	if err != nil {
		return fmt.Errorf("pgstore: write %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: %s: %w", key, store.ErrNotReserved)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, key store.Key) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE graph_path = $1 AND edge_index = $2`, s.tableName)
	if _, err := s.db.Exec(ctx, query, key.GraphPath, key.EdgeIndex); err != nil {
		return fmt.Errorf("pgstore: clear %s: %w", key, err)
	}
	return nil
}
