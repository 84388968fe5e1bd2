//go:build integration

package pgstore

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/preesm/spider2-sub002/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("spider_test"),
		postgres.WithUsername("spider"),
		postgres.WithPassword("spider"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("pgstore: failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("pgstore: failed to get connection string: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("pgstore: failed to create pool: %v", err)
	}

	schemaStore := New(testPool)
	if err := schemaStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("pgstore: failed to create schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("pgstore: failed to terminate container: %v", err)
	}
	os.Exit(code)
}

func TestReserveReadWriteClearRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(testPool)
	key := store.Key{GraphPath: "top." + t.Name(), EdgeIndex: 1}

	if err := s.Reserve(ctx, key, 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	got, err := s.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got len %d, want 3", len(got))
	}

	if err := s.Write(ctx, key, []byte{7, 8, 9}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = s.Read(ctx, key)
	if err != nil {
		t.Fatalf("read after write: %v", err)
	}
	want := []byte{7, 8, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if err := s.Clear(ctx, key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Read(ctx, key); err == nil {
		t.Fatalf("expected error reading cleared key")
	}
}
