package pgstore

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"

	"github.com/preesm/spider2-sub002/store"
)

func TestReserveInsertsZeroFilledRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	s := New(mock)
	key := store.Key{GraphPath: "top.sub", EdgeIndex: 3}

	mock.ExpectExec("INSERT INTO spider_delay_regions").
		WithArgs(key.GraphPath, key.EdgeIndex, make([]byte, 4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.Reserve(context.Background(), key, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadNoRowsReturnsErrNotReserved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	s := New(mock)
	key := store.Key{GraphPath: "top", EdgeIndex: 0}

	mock.ExpectQuery("SELECT data FROM spider_delay_regions").
		WithArgs(key.GraphPath, key.EdgeIndex).
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	_, err = s.Read(context.Background(), key)
	if !errors.Is(err, store.ErrNotReserved) {
		t.Fatalf("expected ErrNotReserved, got %v", err)
	}
}

func TestWriteUnreservedKeyReturnsErrNotReserved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	s := New(mock)
	key := store.Key{GraphPath: "top", EdgeIndex: 0}
	data := []byte{9, 9}

	mock.ExpectExec("UPDATE spider_delay_regions").
		WithArgs(key.GraphPath, key.EdgeIndex, data).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.Write(context.Background(), key, data)
	if !errors.Is(err, store.ErrNotReserved) {
		t.Fatalf("expected ErrNotReserved, got %v", err)
	}
}

func TestWithTableNameSanitizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	s := New(mock, WithTableName("custom_regions"))
	if s.tableName != `"custom_regions"` {
		t.Fatalf("expected sanitized table name, got %q", s.tableName)
	}
}
