package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestKVRepository_Get(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock pgxmock.PgxPoolIface)
		wantValue string
		wantErr   error
	}{
		{
			name: "found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT value").
					WithArgs("cache", "abc").
					WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"timestamp":1}`)))
			},
			wantValue: `{"timestamp":1}`,
		},
		{
			name: "missing",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT value").
					WithArgs("cache", "abc").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			repo := NewKVRepository(mock)
			got, err := repo.Get(context.Background(), "cache", "abc")

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Get() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.wantValue {
				t.Errorf("Get() = %s, want %s", got, tt.wantValue)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestKVRepository_Upsert(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("INSERT INTO kv_entries").
		WithArgs("exclusions", "excludelist", []byte(`["A"]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewKVRepository(mock)
	if err := repo.Upsert(context.Background(), "exclusions", "excludelist", []byte(`["A"]`)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestKVRepository_Exists(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("cache", "k").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewKVRepository(mock)
	ok, err := repo.Exists(context.Background(), "cache", "k")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists() = false, want true")
	}
}

func TestKVRepository_Delete(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("DELETE FROM kv_entries").
		WithArgs("cache", "k").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewKVRepository(mock)
	if err := repo.Delete(context.Background(), "cache", "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestKVRepository_DeleteNamespace(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("DELETE FROM kv_entries").
		WithArgs("cache").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewKVRepository(mock)
	n, err := repo.DeleteNamespace(context.Background(), "cache")
	if err != nil {
		t.Fatalf("DeleteNamespace() error = %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteNamespace() = %d, want 3", n)
	}
}

func TestKVRepository_ExecError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("INSERT INTO kv_entries").
		WithArgs("cache", "k", []byte("v")).
		WillReturnError(errors.New("connection refused"))

	repo := NewKVRepository(mock)
	err := repo.Upsert(context.Background(), "cache", "k", []byte("v"))
	if err == nil {
		t.Fatal("Upsert() error = nil, want error")
	}
}
