package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPostgresStoreCreateUserDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	store := NewPostgresStore(db)
	u := &User{Username: "ana", FullName: "Ana", Email: "ana@example.test", Role: RoleStudent, CreatedAt: time.Now()}
	if err := store.CreateUser(context.Background(), u, "hash"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreFindCredentials(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, username, full_name, email, role, created_at, password_hash`).
		WithArgs("ana").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "role", "created_at", "password_hash"}).
			AddRow(int64(7), "ana", "Ana", "ana@example.test", RoleStudent, created, "$2a$hash"))
	mock.ExpectQuery(`SELECT id, username, full_name, email, role, created_at, password_hash`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "role", "created_at", "password_hash"}))

	store := NewPostgresStore(db)
	u, hash, err := store.FindCredentials(context.Background(), "ana")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.ID != 7 || hash != "$2a$hash" {
		t.Fatalf("unexpected result %+v %q", u, hash)
	}
	if _, _, err := store.FindCredentials(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
