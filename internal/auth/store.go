package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists accounts.
type Store interface {
	CreateUser(ctx context.Context, u *User, passwordHash string) error
	FindCredentials(ctx context.Context, identifier string) (*User, string, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsersByRole(ctx context.Context, role string) ([]User, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *User, passwordHash string) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, full_name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, u.Username, u.FullName, u.Email, passwordHash, u.Role, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCredentials(ctx context.Context, identifier string) (*User, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, email, role, created_at, password_hash
		FROM users
		WHERE username = $1 OR email = lower($1)
		LIMIT 1
	`, identifier)

	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.CreatedAt, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("query user: %w", err)
	}
	return &u, hash, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, email, role, created_at
		FROM users
		WHERE id = $1
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, full_name, email, role, created_at
		FROM users
		WHERE role = $1
		ORDER BY id ASC
	`, role)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// MemoryStore keeps accounts in process memory. It backs the in-memory
// server mode and service tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]memoryUser
}

type memoryUser struct {
	user User
	hash string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]memoryUser)}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *User, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.user.Username == u.Username || existing.user.Email == u.Email {
			return ErrUserExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = memoryUser{user: *u, hash: passwordHash}
	return nil
}

func (m *MemoryStore) FindCredentials(_ context.Context, identifier string) (*User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email := strings.ToLower(identifier)
	for _, mu := range m.users {
		if mu.user.Username == identifier || mu.user.Email == email {
			u := mu.user
			return &u, mu.hash, nil
		}
	}
	return nil, "", ErrUserNotFound
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mu, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := mu.user
	return &u, nil
}

func (m *MemoryStore) ListUsersByRole(_ context.Context, role string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0)
	for _, mu := range m.users {
		if mu.user.Role == role {
			out = append(out, mu.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
