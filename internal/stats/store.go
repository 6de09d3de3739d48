package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"examportal/internal/auth"
	"examportal/internal/exam"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE role = 'teacher'),
			(SELECT COUNT(*) FROM users WHERE role = 'student'),
			(SELECT COUNT(*) FROM users WHERE role = 'admin'),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM attempts),
			(SELECT COUNT(*) FROM exam_payments WHERE status = 'completed')
	`).Scan(&c.Users, &c.Teachers, &c.Students, &c.Admins, &c.Exams, &c.Attempts, &c.CompletedPayments)
	if err != nil {
		return Counts{}, fmt.Errorf("count platform totals: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stats_snapshots (users, teachers, students, admins, exams, attempts, completed_payments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, snap.Users, snap.Teachers, snap.Students, snap.Admins, snap.Exams, snap.Attempts, snap.CompletedPayments, snap.CreatedAt).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, users, teachers, students, admins, exams, attempts, completed_payments, created_at
		FROM stats_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stats snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0, limit)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Users, &snap.Teachers, &snap.Students, &snap.Admins,
			&snap.Exams, &snap.Attempts, &snap.CompletedPayments, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stats snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats snapshots: %w", err)
	}
	return out, nil
}

type userDirectory interface {
	ListUsersByRole(ctx context.Context, role string) ([]auth.User, error)
}

type examCatalog interface {
	ListExams(ctx context.Context, f exam.ExamFilter) ([]exam.ExamSummary, int, error)
	ListAttempts(ctx context.Context, examID int64) ([]exam.AttemptRecord, error)
}

type paymentLedger interface {
	CountCompleted(ctx context.Context) (int64, error)
}

// MemoryStore keeps snapshots in process and counts through the other
// in-memory stores.
type MemoryStore struct {
	users    userDirectory
	exams    examCatalog
	payments paymentLedger

	mu        sync.Mutex
	nextID    int64
	snapshots []Snapshot
}

func NewMemoryStore(users userDirectory, exams examCatalog, payments paymentLedger) *MemoryStore {
	return &MemoryStore{users: users, exams: exams, payments: payments}
}

func (m *MemoryStore) Count(ctx context.Context) (Counts, error) {
	var c Counts
	for role, dst := range map[string]*int64{
		auth.RoleTeacher: &c.Teachers,
		auth.RoleStudent: &c.Students,
		auth.RoleAdmin:   &c.Admins,
	} {
		users, err := m.users.ListUsersByRole(ctx, role)
		if err != nil {
			return Counts{}, err
		}
		*dst = int64(len(users))
	}
	c.Users = c.Teachers + c.Students + c.Admins

	_, total, err := m.exams.ListExams(ctx, exam.ExamFilter{Page: 1, Limit: 1})
	if err != nil {
		return Counts{}, err
	}
	c.Exams = int64(total)
	attempts, err := m.exams.ListAttempts(ctx, 0)
	if err != nil {
		return Counts{}, err
	}
	c.Attempts = int64(len(attempts))

	if m.payments != nil {
		if c.CompletedPayments, err = m.payments.CountCompleted(ctx); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	snap.ID = m.nextID
	m.snapshots = append(m.snapshots, *snap)
	return nil
}

func (m *MemoryStore) ListSnapshots(_ context.Context, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
