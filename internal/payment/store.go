package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"examportal/internal/exam"
)

type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
	// CompletePayment marks a pending payment completed and grants the
	// enrollment as one unit. Nothing changes if either step fails.
	CompletePayment(ctx context.Context, p *Payment, en *exam.Enrollment) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *Payment) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exam_payments (order_id, receipt, amount, currency, user_id, exam_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, p.OrderID, p.Receipt, p.Amount, p.Currency, p.UserID, p.ExamID, p.Status, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, payment_id, signature, receipt, amount, currency,
		       user_id, exam_id, status, created_at, completed_at
		FROM exam_payments
		WHERE order_id = $1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.PaymentID, &p.Signature, &p.Receipt, &p.Amount, &p.Currency,
		&p.UserID, &p.ExamID, &p.Status, &p.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		p.CompletedAt = &t
	}
	return &p, nil
}

func (s *PostgresStore) CompletePayment(ctx context.Context, p *Payment, en *exam.Enrollment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE exam_payments
		SET payment_id = $2, signature = $3, status = $4, completed_at = $5
		WHERE order_id = $1 AND status = 'pending'
	`, p.OrderID, p.PaymentID, p.Signature, StatusCompleted, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyPaid
	}
	if err := exam.InsertEnrollment(ctx, tx, en); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	p.Status = StatusCompleted
	return nil
}

type enrollmentWriter interface {
	CreateEnrollment(ctx context.Context, en *exam.Enrollment) error
}

// MemoryStore keeps payments in process and enrolls through the exam store.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	payments map[string]*Payment
	enroll   enrollmentWriter
}

func NewMemoryStore(enroll enrollmentWriter) *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Payment), enroll: enroll}
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.OrderID]; exists {
		return fmt.Errorf("insert payment: duplicate order %s", p.OrderID)
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.payments[p.OrderID] = &cp
	return nil
}

func (m *MemoryStore) GetPaymentByOrder(_ context.Context, orderID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) CompletePayment(ctx context.Context, p *Payment, en *exam.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payments[p.OrderID]
	if !ok {
		return ErrPaymentNotFound
	}
	if cur.Status != StatusPending {
		return ErrAlreadyPaid
	}
	if err := m.enroll.CreateEnrollment(ctx, en); err != nil {
		return err
	}
	cur.PaymentID = p.PaymentID
	cur.Signature = p.Signature
	cur.CompletedAt = p.CompletedAt
	cur.Status = StatusCompleted
	p.Status = StatusCompleted
	return nil
}

// DeleteByExam drops every payment for the exam. Postgres does this through
// the exam_payments foreign key cascade.
func (m *MemoryStore) DeleteByExam(examID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for order, p := range m.payments {
		if p.ExamID == examID {
			delete(m.payments, order)
		}
	}
}

func (m *MemoryStore) CountCompleted(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.payments {
		if p.Status == StatusCompleted {
			n++
		}
	}
	return n, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
