package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examportal/internal/auth"
	"examportal/internal/exam"
	"examportal/internal/validate"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultCurrency = "INR"

// ExamReader is the part of the exam store the checkout flow needs.
type ExamReader interface {
	GetExam(ctx context.Context, id int64) (*exam.Exam, error)
	GetEnrollment(ctx context.Context, userID, examID int64) (*exam.Enrollment, error)
}

type Service struct {
	store    Store
	exams    ExamReader
	gateway  Gateway
	currency string
	now      func() time.Time
	log      logrus.FieldLogger
}

type ServiceConfig struct {
	// Gateway may be nil; every checkout then fails with ErrGatewayNotConfigured.
	Gateway  Gateway
	Currency string
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

func NewService(store Store, exams ExamReader, cfg ServiceConfig) *Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:    store,
		exams:    exams,
		gateway:  cfg.Gateway,
		currency: strings.ToUpper(cfg.Currency),
		now:      cfg.Now,
		log:      cfg.Logger.WithField("component", "payment"),
	}
}

// CreateOrder opens a gateway order for a paid exam and records the
// pending payment.
func (s *Service) CreateOrder(ctx context.Context, actor auth.Principal, examID int64) (*Checkout, error) {
	if actor.Role != auth.RoleStudent {
		return nil, exam.ErrStudentOnly
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	e, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !e.Price.IsPositive() {
		return nil, ErrFreeExam
	}
	if _, err := s.exams.GetEnrollment(ctx, actor.ID, examID); err == nil {
		return nil, exam.ErrAlreadyEnrolled
	} else if !errors.Is(err, exam.ErrNotEnrolled) {
		return nil, err
	}

	receipt := fmt.Sprintf("exam_%d_%s", examID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	order, err := s.gateway.CreateOrder(ctx, MinorUnits(e.Price), s.currency, receipt)
	if err != nil {
		s.log.WithError(err).WithField("exam_id", examID).Error("create order failed")
		return nil, err
	}

	p := &Payment{
		OrderID:   order.ID,
		Receipt:   receipt,
		Amount:    e.Price,
		Currency:  s.currency,
		UserID:    actor.ID,
		ExamID:    examID,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": examID, "user_id": actor.ID, "order_id": order.ID}).Info("payment order created")
	return &Checkout{KeyID: s.gateway.KeyID(), Order: order, Payment: p}, nil
}

// VerifyPayment checks the gateway signature and, when valid, completes the
// payment and enrolls its owner.
func (s *Service) VerifyPayment(ctx context.Context, actor auth.Principal, in VerifyInput) (*exam.Enrollment, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	if !s.gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		s.log.WithFields(logrus.Fields{"order_id": in.OrderID, "user_id": actor.ID}).Warn("payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	p, err := s.store.GetPaymentByOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != actor.ID {
		return nil, ErrPaymentNotFound
	}
	if p.Status == StatusCompleted {
		return nil, ErrAlreadyPaid
	}

	now := s.now().UTC()
	p.PaymentID = in.PaymentID
	p.Signature = in.Signature
	p.CompletedAt = &now
	en := &exam.Enrollment{UserID: p.UserID, ExamID: p.ExamID, EnrolledAt: now, Status: exam.EnrollmentEnrolled}
	if err := s.store.CompletePayment(ctx, p, en); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": p.ExamID, "user_id": p.UserID, "order_id": p.OrderID}).Info("payment verified")
	return en, nil
}

// MinorUnits converts a price to the gateway's smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
