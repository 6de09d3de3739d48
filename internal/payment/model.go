package payment

import (
	"context"
	"time"

	"examportal/internal/apperr"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

var (
	ErrGatewayNotConfigured = apperr.Unavailable("payments_disabled", "payments are not configured")
	ErrGatewayFailed        = apperr.Unavailable("gateway_unavailable", "payment gateway is unavailable")
	ErrPaymentNotFound      = apperr.NotFound("payment_not_found", "payment not found")
	ErrInvalidSignature     = apperr.Validation("invalid_signature", "payment signature is invalid")
	ErrAlreadyPaid          = apperr.Conflict("payment_completed", "payment already completed")
	ErrFreeExam             = apperr.Validation("exam_is_free", "exam is free, enroll directly")
)

type Payment struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Signature   string          `json:"-"`
	Receipt     string          `json:"receipt"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	UserID      int64           `json:"user_id"`
	ExamID      int64           `json:"exam_id"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Order is the gateway's view of a checkout; Amount is in minor units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

type Checkout struct {
	KeyID   string   `json:"key_id"`
	Order   *Order   `json:"order"`
	Payment *Payment `json:"payment"`
}

type VerifyInput struct {
	OrderID   string `json:"order_id" validate:"notblank"`
	PaymentID string `json:"payment_id" validate:"notblank"`
	Signature string `json:"signature" validate:"notblank"`
}
