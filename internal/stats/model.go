package stats

import (
	"context"
	"time"
)

// Counts are platform totals at one instant.
type Counts struct {
	Users             int64 `json:"users"`
	Teachers          int64 `json:"teachers"`
	Students          int64 `json:"students"`
	Admins            int64 `json:"admins"`
	Exams             int64 `json:"exams"`
	Attempts          int64 `json:"attempts"`
	CompletedPayments int64 `json:"completed_payments"`
}

// Snapshot is an immutable record of Counts. Rows are only ever appended.
type Snapshot struct {
	ID int64 `json:"id"`
	Counts
	CreatedAt time.Time `json:"created_at"`
}

type Counter interface {
	Count(ctx context.Context) (Counts, error)
}

type Store interface {
	Counter
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	// ListSnapshots returns the newest snapshots first.
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
}
