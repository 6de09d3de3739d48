package stats

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultListLimit = 30
	maxListLimit     = 365
)

type Service struct {
	store Store
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewService(store Store, now func() time.Time, log logrus.FieldLogger) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, now: now, log: log.WithField("component", "stats")}
}

// Snapshot counts the platform totals and appends them as a new row. It is
// meant to be run by an external scheduler.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	counts, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Counts: counts, CreatedAt: s.now().UTC()}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"snapshot_id": snap.ID,
		"users":       snap.Users,
		"exams":       snap.Exams,
		"attempts":    snap.Attempts,
	}).Info("stats snapshot recorded")
	return snap, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListSnapshots(ctx, limit)
}
