package leaderboard

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"examportal/internal/exam"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const ratingsPageSize = 100

type Service struct {
	src   Source
	cache Cache
	hub   *Hub
	log   logrus.FieldLogger
	now   func() time.Time
	fill  singleflight.Group

	// gens counts submissions per exam; a fill that raced one is not cached.
	genMu sync.Mutex
	gens  map[int64]uint64
}

type ServiceConfig struct {
	// Cache is optional; without it every read hits the source.
	Cache  Cache
	Hub    *Hub
	Logger logrus.FieldLogger
	Now    func() time.Time
}

func NewService(src Source, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}
	return &Service{
		src:   src,
		cache: cfg.Cache,
		hub:   cfg.Hub,
		log:   cfg.Logger.WithField("component", "leaderboard"),
		now:   cfg.Now,
		gens:  make(map[int64]uint64),
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// TopN returns the highest-scoring attempts on an exam, at most n entries.
// Only the default board size is cached.
func (s *Service) TopN(ctx context.Context, examID int64, n int) (*Board, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	if n > maxTopN {
		n = maxTopN
	}
	if n != DefaultTopN || s.cache == nil {
		return s.load(ctx, examID, n)
	}

	if b, ok, err := s.cache.Get(ctx, examID); err != nil {
		s.log.WithError(err).WithField("exam_id", examID).Warn("leaderboard cache read failed")
	} else if ok {
		return b, nil
	}

	v, err, _ := s.fill.Do(fillKey(examID), func() (interface{}, error) {
		gen := s.generation(examID)
		b, err := s.load(ctx, examID, n)
		if err != nil {
			return nil, err
		}
		if s.generation(examID) != gen {
			return b, nil
		}
		if err := s.cache.Set(ctx, b); err != nil {
			s.log.WithError(err).WithField("exam_id", examID).Warn("leaderboard cache write failed")
			return b, nil
		}
		// A submission between the check and the write must not leave it cached.
		if s.generation(examID) != gen {
			if err := s.cache.Invalidate(ctx, examID); err != nil {
				s.log.WithError(err).WithField("exam_id", examID).Warn("leaderboard cache invalidation failed")
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Board), nil
}

func fillKey(examID int64) string { return strconv.FormatInt(examID, 10) }

func (s *Service) generation(examID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[examID]
}

func (s *Service) load(ctx context.Context, examID int64, n int) (*Board, error) {
	if _, err := s.src.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	recs, err := s.src.TopAttempts(ctx, examID, n)
	if err != nil {
		return nil, err
	}
	b := &Board{ExamID: examID, Entries: make([]Entry, 0, len(recs)), GeneratedAt: s.now().UTC()}
	for i, r := range recs {
		b.Entries = append(b.Entries, Entry{
			Rank:     i + 1,
			UserID:   r.UserID,
			Username: r.Username,
			FullName: r.FullName,
			Score:    r.Score,
		})
	}
	return b, nil
}

// AttemptSubmitted drops the cached board and pushes a fresh one to live
// subscribers.
func (s *Service) AttemptSubmitted(ctx context.Context, examID int64) {
	log := s.log.WithField("exam_id", examID)
	s.genMu.Lock()
	s.gens[examID]++
	s.genMu.Unlock()
	s.fill.Forget(fillKey(examID))
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, examID); err != nil {
			log.WithError(err).Warn("leaderboard cache invalidation failed")
		}
	}
	if s.hub.Subscribers(examID) == 0 {
		return
	}
	b, err := s.TopN(ctx, examID, DefaultTopN)
	if err != nil {
		log.WithError(err).Warn("leaderboard refresh failed")
		return
	}
	s.hub.Publish(b)
}

// Report lists every attempt on the exam with its percentage and timings.
func (s *Service) Report(ctx context.Context, examID int64) ([]ReportRow, error) {
	e, err := s.src.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	recs, err := s.src.ListAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}

	total := exam.TotalMarks(e.Module.Questions)
	rows := make([]ReportRow, 0, len(recs))
	for i := range recs {
		taken := exam.MinutesTaken(&recs[i].Attempt)
		rows = append(rows, ReportRow{
			Username:      recs[i].Username,
			FullName:      recs[i].FullName,
			Score:         recs[i].Score,
			Percentage:    exam.Percentage(recs[i].Score, total),
			TimeTaken:     taken,
			TimeRemaining: e.Duration - taken,
			TimeTotal:     e.Duration,
		})
	}
	return rows, nil
}

// ExportReport renders Report as an xlsx workbook.
func (s *Service) ExportReport(ctx context.Context, examID int64) ([]byte, error) {
	rows, err := s.Report(ctx, examID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	headers := []string{"Username", "Full Name", "Score", "Percentage", "Time Taken", "Time Remaining", "Time Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, r := range rows {
		values := []any{r.Username, r.FullName, r.Score, r.Percentage, r.TimeTaken, r.TimeRemaining, r.TimeTotal}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// AverageRatings returns every exam with its mean review rating rounded to
// two decimals, 0 when nobody rated it.
func (s *Service) AverageRatings(ctx context.Context) ([]ExamRating, error) {
	var (
		exams []exam.ExamSummary
		stats []exam.RatingStat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exams, err = s.allExams(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.src.RatingStats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byExam := make(map[int64]exam.RatingStat, len(stats))
	for _, st := range stats {
		byExam[st.ExamID] = st
	}
	out := make([]ExamRating, 0, len(exams))
	for _, e := range exams {
		r := ExamRating{ExamID: e.ID, ExamName: e.Name}
		if st, ok := byExam[e.ID]; ok && st.Count > 0 {
			avg, _ := decimal.NewFromInt(int64(st.Sum)).Div(decimal.NewFromInt(int64(st.Count))).Round(2).Float64()
			r.AverageRating = avg
			r.Ratings = st.Count
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) allExams(ctx context.Context) ([]exam.ExamSummary, error) {
	var out []exam.ExamSummary
	for page := 1; ; page++ {
		items, total, err := s.src.ListExams(ctx, exam.ExamFilter{Page: page, Limit: ratingsPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) == 0 || len(out) >= total {
			return out, nil
		}
	}
}
