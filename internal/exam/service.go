package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examportal/internal/auth"
	"examportal/internal/validate"

	"github.com/sirupsen/logrus"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// SubmissionListener is told when an attempt has been finalized.
type SubmissionListener interface {
	AttemptSubmitted(ctx context.Context, examID int64)
}

type Service struct {
	store    Store
	now      func() time.Time
	log      logrus.FieldLogger
	listener SubmissionListener
}

type ServiceConfig struct {
	Now      func() time.Time
	Logger   logrus.FieldLogger
	Listener SubmissionListener
}

func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:    store,
		now:      cfg.Now,
		log:      cfg.Logger.WithField("component", "exam"),
		listener: cfg.Listener,
	}
}

func (s *Service) CreateExam(ctx context.Context, actor auth.Principal, in CreateExamInput) (*Exam, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !in.ScheduledDate.After(now) {
		return nil, ErrInvalidSchedule
	}

	e := &Exam{
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Institution:   strings.TrimSpace(in.Institution),
		Module:        in.Module.toModule(),
		Rules:         normalizeRules(in.Rules),
		Price:         in.Price,
		ScheduledDate: in.ScheduledDate.UTC(),
		Duration:      in.Duration,
		CreatedBy:     actor.ID,
		Participants:  []int64{},
		CreatedAt:     now,
	}
	if err := s.store.CreateExam(ctx, e); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": e.ID, "created_by": actor.ID, "questions": len(e.Module.Questions)}).Info("exam created")
	return e, nil
}

func (s *Service) ListExams(ctx context.Context, f ExamFilter) (*ExamPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	items, total, err := s.store.ListExams(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ExamPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// GetExam returns the exam as the actor may see it. Staff get the full
// exam. Enrolled students get a per-attempt shuffle with answer keys
// removed; anyone else gets the exam without its questions.
func (s *Service) GetExam(ctx context.Context, actor auth.Principal, examID int64) (*Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if actor.IsStaff() {
		return e, nil
	}

	if _, err := s.store.GetEnrollment(ctx, actor.ID, examID); err != nil {
		if !errors.Is(err, ErrNotEnrolled) {
			return nil, err
		}
		e.Module.Questions = []Question{}
		return e, nil
	}
	e.Module.Questions = StripAnswerKeys(ShuffleQuestions(e.Module.Questions, attemptSeed(actor.ID, examID)))
	return e, nil
}

func (s *Service) UpdateExam(ctx context.Context, actor auth.Principal, examID int64, in UpdateExamInput) (*Exam, error) {
	cur, err := s.ownedExam(ctx, actor, examID)
	if err != nil {
		return nil, err
	}

	merged := in.apply(createInputOf(cur))
	if err := validate.Struct(merged); err != nil {
		return nil, err
	}
	if in.ScheduledDate != nil && !in.ScheduledDate.After(s.now()) {
		return nil, ErrInvalidSchedule
	}
	replaceQuestions := in.Module != nil
	if replaceQuestions {
		has, err := s.store.HasAttempts(ctx, examID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, ErrExamHasAttempts
		}
	}

	next := *cur
	next.Name = strings.TrimSpace(merged.Name)
	next.Description = strings.TrimSpace(merged.Description)
	next.Institution = strings.TrimSpace(merged.Institution)
	next.Rules = normalizeRules(merged.Rules)
	next.Price = merged.Price
	next.ScheduledDate = merged.ScheduledDate.UTC()
	next.Duration = merged.Duration
	if replaceQuestions {
		next.Module = merged.Module.toModule()
	}
	if err := s.store.UpdateExam(ctx, &next, replaceQuestions); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": examID, "by": actor.ID, "questions_replaced": replaceQuestions}).Info("exam updated")
	return s.store.GetExam(ctx, examID)
}

func (s *Service) DeleteExam(ctx context.Context, actor auth.Principal, examID int64) error {
	if _, err := s.ownedExam(ctx, actor, examID); err != nil {
		return err
	}
	if err := s.store.DeleteExam(ctx, examID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"exam_id": examID, "by": actor.ID}).Info("exam deleted")
	return nil
}

func (s *Service) SetExamImage(ctx context.Context, actor auth.Principal, examID int64, img Image) (*Exam, error) {
	if _, err := s.ownedExam(ctx, actor, examID); err != nil {
		return nil, err
	}
	if err := s.store.SetExamImage(ctx, examID, img); err != nil {
		return nil, err
	}
	return s.store.GetExam(ctx, examID)
}

// Enroll grants free access to an exam. Paid exams go through payments.
func (s *Service) Enroll(ctx context.Context, actor auth.Principal, examID int64) (*Enrollment, error) {
	if actor.Role != auth.RoleStudent {
		return nil, ErrStudentOnly
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.Price.IsPositive() {
		return nil, ErrPaymentRequired
	}

	en := &Enrollment{UserID: actor.ID, ExamID: examID, EnrolledAt: s.now().UTC(), Status: EnrollmentEnrolled}
	if err := s.store.CreateEnrollment(ctx, en); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": examID, "user_id": actor.ID}).Info("enrolled")
	return en, nil
}

func (s *Service) ListEnrollments(ctx context.Context, actor auth.Principal) ([]Enrollment, error) {
	return s.store.ListEnrollments(ctx, actor.ID)
}

func (s *Service) StartAttempt(ctx context.Context, actor auth.Principal, examID int64, identityImage string) (*Attempt, error) {
	identityImage = strings.TrimSpace(identityImage)
	if identityImage == "" {
		return nil, ErrIdentityRequired
	}
	if _, err := s.store.GetEnrollment(ctx, actor.ID, examID); err != nil {
		return nil, err
	}

	a := &Attempt{
		UserID:             actor.ID,
		ExamID:             examID,
		IdentityImage:      identityImage,
		StartTime:          s.now().UTC(),
		Answers:            []Answer{},
		IncorrectQuestions: []int64{},
		SubjectWiseMarks:   map[string]SubjectMarks{},
		Status:             AttemptIncomplete,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"exam_id": examID, "user_id": actor.ID, "attempt_id": a.ID}).Info("attempt started")
	return a, nil
}

// SubmitAttempt scores and finalizes the actor's attempt. A second submit
// is rejected with ErrAlreadyCompleted.
func (s *Service) SubmitAttempt(ctx context.Context, actor auth.Principal, examID int64, answers []Answer) (*Attempt, error) {
	a, err := s.store.GetAttempt(ctx, actor.ID, examID)
	if err != nil {
		return nil, err
	}
	if a.Status != AttemptIncomplete {
		return nil, ErrAlreadyCompleted
	}
	if qid, dup := duplicateAnswer(answers); dup {
		return nil, ErrDuplicateAnswer.WithMessage(fmt.Sprintf("question %d answered more than once", qid))
	}

	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	res, err := ScoreAnswers(e.Module.Questions, answers)
	if err != nil {
		return nil, err
	}

	end := s.now().UTC()
	a.Answers = append([]Answer{}, answers...)
	a.Score = res.Score
	a.IncorrectQuestions = res.IncorrectQuestions
	a.SubjectWiseMarks = res.SubjectWiseMarks
	a.Status = AttemptCompleted
	a.EndTime = &end
	if err := s.store.FinalizeAttempt(ctx, a); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"exam_id":    examID,
		"user_id":    actor.ID,
		"attempt_id": a.ID,
		"score":      a.Score,
		"incorrect":  len(a.IncorrectQuestions),
	}).Info("attempt submitted")
	if s.listener != nil {
		s.listener.AttemptSubmitted(ctx, examID)
	}
	return a, nil
}

// SubmitReview attaches or replaces the rating on the actor's attempt,
// whether or not the attempt is finished.
func (s *Service) SubmitReview(ctx context.Context, actor auth.Principal, examID int64, rating int) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	r := Review{Rating: rating, ReviewedAt: s.now().UTC()}
	if err := s.store.SaveReview(ctx, actor.ID, examID, r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Service) GetResult(ctx context.Context, actor auth.Principal, examID int64) (*Result, error) {
	a, err := s.store.GetAttempt(ctx, actor.ID, examID)
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return ComputeResult(e, a)
}

// ListAttempts returns attempts with owner names; examID 0 lists all exams.
func (s *Service) ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error) {
	return s.store.ListAttempts(ctx, examID)
}

func (s *Service) ownedExam(ctx context.Context, actor auth.Principal, examID int64) (*Exam, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && e.CreatedBy != actor.ID {
		return nil, ErrForbidden
	}
	return e, nil
}
