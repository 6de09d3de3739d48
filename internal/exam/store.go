package exam

import (
	"context"

	"examportal/internal/auth"
)

// Store persists exams, enrollments and attempts.
type Store interface {
	CreateExam(ctx context.Context, e *Exam) error
	GetExam(ctx context.Context, id int64) (*Exam, error)
	ListExams(ctx context.Context, f ExamFilter) ([]ExamSummary, int, error)
	// UpdateExam writes the exam fields and, when replaceQuestions is set,
	// swaps the whole question set.
	UpdateExam(ctx context.Context, e *Exam, replaceQuestions bool) error
	// DeleteExam removes the exam with its enrollments, attempts and payments.
	DeleteExam(ctx context.Context, id int64) error
	SetExamImage(ctx context.Context, id int64, img Image) error
	HasAttempts(ctx context.Context, examID int64) (bool, error)

	CreateEnrollment(ctx context.Context, en *Enrollment) error
	GetEnrollment(ctx context.Context, userID, examID int64) (*Enrollment, error)
	ListEnrollments(ctx context.Context, userID int64) ([]Enrollment, error)

	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, userID, examID int64) (*Attempt, error)
	// FinalizeAttempt completes an incomplete attempt, marks the enrollment
	// completed and records the participant as one unit.
	FinalizeAttempt(ctx context.Context, a *Attempt) error
	SaveReview(ctx context.Context, userID, examID int64, r Review) error
	ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error)
	TopAttempts(ctx context.Context, examID int64, limit int) ([]AttemptRecord, error)
	RatingStats(ctx context.Context) ([]RatingStat, error)
}

// UserLookup resolves account names for attempt projections.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*auth.User, error)
}
