package exam

import (
	"time"

	"examportal/internal/apperr"

	"github.com/shopspring/decimal"
)

const (
	EnrollmentEnrolled  = "enrolled"
	EnrollmentCompleted = "completed"

	AttemptIncomplete = "incomplete"
	AttemptCompleted  = "completed"

	DefaultSubject = "General"
)

var (
	ErrExamNotFound        = apperr.NotFound("exam_not_found", "exam not found")
	ErrAttemptNotFound     = apperr.NotFound("attempt_not_found", "attempt not found")
	ErrQuestionNotFound    = apperr.Integrity("question_not_found", "answer references a question that is not in the exam")
	ErrQuestionDataInvalid = apperr.Integrity("question_data_invalid", "exam has no questions")
	ErrNotEnrolled         = apperr.Authorization("not_enrolled", "not enrolled in this exam")
	ErrStudentOnly         = apperr.Authorization("student_only", "only students can enroll")
	ErrForbidden           = apperr.Authorization("forbidden", "forbidden")
	ErrAlreadyEnrolled     = apperr.Conflict("already_enrolled", "already enrolled in this exam")
	ErrDuplicateAttempt    = apperr.Conflict("duplicate_attempt", "attempt already exists for this exam")
	ErrAlreadyCompleted    = apperr.Conflict("already_completed", "attempt already completed")
	ErrAttemptNotFinal     = apperr.Conflict("attempt_not_final", "attempt is not completed yet")
	ErrExamHasAttempts     = apperr.Conflict("exam_has_attempts", "questions cannot be replaced after attempts exist")
	ErrPaymentRequired     = apperr.Validation("payment_required", "payment required for this exam")
	ErrIdentityRequired    = apperr.Validation("identity_required", "identity image is required")
	ErrInvalidRating       = apperr.Validation("invalid_rating", "rating must be between 1 and 5")
	ErrInvalidSchedule     = apperr.Validation("invalid_schedule", "scheduled date must be in the future")
	ErrDuplicateAnswer     = apperr.Validation("duplicate_answer", "question answered more than once")
)

// Text is a bilingual prompt.
type Text struct {
	EN string `json:"en" yaml:"en"`
	HI string `json:"hi" yaml:"hi"`
}

// Options holds the answer choices per language. Both lists share indices.
type Options struct {
	EN []string `json:"en" yaml:"en"`
	HI []string `json:"hi" yaml:"hi"`
}

type Question struct {
	ID                 int64   `json:"id"`
	Text               Text    `json:"text"`
	Options            Options `json:"options"`
	CorrectOptionIndex []int   `json:"correct_option_index,omitempty"`
	Marks              float64 `json:"marks"`
	NegativeMarks      float64 `json:"negative_marks"`
	Subject            string  `json:"subject"`
	IsMultiOption      bool    `json:"is_multi_option"`
	Image              string  `json:"image,omitempty"`
}

// Module is the ordered question set of an exam.
type Module struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

type Image struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

type Exam struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Institution   string          `json:"institution,omitempty"`
	Module        Module          `json:"module"`
	Rules         []string        `json:"rules"`
	Price         decimal.Decimal `json:"price"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Duration      int             `json:"duration"`
	CreatedBy     int64           `json:"created_by"`
	Participants  []int64         `json:"participants"`
	Image         *Image          `json:"image,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExamSummary is the listing projection of an exam.
type ExamSummary struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Institution   string          `json:"institution,omitempty"`
	ModuleName    string          `json:"module_name"`
	QuestionCount int             `json:"question_count"`
	Price         decimal.Decimal `json:"price"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Duration      int             `json:"duration"`
	Image         *Image          `json:"image,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ExamFilter struct {
	Keyword string
	Page    int
	Limit   int
}

type ExamPage struct {
	Items []ExamSummary `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type Enrollment struct {
	UserID     int64     `json:"user_id"`
	ExamID     int64     `json:"exam_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Status     string    `json:"status"`
}

type Answer struct {
	QuestionID          int64 `json:"question_id"`
	SelectedOptionIndex int   `json:"selected_option_index"`
}

type SubjectMarks struct {
	Score      float64 `json:"score"`
	TotalMarks float64 `json:"total_marks"`
}

type Review struct {
	Rating     int       `json:"rating"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

type Attempt struct {
	ID                 int64                   `json:"id"`
	UserID             int64                   `json:"user_id"`
	ExamID             int64                   `json:"exam_id"`
	IdentityImage      string                  `json:"identity_image"`
	StartTime          time.Time               `json:"start_time"`
	EndTime            *time.Time              `json:"end_time,omitempty"`
	Answers            []Answer                `json:"answers"`
	IncorrectQuestions []int64                 `json:"incorrect_questions"`
	Score              float64                 `json:"score"`
	SubjectWiseMarks   map[string]SubjectMarks `json:"subject_wise_marks"`
	Status             string                  `json:"status"`
	Review             *Review                 `json:"review,omitempty"`
}

// AttemptRecord is an attempt joined with its owner's names.
type AttemptRecord struct {
	Attempt
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// RatingStat aggregates the review ratings of one exam.
type RatingStat struct {
	ExamID int64
	Count  int
	Sum    int
}
