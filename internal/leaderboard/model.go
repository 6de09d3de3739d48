package leaderboard

import (
	"context"
	"time"

	"examportal/internal/exam"
)

const DefaultTopN = 10

const maxTopN = 100

// Source is the read side of the exam store used for rankings and reports.
type Source interface {
	GetExam(ctx context.Context, id int64) (*exam.Exam, error)
	ListExams(ctx context.Context, f exam.ExamFilter) ([]exam.ExamSummary, int, error)
	ListAttempts(ctx context.Context, examID int64) ([]exam.AttemptRecord, error)
	TopAttempts(ctx context.Context, examID int64, limit int) ([]exam.AttemptRecord, error)
	RatingStats(ctx context.Context) ([]exam.RatingStat, error)
}

type Entry struct {
	Rank     int     `json:"rank"`
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	Score    float64 `json:"score"`
}

type Board struct {
	ExamID      int64     `json:"exam_id"`
	Entries     []Entry   `json:"entries"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ReportRow is one attempt in the exported report. Times are minutes.
type ReportRow struct {
	Username      string  `json:"username"`
	FullName      string  `json:"full_name"`
	Score         float64 `json:"score"`
	Percentage    float64 `json:"percentage"`
	TimeTaken     int     `json:"time_taken"`
	TimeRemaining int     `json:"time_remaining"`
	TimeTotal     int     `json:"time_total"`
}

type ExamRating struct {
	ExamID        int64   `json:"exam_id"`
	ExamName      string  `json:"exam_name"`
	AverageRating float64 `json:"average_rating"`
	Ratings       int     `json:"ratings"`
}
