package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateExam(ctx context.Context, e *Exam) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rules, err := json.Marshal(nonNilStrings(e.Rules))
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO exams (
			name, description, institution, module_name, rules, price,
			scheduled_at, duration_minutes, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
		RETURNING id
	`, e.Name, e.Description, e.Institution, e.Module.Name, string(rules), e.Price,
		e.ScheduledDate, e.Duration, e.CreatedBy, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	if err := insertQuestions(ctx, tx, e.ID, e.Module.Questions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	if e.Participants == nil {
		e.Participants = []int64{}
	}
	return nil
}

func (s *PostgresStore) GetExam(ctx context.Context, id int64) (*Exam, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, institution, module_name, rules, price,
		       scheduled_at, duration_minutes, created_by, image_public_id, image_url, created_at
		FROM exams
		WHERE id = $1
	`, id)

	var e Exam
	var rules []byte
	var imgID, imgURL sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Institution, &e.Module.Name, &rules, &e.Price,
		&e.ScheduledDate, &e.Duration, &e.CreatedBy, &imgID, &imgURL, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("query exam: %w", err)
	}
	if err := json.Unmarshal(rules, &e.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if imgID.Valid && imgURL.Valid {
		e.Image = &Image{PublicID: imgID.String, SecureURL: imgURL.String}
	}

	questions, err := loadQuestions(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	e.Module.Questions = questions

	participants, err := loadParticipants(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	e.Participants = participants
	return &e, nil
}

func (s *PostgresStore) ListExams(ctx context.Context, f ExamFilter) ([]ExamSummary, int, error) {
	keyword := strings.TrimSpace(f.Keyword)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM exams
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
	`, keyword).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.description, e.institution, e.module_name,
		       (SELECT COUNT(*) FROM exam_questions q WHERE q.exam_id = e.id),
		       e.price, e.scheduled_at, e.duration_minutes, e.image_public_id, e.image_url, e.created_at
		FROM exams e
		WHERE ($1 = '' OR e.name ILIKE '%' || $1 || '%')
		ORDER BY e.id DESC
		LIMIT $2 OFFSET $3
	`, keyword, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	out := make([]ExamSummary, 0)
	for rows.Next() {
		var it ExamSummary
		var imgID, imgURL sql.NullString
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Institution, &it.ModuleName, &it.QuestionCount,
			&it.Price, &it.ScheduledDate, &it.Duration, &imgID, &imgURL, &it.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan exam: %w", err)
		}
		if imgID.Valid && imgURL.Valid {
			it.Image = &Image{PublicID: imgID.String, SecureURL: imgURL.String}
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate exams: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) UpdateExam(ctx context.Context, e *Exam, replaceQuestions bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rules, err := json.Marshal(nonNilStrings(e.Rules))
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE exams
		SET name = $2,
		    description = $3,
		    institution = $4,
		    module_name = $5,
		    rules = $6::jsonb,
		    price = $7,
		    scheduled_at = $8,
		    duration_minutes = $9,
		    updated_at = now()
		WHERE id = $1
	`, e.ID, e.Name, e.Description, e.Institution, e.Module.Name, string(rules), e.Price, e.ScheduledDate, e.Duration)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}

	if replaceQuestions {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, e.ID); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		if err := insertQuestions(ctx, tx, e.ID, e.Module.Questions); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) DeleteExam(ctx context.Context, id int64) error {
	// Enrollments, attempts, participants and payments cascade.
	res, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}
	return nil
}

func (s *PostgresStore) SetExamImage(ctx context.Context, id int64, img Image) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE exams
		SET image_public_id = $2, image_url = $3, updated_at = now()
		WHERE id = $1
	`, id, img.PublicID, img.SecureURL)
	if err != nil {
		return fmt.Errorf("update exam image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExamNotFound
	}
	return nil
}

func (s *PostgresStore) HasAttempts(ctx context.Context, examID int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM attempts WHERE exam_id = $1)`, examID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check attempts: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateEnrollment(ctx context.Context, en *Enrollment) error {
	return InsertEnrollment(ctx, s.db, en)
}

// InsertEnrollment writes an enrollment row through q, which may be a
// transaction owned by another component.
func InsertEnrollment(ctx context.Context, q queryable, en *Enrollment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO enrollments (user_id, exam_id, enrolled_at, status)
		VALUES ($1, $2, $3, $4)
	`, en.UserID, en.ExamID, en.EnrolledAt, en.Status)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrAlreadyEnrolled
		case pgForeignKeyViolation:
			return ErrExamNotFound
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEnrollment(ctx context.Context, userID, examID int64) (*Enrollment, error) {
	var en Enrollment
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, exam_id, enrolled_at, status
		FROM enrollments
		WHERE user_id = $1 AND exam_id = $2
	`, userID, examID).Scan(&en.UserID, &en.ExamID, &en.EnrolledAt, &en.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return &en, nil
}

func (s *PostgresStore) ListEnrollments(ctx context.Context, userID int64) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, exam_id, enrolled_at, status
		FROM enrollments
		WHERE user_id = $1
		ORDER BY exam_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	out := make([]Enrollment, 0)
	for rows.Next() {
		var en Enrollment
		if err := rows.Scan(&en.UserID, &en.ExamID, &en.EnrolledAt, &en.Status); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attempts (user_id, exam_id, identity_image, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.UserID, a.ExamID, a.IdentityImage, a.StartTime, a.Status).Scan(&a.ID)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateAttempt
		case pgForeignKeyViolation:
			return ErrExamNotFound
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

const attemptColumns = `
	a.id, a.user_id, a.exam_id, a.identity_image, a.started_at, a.ended_at, a.answers,
	a.incorrect_questions, a.score, a.subject_marks, a.status, a.review_rating, a.reviewed_at`

func (s *PostgresStore) GetAttempt(ctx context.Context, userID, examID int64) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts a
		WHERE a.user_id = $1 AND a.exam_id = $2
	`, userID, examID)

	a, err := scanAttempt(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("query attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FinalizeAttempt(ctx context.Context, a *Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	incorrect, err := json.Marshal(a.IncorrectQuestions)
	if err != nil {
		return fmt.Errorf("encode incorrect questions: %w", err)
	}
	subjects, err := json.Marshal(a.SubjectWiseMarks)
	if err != nil {
		return fmt.Errorf("encode subject marks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET answers = $3::jsonb,
		    incorrect_questions = $4::jsonb,
		    score = $5,
		    subject_marks = $6::jsonb,
		    status = $7,
		    ended_at = $8
		WHERE user_id = $1 AND exam_id = $2 AND status = 'incomplete'
	`, a.UserID, a.ExamID, string(answers), string(incorrect), a.Score, string(subjects), AttemptCompleted, a.EndTime)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyCompleted
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $3
		WHERE user_id = $1 AND exam_id = $2
	`, a.UserID, a.ExamID, EnrollmentCompleted); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exam_participants (exam_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (exam_id, user_id) DO NOTHING
	`, a.ExamID, a.UserID, a.EndTime); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveReview(ctx context.Context, userID, examID int64, r Review) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attempts
		SET review_rating = $3, reviewed_at = $4
		WHERE user_id = $1 AND exam_id = $2
	`, userID, examID, r.Rating, r.ReviewedAt)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`, u.username, u.full_name
		FROM attempts a
		JOIN users u ON u.id = a.user_id
		WHERE ($1 = 0 OR a.exam_id = $1)
		ORDER BY a.id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return scanAttemptRecords(rows)
}

func (s *PostgresStore) TopAttempts(ctx context.Context, examID int64, limit int) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`, u.username, u.full_name
		FROM attempts a
		JOIN users u ON u.id = a.user_id
		WHERE a.exam_id = $1
		ORDER BY a.score DESC, a.ended_at ASC NULLS LAST, a.id ASC
		LIMIT $2
	`, examID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top attempts: %w", err)
	}
	return scanAttemptRecords(rows)
}

func (s *PostgresStore) RatingStats(ctx context.Context) ([]RatingStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exam_id, COUNT(*), COALESCE(SUM(review_rating), 0)
		FROM attempts
		WHERE review_rating IS NOT NULL
		GROUP BY exam_id
		ORDER BY exam_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	out := make([]RatingStat, 0)
	for rows.Next() {
		var st RatingStat
		if err := rows.Scan(&st.ExamID, &st.Count, &st.Sum); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return out, nil
}

// questionJSON encodes the jsonb columns of a question row. Missing option
// lists are stored as [] rather than null.
func questionJSON(qu *Question) (optEN, optHI, correct string, err error) {
	en, err := json.Marshal(nonNilStrings(qu.Options.EN))
	if err != nil {
		return "", "", "", fmt.Errorf("options_en: %w", err)
	}
	hi, err := json.Marshal(nonNilStrings(qu.Options.HI))
	if err != nil {
		return "", "", "", fmt.Errorf("options_hi: %w", err)
	}
	idx, err := json.Marshal(qu.CorrectOptionIndex)
	if err != nil {
		return "", "", "", fmt.Errorf("correct_option_index: %w", err)
	}
	return string(en), string(hi), string(idx), nil
}

func insertQuestions(ctx context.Context, q queryable, examID int64, questions []Question) error {
	for i := range questions {
		qu := &questions[i]
		optEN, optHI, correct, err := questionJSON(qu)
		if err != nil {
			return fmt.Errorf("encode question %d: %w", i+1, err)
		}
		err = q.QueryRowContext(ctx, `
			INSERT INTO exam_questions (
				exam_id, seq_no, text_en, text_hi, options_en, options_hi,
				correct_option_index, marks, negative_marks, subject, is_multi_option, image
			) VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12)
			RETURNING id
		`, examID, i+1, qu.Text.EN, qu.Text.HI, optEN, optHI, correct,
			qu.Marks, qu.NegativeMarks, qu.Subject, qu.IsMultiOption, qu.Image).Scan(&qu.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}
	return nil
}

func loadQuestions(ctx context.Context, q queryable, examID int64) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, text_en, text_hi, options_en, options_hi, correct_option_index,
		       marks, negative_marks, subject, is_multi_option, image
		FROM exam_questions
		WHERE exam_id = $1
		ORDER BY seq_no ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var qu Question
		var optEN, optHI, correct []byte
		if err := rows.Scan(&qu.ID, &qu.Text.EN, &qu.Text.HI, &optEN, &optHI, &correct,
			&qu.Marks, &qu.NegativeMarks, &qu.Subject, &qu.IsMultiOption, &qu.Image); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(optEN, &qu.Options.EN); err != nil {
			return nil, fmt.Errorf("decode options_en: %w", err)
		}
		if err := json.Unmarshal(optHI, &qu.Options.HI); err != nil {
			return nil, fmt.Errorf("decode options_hi: %w", err)
		}
		if err := json.Unmarshal(correct, &qu.CorrectOptionIndex); err != nil {
			return nil, fmt.Errorf("decode correct_option_index: %w", err)
		}
		out = append(out, qu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func loadParticipants(ctx context.Context, q queryable, examID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id
		FROM exam_participants
		WHERE exam_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

func scanAttempt(scan func(dest ...interface{}) error, extra ...interface{}) (*Attempt, error) {
	var a Attempt
	var ended, reviewedAt sql.NullTime
	var rating sql.NullInt64
	var answers, incorrect, subjects []byte
	dest := []interface{}{&a.ID, &a.UserID, &a.ExamID, &a.IdentityImage, &a.StartTime, &ended, &answers,
		&incorrect, &a.Score, &subjects, &a.Status, &rating, &reviewedAt}
	if err := scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		a.EndTime = &t
	}
	if rating.Valid {
		r := Review{Rating: int(rating.Int64)}
		if reviewedAt.Valid {
			r.ReviewedAt = reviewedAt.Time
		}
		a.Review = &r
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(incorrect, &a.IncorrectQuestions); err != nil {
		return nil, fmt.Errorf("decode incorrect questions: %w", err)
	}
	if err := json.Unmarshal(subjects, &a.SubjectWiseMarks); err != nil {
		return nil, fmt.Errorf("decode subject marks: %w", err)
	}
	return &a, nil
}

func scanAttemptRecords(rows *sql.Rows) ([]AttemptRecord, error) {
	defer rows.Close()
	out := make([]AttemptRecord, 0)
	for rows.Next() {
		var username, fullName string
		a, err := scanAttempt(rows.Scan, &username, &fullName)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, AttemptRecord{Attempt: *a, Username: username, FullName: fullName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
