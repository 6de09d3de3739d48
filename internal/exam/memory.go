package exam

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type enrollmentKey struct {
	userID int64
	examID int64
}

// MemoryStore is a process-local Store. It serves the in-memory server
// mode and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	users UserLookup

	nextExamID     int64
	nextQuestionID int64
	nextAttemptID  int64

	exams       map[int64]*Exam
	enrollments map[enrollmentKey]*Enrollment
	attempts    map[enrollmentKey]*Attempt

	onDelete []func(examID int64)
}

func NewMemoryStore(users UserLookup) *MemoryStore {
	return &MemoryStore{
		users:       users,
		exams:       make(map[int64]*Exam),
		enrollments: make(map[enrollmentKey]*Enrollment),
		attempts:    make(map[enrollmentKey]*Attempt),
	}
}

func (m *MemoryStore) CreateExam(_ context.Context, e *Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextExamID++
	e.ID = m.nextExamID
	m.assignQuestionIDs(e.Module.Questions)
	if e.Participants == nil {
		e.Participants = []int64{}
	}
	m.exams[e.ID] = cloneExam(e)
	return nil
}

func (m *MemoryStore) GetExam(_ context.Context, id int64) (*Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, ErrExamNotFound
	}
	return cloneExam(e), nil
}

func (m *MemoryStore) ListExams(_ context.Context, f ExamFilter) ([]ExamSummary, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kw := strings.ToLower(strings.TrimSpace(f.Keyword))
	matched := make([]*Exam, 0, len(m.exams))
	for _, e := range m.exams {
		if kw == "" || strings.Contains(strings.ToLower(e.Name), kw) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	out := make([]ExamSummary, 0, end-start)
	for _, e := range matched[start:end] {
		out = append(out, summaryOf(e))
	}
	return out, total, nil
}

func (m *MemoryStore) UpdateExam(_ context.Context, e *Exam, replaceQuestions bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.exams[e.ID]
	if !ok {
		return ErrExamNotFound
	}
	if replaceQuestions {
		m.assignQuestionIDs(e.Module.Questions)
	} else {
		e.Module.Questions = cur.Module.Questions
	}
	e.Participants = cur.Participants
	e.Image = cur.Image
	m.exams[e.ID] = cloneExam(e)
	return nil
}

// OnDelete registers fn to run after an exam is deleted, so stores keyed by
// exam outside this one can drop their rows too.
func (m *MemoryStore) OnDelete(fn func(examID int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDelete = append(m.onDelete, fn)
}

func (m *MemoryStore) DeleteExam(_ context.Context, id int64) error {
	m.mu.Lock()
	if _, ok := m.exams[id]; !ok {
		m.mu.Unlock()
		return ErrExamNotFound
	}
	delete(m.exams, id)
	for k := range m.enrollments {
		if k.examID == id {
			delete(m.enrollments, k)
		}
	}
	for k := range m.attempts {
		if k.examID == id {
			delete(m.attempts, k)
		}
	}
	hooks := append([]func(int64){}, m.onDelete...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

func (m *MemoryStore) SetExamImage(_ context.Context, id int64, img Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return ErrExamNotFound
	}
	e.Image = &img
	return nil
}

func (m *MemoryStore) HasAttempts(_ context.Context, examID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.attempts {
		if k.examID == examID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreateEnrollment(_ context.Context, en *Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[en.ExamID]; !ok {
		return ErrExamNotFound
	}
	key := enrollmentKey{userID: en.UserID, examID: en.ExamID}
	if _, exists := m.enrollments[key]; exists {
		return ErrAlreadyEnrolled
	}
	cp := *en
	m.enrollments[key] = &cp
	return nil
}

func (m *MemoryStore) GetEnrollment(_ context.Context, userID, examID int64) (*Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	en, ok := m.enrollments[enrollmentKey{userID: userID, examID: examID}]
	if !ok {
		return nil, ErrNotEnrolled
	}
	cp := *en
	return &cp, nil
}

func (m *MemoryStore) ListEnrollments(_ context.Context, userID int64) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Enrollment, 0)
	for k, en := range m.enrollments {
		if k.userID == userID {
			out = append(out, *en)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExamID < out[j].ExamID })
	return out, nil
}

func (m *MemoryStore) CreateAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollmentKey{userID: a.UserID, examID: a.ExamID}
	if _, exists := m.attempts[key]; exists {
		return ErrDuplicateAttempt
	}
	m.nextAttemptID++
	a.ID = m.nextAttemptID
	m.attempts[key] = cloneAttempt(a)
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, userID, examID int64) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[enrollmentKey{userID: userID, examID: examID}]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *MemoryStore) FinalizeAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollmentKey{userID: a.UserID, examID: a.ExamID}
	cur, ok := m.attempts[key]
	if !ok {
		return ErrAttemptNotFound
	}
	if cur.Status != AttemptIncomplete {
		return ErrAlreadyCompleted
	}
	e, ok := m.exams[a.ExamID]
	if !ok {
		return ErrExamNotFound
	}

	next := cloneAttempt(a)
	next.Review = cur.Review
	m.attempts[key] = next
	if en, ok := m.enrollments[key]; ok {
		en.Status = EnrollmentCompleted
	}
	for _, p := range e.Participants {
		if p == a.UserID {
			return nil
		}
	}
	e.Participants = append(e.Participants, a.UserID)
	return nil
}

func (m *MemoryStore) SaveReview(_ context.Context, userID, examID int64, r Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[enrollmentKey{userID: userID, examID: examID}]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Review = &r
	return nil
}

func (m *MemoryStore) ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error) {
	m.mu.RLock()
	out := make([]AttemptRecord, 0)
	for k, a := range m.attempts {
		if examID == 0 || k.examID == examID {
			out = append(out, AttemptRecord{Attempt: *cloneAttempt(a)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return m.withNames(ctx, out)
}

func (m *MemoryStore) TopAttempts(ctx context.Context, examID int64, limit int) ([]AttemptRecord, error) {
	m.mu.RLock()
	out := make([]AttemptRecord, 0)
	for k, a := range m.attempts {
		if k.examID == examID {
			out = append(out, AttemptRecord{Attempt: *cloneAttempt(a)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return RankBefore(&out[i].Attempt, &out[j].Attempt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return m.withNames(ctx, out)
}

func (m *MemoryStore) RatingStats(_ context.Context) ([]RatingStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byExam := make(map[int64]*RatingStat)
	for k, a := range m.attempts {
		if a.Review == nil {
			continue
		}
		st, ok := byExam[k.examID]
		if !ok {
			st = &RatingStat{ExamID: k.examID}
			byExam[k.examID] = st
		}
		st.Count++
		st.Sum += a.Review.Rating
	}
	out := make([]RatingStat, 0, len(byExam))
	for _, st := range byExam {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExamID < out[j].ExamID })
	return out, nil
}

func (m *MemoryStore) withNames(ctx context.Context, recs []AttemptRecord) ([]AttemptRecord, error) {
	if m.users == nil {
		return recs, nil
	}
	for i := range recs {
		u, err := m.users.GetUser(ctx, recs[i].UserID)
		if err != nil {
			continue
		}
		recs[i].Username = u.Username
		recs[i].FullName = u.FullName
	}
	return recs, nil
}

func (m *MemoryStore) assignQuestionIDs(qs []Question) {
	for i := range qs {
		m.nextQuestionID++
		qs[i].ID = m.nextQuestionID
	}
}

// RankBefore orders attempts for leaderboards: higher score first, then the
// earlier finisher, then the older attempt. Unfinished attempts rank after
// finished ones with the same score.
func RankBefore(a, b *Attempt) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	switch {
	case a.EndTime != nil && b.EndTime == nil:
		return true
	case a.EndTime == nil && b.EndTime != nil:
		return false
	case a.EndTime != nil && b.EndTime != nil && !a.EndTime.Equal(*b.EndTime):
		return a.EndTime.Before(*b.EndTime)
	}
	return a.ID < b.ID
}

func summaryOf(e *Exam) ExamSummary {
	return ExamSummary{
		ID:            e.ID,
		Name:          e.Name,
		Description:   e.Description,
		Institution:   e.Institution,
		ModuleName:    e.Module.Name,
		QuestionCount: len(e.Module.Questions),
		Price:         e.Price,
		ScheduledDate: e.ScheduledDate,
		Duration:      e.Duration,
		Image:         e.Image,
		CreatedAt:     e.CreatedAt,
	}
}

func cloneExam(e *Exam) *Exam {
	cp := *e
	cp.Rules = append([]string{}, e.Rules...)
	cp.Participants = append([]int64{}, e.Participants...)
	cp.Module.Questions = make([]Question, len(e.Module.Questions))
	for i, q := range e.Module.Questions {
		q.CorrectOptionIndex = append([]int(nil), q.CorrectOptionIndex...)
		q.Options.EN = append([]string{}, q.Options.EN...)
		q.Options.HI = append([]string{}, q.Options.HI...)
		cp.Module.Questions[i] = q
	}
	if e.Image != nil {
		img := *e.Image
		cp.Image = &img
	}
	return &cp
}

func cloneAttempt(a *Attempt) *Attempt {
	cp := *a
	cp.Answers = append([]Answer{}, a.Answers...)
	cp.IncorrectQuestions = append([]int64{}, a.IncorrectQuestions...)
	if a.SubjectWiseMarks != nil {
		cp.SubjectWiseMarks = make(map[string]SubjectMarks, len(a.SubjectWiseMarks))
		for k, v := range a.SubjectWiseMarks {
			cp.SubjectWiseMarks[k] = v
		}
	}
	if a.EndTime != nil {
		t := *a.EndTime
		cp.EndTime = &t
	}
	if a.Review != nil {
		r := *a.Review
		cp.Review = &r
	}
	return &cp
}
