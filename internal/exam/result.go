package exam

import "time"

type PerformanceStats struct {
	TotalQuestions   int     `json:"total_questions"`
	TotalMarks       float64 `json:"total_marks"`
	Score            float64 `json:"score"`
	PercentageScore  float64 `json:"percentage_score"`
	CorrectQuestions int     `json:"correct_questions"`
	TimeTaken        int     `json:"time_taken"`
	TimeRemaining    int     `json:"time_remaining"`
	TimeTotal        int     `json:"time_total"`
}

type IncorrectQuestionDetail struct {
	QuestionID     int64    `json:"question_id"`
	Text           string   `json:"text"`
	CorrectAnswers []string `json:"correct_answers"`
	SelectedAnswer string   `json:"selected_answer"`
	Marks          float64  `json:"marks"`
}

type Result struct {
	ExamID             int64                     `json:"exam_id"`
	ExamName           string                    `json:"exam_name"`
	PerformanceStats   PerformanceStats          `json:"performance_stats"`
	SubjectWiseMarks   map[string]SubjectMarks   `json:"subject_wise_marks"`
	IncorrectQuestions []IncorrectQuestionDetail `json:"incorrect_questions"`
}

// TotalMarks sums the marks of every question in the exam.
func TotalMarks(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Marks
	}
	return total
}

// Percentage is the canonical score percentage used by results and reports.
func Percentage(score, totalMarks float64) float64 {
	if totalMarks == 0 {
		return 0
	}
	return score / totalMarks * 100
}

// MinutesTaken truncates the attempt's elapsed time to whole minutes.
// Unfinished attempts count as zero.
func MinutesTaken(a *Attempt) int {
	if a.EndTime == nil {
		return 0
	}
	return int(a.EndTime.Sub(a.StartTime) / time.Minute)
}

// ComputeResult derives the read-side result of a completed attempt.
func ComputeResult(e *Exam, a *Attempt) (*Result, error) {
	questions := e.Module.Questions
	if len(questions) == 0 {
		return nil, ErrQuestionDataInvalid
	}
	if a.Status != AttemptCompleted {
		return nil, ErrAttemptNotFinal
	}

	byID := make(map[int64]*Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	selected := make(map[int64]int, len(a.Answers))
	for _, ans := range a.Answers {
		selected[ans.QuestionID] = ans.SelectedOptionIndex
	}

	details := make([]IncorrectQuestionDetail, 0, len(a.IncorrectQuestions))
	for _, qid := range a.IncorrectQuestions {
		q, ok := byID[qid]
		if !ok {
			continue
		}
		d := IncorrectQuestionDetail{
			QuestionID:     q.ID,
			Text:           q.Text.EN,
			CorrectAnswers: make([]string, 0, len(q.CorrectOptionIndex)),
			Marks:          q.Marks,
		}
		for _, idx := range q.CorrectOptionIndex {
			d.CorrectAnswers = append(d.CorrectAnswers, optionText(q, idx))
		}
		if idx, ok := selected[qid]; ok {
			d.SelectedAnswer = optionText(q, idx)
		}
		details = append(details, d)
	}

	totalMarks := TotalMarks(questions)
	taken := MinutesTaken(a)
	subjects := a.SubjectWiseMarks
	if subjects == nil {
		subjects = map[string]SubjectMarks{}
	}

	return &Result{
		ExamID:   e.ID,
		ExamName: e.Name,
		PerformanceStats: PerformanceStats{
			TotalQuestions:   len(questions),
			TotalMarks:       totalMarks,
			Score:            a.Score,
			PercentageScore:  Percentage(a.Score, totalMarks),
			CorrectQuestions: len(questions) - len(a.IncorrectQuestions),
			TimeTaken:        taken,
			TimeRemaining:    e.Duration - taken,
			TimeTotal:        e.Duration,
		},
		SubjectWiseMarks:   subjects,
		IncorrectQuestions: details,
	}, nil
}

func optionText(q *Question, idx int) string {
	if idx < 0 || idx >= len(q.Options.EN) {
		return ""
	}
	return q.Options.EN[idx]
}
