package exam

import (
	"fmt"
	"strings"
)

type ScoreResult struct {
	Score              float64                 `json:"score"`
	SubjectWiseMarks   map[string]SubjectMarks `json:"subject_wise_marks"`
	IncorrectQuestions []int64                 `json:"incorrect_questions"`
}

// ScoreAnswers grades answers against the exam's questions. A selection is
// correct when it is a member of the question's correct set; a wrong
// selection subtracts the question's negative marks. Subject buckets
// accumulate the marks of every answered question regardless of outcome.
func ScoreAnswers(questions []Question, answers []Answer) (ScoreResult, error) {
	byID := make(map[int64]*Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	res := ScoreResult{
		SubjectWiseMarks:   make(map[string]SubjectMarks),
		IncorrectQuestions: make([]int64, 0),
	}
	for _, ans := range answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			return ScoreResult{}, ErrQuestionNotFound.WithMessage(fmt.Sprintf("question %d is not part of this exam", ans.QuestionID))
		}

		subject := subjectOf(q)
		bucket := res.SubjectWiseMarks[subject]
		bucket.TotalMarks += q.Marks

		if isCorrectSelection(q, ans.SelectedOptionIndex) {
			res.Score += q.Marks
			bucket.Score += q.Marks
		} else {
			res.Score -= q.NegativeMarks
			bucket.Score -= q.NegativeMarks
			res.IncorrectQuestions = append(res.IncorrectQuestions, q.ID)
		}
		res.SubjectWiseMarks[subject] = bucket
	}
	return res, nil
}

func isCorrectSelection(q *Question, selected int) bool {
	for _, idx := range q.CorrectOptionIndex {
		if idx == selected {
			return true
		}
	}
	return false
}

func subjectOf(q *Question) string {
	if s := strings.TrimSpace(q.Subject); s != "" {
		return s
	}
	return DefaultSubject
}

// duplicateAnswer returns the first question id answered more than once.
func duplicateAnswer(answers []Answer) (int64, bool) {
	seen := make(map[int64]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.QuestionID]; ok {
			return a.QuestionID, true
		}
		seen[a.QuestionID] = struct{}{}
	}
	return 0, false
}
