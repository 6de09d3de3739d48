package exam

import (
	"errors"
	"reflect"
	"testing"
)

func twoQuestionSet() []Question {
	return []Question{
		{ID: 1, Marks: 5, NegativeMarks: 1, CorrectOptionIndex: []int{0}, Subject: "Physics"},
		{ID: 2, Marks: 3, NegativeMarks: 1, CorrectOptionIndex: []int{1, 2}, IsMultiOption: true},
	}
}

func TestScoreAnswers(t *testing.T) {
	tests := []struct {
		name      string
		answers   []Answer
		score     float64
		incorrect []int64
		subjects  map[string]SubjectMarks
	}{
		{
			name:      "all correct",
			answers:   []Answer{{QuestionID: 1, SelectedOptionIndex: 0}, {QuestionID: 2, SelectedOptionIndex: 2}},
			score:     8,
			incorrect: []int64{},
			subjects: map[string]SubjectMarks{
				"Physics": {Score: 5, TotalMarks: 5},
				"General": {Score: 3, TotalMarks: 3},
			},
		},
		{
			name:      "all wrong goes negative",
			answers:   []Answer{{QuestionID: 1, SelectedOptionIndex: 1}, {QuestionID: 2, SelectedOptionIndex: 0}},
			score:     -2,
			incorrect: []int64{1, 2},
			subjects: map[string]SubjectMarks{
				"Physics": {Score: -1, TotalMarks: 5},
				"General": {Score: -1, TotalMarks: 3},
			},
		},
		{
			name:      "partial submission",
			answers:   []Answer{{QuestionID: 2, SelectedOptionIndex: 1}},
			score:     3,
			incorrect: []int64{},
			subjects: map[string]SubjectMarks{
				"General": {Score: 3, TotalMarks: 3},
			},
		},
		{
			name:      "empty submission",
			answers:   nil,
			score:     0,
			incorrect: []int64{},
			subjects:  map[string]SubjectMarks{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScoreAnswers(twoQuestionSet(), tc.answers)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tc.score {
				t.Fatalf("score: got %v, want %v", got.Score, tc.score)
			}
			if !reflect.DeepEqual(got.IncorrectQuestions, tc.incorrect) {
				t.Fatalf("incorrect: got %v, want %v", got.IncorrectQuestions, tc.incorrect)
			}
			if !reflect.DeepEqual(got.SubjectWiseMarks, tc.subjects) {
				t.Fatalf("subjects: got %v, want %v", got.SubjectWiseMarks, tc.subjects)
			}
		})
	}
}

func TestScoreAnswersMultiCorrectMembership(t *testing.T) {
	q := []Question{{ID: 9, Marks: 4, NegativeMarks: 1, CorrectOptionIndex: []int{0, 2}, Subject: "Maths", IsMultiOption: true}}

	right, err := ScoreAnswers(q, []Answer{{QuestionID: 9, SelectedOptionIndex: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if right.Score != 4 || right.SubjectWiseMarks["Maths"].Score != 4 || len(right.IncorrectQuestions) != 0 {
		t.Fatalf("expected +4, got %+v", right)
	}

	wrong, err := ScoreAnswers(q, []Answer{{QuestionID: 9, SelectedOptionIndex: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrong.Score != -1 || wrong.SubjectWiseMarks["Maths"].Score != -1 {
		t.Fatalf("expected -1, got %+v", wrong)
	}
	if !reflect.DeepEqual(wrong.IncorrectQuestions, []int64{9}) {
		t.Fatalf("expected question 9 marked incorrect, got %v", wrong.IncorrectQuestions)
	}
}

func TestScoreAnswersUnknownQuestion(t *testing.T) {
	_, err := ScoreAnswers(twoQuestionSet(), []Answer{{QuestionID: 1, SelectedOptionIndex: 0}, {QuestionID: 77, SelectedOptionIndex: 0}})
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestDuplicateAnswer(t *testing.T) {
	if _, dup := duplicateAnswer([]Answer{{QuestionID: 1}, {QuestionID: 2}}); dup {
		t.Fatalf("expected no duplicate")
	}
	id, dup := duplicateAnswer([]Answer{{QuestionID: 1}, {QuestionID: 2}, {QuestionID: 1}})
	if !dup || id != 1 {
		t.Fatalf("expected duplicate question 1, got %d %v", id, dup)
	}
}
