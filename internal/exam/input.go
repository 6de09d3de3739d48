package exam

import (
	"strings"
	"time"

	"examportal/internal/validate"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type QuestionInput struct {
	Text               Text    `json:"text" yaml:"text"`
	Options            Options `json:"options" yaml:"options"`
	CorrectOptionIndex []int   `json:"correct_option_index" yaml:"correct_option_index" validate:"required,min=1,dive,min=0"`
	Marks              float64 `json:"marks" yaml:"marks" validate:"gt=0"`
	NegativeMarks      float64 `json:"negative_marks" yaml:"negative_marks" validate:"gte=0"`
	Subject            string  `json:"subject" yaml:"subject"`
	IsMultiOption      bool    `json:"is_multi_option" yaml:"is_multi_option"`
	Image              string  `json:"image" yaml:"image"`
}

type ModuleInput struct {
	Name      string          `json:"name" yaml:"name" validate:"notblank"`
	Questions []QuestionInput `json:"questions" yaml:"questions" validate:"dive"`
}

type CreateExamInput struct {
	Name          string          `json:"name" yaml:"name" validate:"notblank,max=200"`
	Description   string          `json:"description" yaml:"description" validate:"notblank"`
	Institution   string          `json:"institution" yaml:"institution"`
	Module        ModuleInput     `json:"module" yaml:"module"`
	Rules         []string        `json:"rules" yaml:"rules" validate:"dive,notblank"`
	Price         decimal.Decimal `json:"price" yaml:"price"`
	ScheduledDate time.Time       `json:"scheduled_date" yaml:"scheduled_date" validate:"required"`
	Duration      int             `json:"duration" yaml:"duration" validate:"min=1"`
}

// UpdateExamInput carries a partial update; nil fields are left unchanged.
type UpdateExamInput struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Institution   *string          `json:"institution"`
	Module        *ModuleInput     `json:"module"`
	Rules         *[]string        `json:"rules"`
	Price         *decimal.Decimal `json:"price"`
	ScheduledDate *time.Time       `json:"scheduled_date"`
	Duration      *int             `json:"duration"`
}

func init() {
	validate.Validate.RegisterStructValidation(questionStructLevel, QuestionInput{})
	validate.Validate.RegisterStructValidation(examStructLevel, CreateExamInput{})

	validate.RegisterMessage("nonnegative", "must not be negative")
	validate.RegisterMessage("option_count", "at least two options are required")
	validate.RegisterMessage("options_mismatch", "options must have the same length in every language")
	validate.RegisterMessage("index_range", "correct option index is out of range")
	validate.RegisterMessage("index_duplicate", "correct option indices must be unique")
}

func questionStructLevel(sl validator.StructLevel) {
	q := sl.Current().Interface().(QuestionInput)

	if strings.TrimSpace(q.Text.EN) == "" {
		sl.ReportError(q.Text.EN, "text.en", "Text.EN", "notblank", "")
	}
	if len(q.Options.EN) < 2 {
		sl.ReportError(q.Options.EN, "options.en", "Options.EN", "option_count", "")
	}
	if len(q.Options.HI) > 0 && len(q.Options.HI) != len(q.Options.EN) {
		sl.ReportError(q.Options.HI, "options.hi", "Options.HI", "options_mismatch", "")
	}

	seen := make(map[int]struct{}, len(q.CorrectOptionIndex))
	for _, idx := range q.CorrectOptionIndex {
		if idx >= len(q.Options.EN) {
			sl.ReportError(q.CorrectOptionIndex, "correct_option_index", "CorrectOptionIndex", "index_range", "")
			return
		}
		if _, dup := seen[idx]; dup {
			sl.ReportError(q.CorrectOptionIndex, "correct_option_index", "CorrectOptionIndex", "index_duplicate", "")
			return
		}
		seen[idx] = struct{}{}
	}
}

func examStructLevel(sl validator.StructLevel) {
	in := sl.Current().Interface().(CreateExamInput)
	if in.Price.IsNegative() {
		sl.ReportError(in.Price, "price", "Price", "nonnegative", "")
	}
}

func (in QuestionInput) toQuestion() Question {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = DefaultSubject
	}
	hi := in.Options.HI
	if hi == nil {
		hi = []string{}
	}
	return Question{
		Text:               Text{EN: strings.TrimSpace(in.Text.EN), HI: strings.TrimSpace(in.Text.HI)},
		Options:            Options{EN: in.Options.EN, HI: hi},
		CorrectOptionIndex: append([]int(nil), in.CorrectOptionIndex...),
		Marks:              in.Marks,
		NegativeMarks:      in.NegativeMarks,
		Subject:            subject,
		IsMultiOption:      in.IsMultiOption || len(in.CorrectOptionIndex) > 1,
		Image:              strings.TrimSpace(in.Image),
	}
}

func (in ModuleInput) toModule() Module {
	m := Module{Name: strings.TrimSpace(in.Name), Questions: make([]Question, 0, len(in.Questions))}
	for _, q := range in.Questions {
		m.Questions = append(m.Questions, q.toQuestion())
	}
	return m
}

func moduleInputOf(m Module) ModuleInput {
	in := ModuleInput{Name: m.Name, Questions: make([]QuestionInput, 0, len(m.Questions))}
	for _, q := range m.Questions {
		in.Questions = append(in.Questions, QuestionInput{
			Text:               q.Text,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			Marks:              q.Marks,
			NegativeMarks:      q.NegativeMarks,
			Subject:            q.Subject,
			IsMultiOption:      q.IsMultiOption,
			Image:              q.Image,
		})
	}
	return in
}

func createInputOf(e *Exam) CreateExamInput {
	return CreateExamInput{
		Name:          e.Name,
		Description:   e.Description,
		Institution:   e.Institution,
		Module:        moduleInputOf(e.Module),
		Rules:         e.Rules,
		Price:         e.Price,
		ScheduledDate: e.ScheduledDate,
		Duration:      e.Duration,
	}
}

func (in UpdateExamInput) apply(base CreateExamInput) CreateExamInput {
	if in.Name != nil {
		base.Name = *in.Name
	}
	if in.Description != nil {
		base.Description = *in.Description
	}
	if in.Institution != nil {
		base.Institution = *in.Institution
	}
	if in.Module != nil {
		base.Module = *in.Module
	}
	if in.Rules != nil {
		base.Rules = *in.Rules
	}
	if in.Price != nil {
		base.Price = *in.Price
	}
	if in.ScheduledDate != nil {
		base.ScheduledDate = *in.ScheduledDate
	}
	if in.Duration != nil {
		base.Duration = *in.Duration
	}
	return base
}

func normalizeRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
