package validate

import (
	"errors"
	"testing"

	"examportal/internal/apperr"
)

type sample struct {
	Name  string `json:"name" validate:"notblank"`
	Email string `json:"email" validate:"required,email"`
	Items []item `json:"items" validate:"dive"`
}

type item struct {
	Count int `json:"count" validate:"min=1"`
}

func TestStructReportsJSONFieldPaths(t *testing.T) {
	err := Struct(sample{Name: "  ", Email: "not-an-email", Items: []item{{Count: 1}, {Count: 0}}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	ae, _ := apperr.As(err)
	got := map[string]string{}
	for _, f := range ae.Fields {
		got[f.Field] = f.Error
	}
	if got["name"] != "this field cannot be blank" {
		t.Fatalf("unexpected name message %q (all=%v)", got["name"], got)
	}
	if _, ok := got["email"]; !ok {
		t.Fatalf("expected email error, got %v", got)
	}
	if _, ok := got["items[1].count"]; !ok {
		t.Fatalf("expected items[1].count error, got %v", got)
	}
}

func TestStructValid(t *testing.T) {
	if err := Struct(sample{Name: "Ana", Email: "ana@example.test"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}
