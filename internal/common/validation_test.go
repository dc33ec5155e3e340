package common

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizePatientID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "P123", "P123", false},
		{"trimmed", "  P123\t", "P123", false},
		{"email", "jane.doe@example.com", "jane.doe@example.com", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"control", "p\x00id", "", true},
		{"too long", strings.Repeat("x", MaxPatientIDLength+1), "", true},
		{"max length", strings.Repeat("x", MaxPatientIDLength), strings.Repeat("x", MaxPatientIDLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePatientID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("error %v does not wrap ErrInvalidInput", err)
				}
				if CodeOf(err) != CodeInvalidInput {
					t.Errorf("code = %q, want %q", CodeOf(err), CodeInvalidInput)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatorCollectsAllFields(t *testing.T) {
	v := NewValidator().
		Field("a", "", Required).
		Field("b", "ok", Required).
		Field("c", "toolong", MaxLength(3))
	if len(v.Errors()) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(v.Errors()), v.Errors())
	}
	msg := v.Err().Error()
	if !strings.Contains(msg, "'a'") || !strings.Contains(msg, "'c'") {
		t.Errorf("message %q should name both fields", msg)
	}
}
