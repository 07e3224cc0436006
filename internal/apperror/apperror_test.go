package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("list", "cv37rs3pp9olc6atsptg"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "list name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("list item", "603"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("sign in required"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "wrapped Forbidden still matches through fmt.Errorf",
			err:       fmt.Errorf("service/list: adding item: %w", Forbidden("viewers cannot edit")),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("list", "abc"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("list", "abc123"),
			wantMessage: "list abc123 does not exist",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("email", "a valid email is required"),
			wantMessage: "a valid email is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("list member", "abc123"),
			wantMessage: "list member abc123 already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("role", "role must be editor or viewer")

	if err.Field != "role" {
		t.Errorf("Field = %q, want %q", err.Field, "role")
	}
}
