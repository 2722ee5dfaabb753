// GO TESTING BASICS:
// 1. Test files MUST end in _test.go; Go's tooling auto-discovers them
// 2. Test functions MUST start with "Test" and take *testing.T as the only param
// 3. Same package as the code being tested (so we can access unexported stuff)
// 4. Run with: go test ./internal/apperror/ -v  (-v = verbose, shows each test name)
package apperror

import (
	"errors"
	"fmt"
	"io"
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
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("token expired"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("file", "file is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Network wraps ErrNetwork",
			err:       Network("list photos", io.ErrUnexpectedEOF),
			target:    ErrNetwork,
			wantMatch: true,
		},
		{
			name:      "Network keeps its cause",
			err:       Network("list photos", io.ErrUnexpectedEOF),
			target:    io.ErrUnexpectedEOF,
			wantMatch: true,
		},
		{
			name:      "GenerationFailed wraps ErrGeneration",
			err:       GenerationFailed("model crashed"),
			target:    ErrGeneration,
			wantMatch: true,
		},
		{
			name:      "wrapped Unauthorized still matches",
			err:       fmt.Errorf("backend: fetch identity: %w", Unauthorized("")),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Validation does NOT match ErrUnauthorized",
			err:       ValidationFailed("id", "bad id"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
		{
			name:      "LoginRequired does NOT match ErrUnauthorized",
			err:       LoginRequired(),
			target:    ErrUnauthorized,
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

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"plain error", errors.New("boom"), "boom"},
		{"validation detail verbatim", ValidationFailed("file", "Invalid image file."), "Invalid image file."},
		{"wrapped app error", fmt.Errorf("upload: %w", GenerationFailed("VTON failed")), "VTON failed"},
		{"network hides cause", Network("generate", io.EOF), "generate: network failure"},
		{"default unauthorized text", Unauthorized(""), "please log in again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(fmt.Errorf("x: %w", Unauthorized("gone"))) {
		t.Error("IsUnauthorized() = false for a wrapped Unauthorized")
	}
	if IsUnauthorized(Network("x", io.EOF)) {
		t.Error("IsUnauthorized() = true for a network error")
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("file", "file is empty")

	if err.Field != "file" {
		t.Errorf("Field = %q, want %q", err.Field, "file")
	}
}
