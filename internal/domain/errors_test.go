package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Basic error",
			code:      ErrInvalidInput,
			message:   "Invalid date",
			details:   "date must be formatted as YYYY-MM-DD",
			requestID: "req-123",
		},
		{
			name:      "Storage error",
			code:      ErrStorage,
			message:   "Failed to load records",
			details:   "database is locked",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}

			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}

			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}

			// Check that timestamp is recent (within last minute)
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("axial_length_left", "must be at most 30", "31.5")

	expected := "validation error for field 'axial_length_left': must be at most 30"
	if err.Error() != expected {
		t.Errorf("Expected error string %s, got %s", expected, err.Error())
	}
	if err.Value != "31.5" {
		t.Errorf("Expected value 31.5, got %v", err.Value)
	}
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		NewValidationError("name", "is required", ""),
		NewValidationError("start_date", "is required", nil),
	}

	expected := "validation error for field 'name': is required; validation error for field 'start_date': is required"
	if errs.Error() != expected {
		t.Errorf("Expected error string %s, got %s", expected, errs.Error())
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"single", NewValidationError("date", "is required", nil), true},
		{"wrapped single", fmt.Errorf("create stage: %w", NewValidationError("name", "is required", "")), true},
		{"collection", ValidationErrors{NewValidationError("pd", "out of range", 90)}, true},
		{"not found", fmt.Errorf("stage x: %w", ErrNotFound), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}
