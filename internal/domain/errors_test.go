package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAgentError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Unknown task",
			code:      ErrCodeUnknownTask,
			message:   "unknown task FOO",
			details:   "task is not one of the subscribed tasks",
			requestID: "req-123",
		},
		{
			name:      "External API error",
			code:      ErrCodeExternalAPI,
			message:   "statement query failed",
			details:   "connection refused",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAgentError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
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

func TestLookupErrorIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"drug matches", NewLookupError(ReasonDrugNotFound, "foo"), ErrDrugNotFound, true},
		{"disease matches", NewLookupError(ReasonDiseaseNotFound, "common cold"), ErrDiseaseNotFound, true},
		{"invalid matches", NewLookupError(ReasonInvalidDisease, ""), ErrInvalidDisease, true},
		{"drug is not disease", NewLookupError(ReasonDrugNotFound, "foo"), ErrDiseaseNotFound, false},
		{"wrapped", fmt.Errorf("lookup: %w", NewLookupError(ReasonDrugNotFound, "foo")), ErrDrugNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureReasonOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason FailureReason
		ok     bool
	}{
		{"drug", ErrDrugNotFound, ReasonDrugNotFound, true},
		{"disease", fmt.Errorf("x: %w", ErrDiseaseNotFound), ReasonDiseaseNotFound, true},
		{"no statistics", ErrNoMutationStatistics, ReasonDiseaseNotFound, true},
		{"invalid", ErrInvalidDisease, ReasonInvalidDisease, true},
		{"unexpected", errors.New("connection refused"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := FailureReasonOf(tt.err)
			if ok != tt.ok || reason != tt.reason {
				t.Errorf("FailureReasonOf = (%q, %v), want (%q, %v)", reason, ok, tt.reason, tt.ok)
			}
		})
	}
}

func TestRefsRoundTrip(t *testing.T) {
	refs := ParseRefs("UP:P01116|HGNC:6407|CHEBI:CHEBI:1234|bogus")
	if len(refs) != 3 {
		t.Fatalf("Expected 3 refs, got %d: %v", len(refs), refs)
	}
	if refs["CHEBI"] != "CHEBI:1234" {
		t.Errorf("Expected CHEBI id to keep inner colon, got %s", refs["CHEBI"])
	}
	if got := FormatRefs(refs); got != "CHEBI:CHEBI:1234|HGNC:6407|UP:P01116" {
		t.Errorf("Unexpected formatted refs %s", got)
	}
}
