package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureReason is the reason code carried by a FAILURE reply.
type FailureReason string

const (
	ReasonDrugNotFound    FailureReason = "DRUG_NOT_FOUND"
	ReasonDiseaseNotFound FailureReason = "DISEASE_NOT_FOUND"
	ReasonInvalidDisease  FailureReason = "INVALID_DISEASE"
)

// Sentinel errors for domain lookups. Handlers map these to FAILURE replies;
// any other error is an unexpected lookup failure.
var (
	ErrDrugNotFound         = errors.New("drug not found")
	ErrDiseaseNotFound      = errors.New("disease not found")
	ErrInvalidDisease       = errors.New("invalid disease")
	ErrNoMutationStatistics = errors.New("no mutation statistics")
)

// LookupError describes a failed domain lookup for a named subject.
type LookupError struct {
	Reason  FailureReason
	Subject string
}

// NewLookupError creates a LookupError.
func NewLookupError(reason FailureReason, subject string) *LookupError {
	return &LookupError{Reason: reason, Subject: subject}
}

// Error implements the error interface
func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Subject)
}

// Is matches the sentinel corresponding to the reason code.
func (e *LookupError) Is(target error) bool {
	switch e.Reason {
	case ReasonDrugNotFound:
		return target == ErrDrugNotFound
	case ReasonDiseaseNotFound:
		return target == ErrDiseaseNotFound
	case ReasonInvalidDisease:
		return target == ErrInvalidDisease
	}
	return false
}

// FailureReasonOf returns the FAILURE reason for err, if err is a domain
// failure. ErrNoMutationStatistics surfaces as DISEASE_NOT_FOUND.
func FailureReasonOf(err error) (FailureReason, bool) {
	switch {
	case errors.Is(err, ErrDrugNotFound):
		return ReasonDrugNotFound, true
	case errors.Is(err, ErrInvalidDisease):
		return ReasonInvalidDisease, true
	case errors.Is(err, ErrDiseaseNotFound), errors.Is(err, ErrNoMutationStatistics):
		return ReasonDiseaseNotFound, true
	}
	return "", false
}

// AgentError represents an error reply sent back to a requester
type AgentError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for error replies
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnknownTask    = "UNKNOWN_TASK"
	ErrCodeExternalAPI    = "EXTERNAL_API_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewAgentError creates a new AgentError with timestamp
func NewAgentError(code, message, details, requestID string) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
