package app

import "fmt"

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Error codes shared with clients. The two challenge codes always carry a
// ChallengePayload in Details.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeChallengeRequired = "CHALLENGE_REQUIRED"
	CodeChallengeFailed   = "CHALLENGE_FAILED"
)
