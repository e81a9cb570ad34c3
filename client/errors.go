package client

import "fmt"

// ValidationError reports invalid input caught before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NetworkError wraps a transport failure or timeout. Recoverable only by an
// explicit retry; it never mutates a cached view.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthRequiredError reports a write attempted without credentials. The
// client rejects this before issuing the request.
type AuthRequiredError struct{}

func (e *AuthRequiredError) Error() string {
	return "authentication required"
}

// ChallengeRequiredError carries the puzzle a gated write must solve.
type ChallengeRequiredError struct {
	Challenge Challenge
}

func (e *ChallengeRequiredError) Error() string {
	return "challenge required"
}

// ChallengeFailedError reports a rejected answer. Challenge carries the
// replacement token; the previous token is dead and must not be resubmitted.
type ChallengeFailedError struct {
	Challenge Challenge
}

func (e *ChallengeFailedError) Error() string {
	return "challenge answer rejected"
}

// ServerError is any other non-2xx response, terminal for the attempt.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d %s: %s", e.Status, e.Code, e.Message)
}

// ErrStaleResponse marks a response that arrived after its request was
// superseded (a newer request for the same scope) or its attempt canceled;
// the cached state was left untouched.
var ErrStaleResponse = fmt.Errorf("stale response superseded by a newer request")
