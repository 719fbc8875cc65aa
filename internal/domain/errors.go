package domain

import "fmt"

// Error types for consistent error handling across the service.
// Every failure in the chat/lead core is recoverable; these types let the
// handler layer pick a status code without leaking details to visitors.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrSessionInit is returned when a chat session could not be created.
// The widget degrades to session-less mode: chat disabled.
type ErrSessionInit struct {
	Err error
}

func (e *ErrSessionInit) Error() string {
	return fmt.Sprintf("session init failed: %v", e.Err)
}

func (e *ErrSessionInit) Unwrap() error {
	return e.Err
}

// ErrGeneration indicates the reply generation service failed.
type ErrGeneration struct {
	Err error
}

func (e *ErrGeneration) Error() string {
	return fmt.Sprintf("reply generation failed: %v", e.Err)
}

func (e *ErrGeneration) Unwrap() error {
	return e.Err
}

// ErrDelivery indicates an email channel failure. It is logged and recorded,
// never propagated to the caller of a dispatch.
type ErrDelivery struct {
	Kind NotificationKind
	To   string
	Err  error
}

func (e *ErrDelivery) Error() string {
	return fmt.Sprintf("delivery failed [%s -> %s]: %v", e.Kind, e.To, e.Err)
}

func (e *ErrDelivery) Unwrap() error {
	return e.Err
}

// ErrScoringInputIncomplete marks a lead without the attributes required to
// score it. Scorers treat it as score 0 / tier low.
type ErrScoringInputIncomplete struct {
	Missing []string
}

func (e *ErrScoringInputIncomplete) Error() string {
	return fmt.Sprintf("scoring input incomplete: missing %v", e.Missing)
}

// ErrSendInFlight is returned when a message is submitted while the previous
// one in the same session is still waiting for a reply.
type ErrSendInFlight struct {
	SessionID string
}

func (e *ErrSendInFlight) Error() string {
	return fmt.Sprintf("a message is already being sent for session %s", e.SessionID)
}

// ErrRateLimited indicates too many messages in a short period.
type ErrRateLimited struct {
	Key string
}

func (e *ErrRateLimited) Error() string {
	return "too many messages, slow down"
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
