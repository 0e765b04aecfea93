package firewall

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrBlocked is returned when the firewall's policy engine blocks a message.
	ErrBlocked = errors.New("blocked by policy")

	// ErrServerUnreachable is returned when the firewall cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// FirewallError is the base error type for SDK errors raised from a non-2xx
// HTTP response.
type FirewallError struct {
	// Code is a machine-readable error code.
	Code string
	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *FirewallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("firewall [%s]: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("firewall [%s]", e.Code)
}

// Unwrap returns the underlying error.
func (e *FirewallError) Unwrap() error {
	return e.Err
}

// BlockedError is returned when the firewall's policy engine blocks a
// message. It carries the matched rule and reason reported by the server.
type BlockedError struct {
	// Reason explains why the message was blocked.
	Reason string
	// MatchedRule is the name of the policy rule that triggered the block.
	MatchedRule string
	// RequestID is the request's unique identifier, echoed from the response.
	RequestID string
}

// Error returns a human-readable description of the block.
func (e *BlockedError) Error() string {
	if e.MatchedRule != "" {
		return fmt.Sprintf("blocked by rule '%s': %s", e.MatchedRule, e.Reason)
	}
	return fmt.Sprintf("blocked: %s", e.Reason)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrBlocked).
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// ServerUnreachableError is returned when the firewall cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying error that caused the server to be unreachable.
	Cause error
}

// Error returns a human-readable description of the server unreachable error.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
