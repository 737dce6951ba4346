// Typed errors shared across the assignment engine. Every failure path in
// the engine returns one of these so callers can branch on the kind.
package clans

import "fmt"

// ValidationError reports a malformed request or configuration value.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NoEligibleClanError reports that the computed distribution collapsed to
// nothing — every clan was excluded or weighted out.
type NoEligibleClanError struct {
	Reason string
}

func (e *NoEligibleClanError) Error() string {
	return "no eligible clan: " + e.Reason
}

// InvariantViolationError reports a broken ledger invariant, such as a
// decrement below zero. It signals a caller bug, never an expected state.
type InvariantViolationError struct {
	ClanID string
	Msg    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation for clan %q: %s", e.ClanID, e.Msg)
}

// PersistenceError reports a failed durable write. The wrapped operation is
// treated as not having happened and may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
