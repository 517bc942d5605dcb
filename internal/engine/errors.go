package engine

import "fmt"

// ValidationError rejects user input. Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}

// NotProvisionedError reports a feature whose tables or columns are missing
// from the store.
type NotProvisionedError struct {
	Feature string
	Message string
}

func (e NotProvisionedError) Error() string {
	return e.Message
}

// StoreError wraps a storage failure. Error returns only the user-facing
// message; the cause is available through Unwrap.
type StoreError struct {
	Op      string
	Message string
	Err     error
}

func (e StoreError) Error() string {
	return e.Message
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// TransitionError rejects a status change the state machine does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}
