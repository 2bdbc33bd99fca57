package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMessageNotFound is wrapped by mailboxes when a message no longer exists
	ErrMessageNotFound = errors.New("message not found")
	// ErrCacheMiss is returned by cache repositories on a miss or expiry
	ErrCacheMiss = errors.New("cache entry not found")
)

// MailboxError is returned by mailbox adapters. Transient errors (rate
// limits, network blips) are retried; permanent ones are not.
type MailboxError struct {
	Op        string
	MessageID string
	Transient bool
	Err       error
}

func (e *MailboxError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.MessageID == "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, kind, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.MessageID, kind, e.Err)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable mailbox error
func NewTransientError(op, messageID string, err error) error {
	return &MailboxError{Op: op, MessageID: messageID, Transient: true, Err: err}
}

// NewPermanentError wraps err as a non-retryable mailbox error
func NewPermanentError(op, messageID string, err error) error {
	return &MailboxError{Op: op, MessageID: messageID, Err: err}
}

// IsTransient reports whether err is worth retrying. A per-call deadline is
// treated as transient; cancellation of the run is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var me *MailboxError
	if errors.As(err, &me) {
		return me.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ClassifierError describes why a classification could not be obtained.
// It never escapes the classifier adapter.
type ClassifierError struct {
	Reason string // timeout, malformed, quota, unavailable
	Err    error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Reason, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// ConfigurationError aborts a run before any message is processed
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
