package model

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a remote API failure. The retry policy keys
// off the kind, never off raw status codes.
type FailureKind string

const (
	FailureAuthentication     FailureKind = "authentication"
	FailureAuthorization      FailureKind = "authorization"
	FailureConnection         FailureKind = "connection"
	FailureTimeout            FailureKind = "timeout"
	FailureValidation         FailureKind = "validation"
	FailureNotFound           FailureKind = "not_found"
	FailureRateLimited        FailureKind = "rate_limited"
	FailureServiceUnavailable FailureKind = "service_unavailable"
)

// APIError is a classified failure from the remote API.
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Detail     string // server-provided detail, field-level for validation failures
	RetryAfter time.Duration
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api %s (status %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	if e.Cause != nil {
		if e.Detail != "" {
			return fmt.Sprintf("api %s: %s: %v", e.Kind, e.Detail, e.Cause)
		}
		return fmt.Sprintf("api %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("api %s: %s", e.Kind, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is expected to clear on its
// own, making the affected document auto-retryable.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case FailureConnection, FailureTimeout, FailureRateLimited, FailureServiceUnavailable:
		return true
	}
	return false
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StoreError is a local-store failure. At connection time it aborts
// the whole cycle; elsewhere it is a per-document failure.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError wraps a database failure with the operation name.
func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, Cause: cause}
}

// ReconcileError means a local precondition of a document was not met
// (its contact or an item could not be resolved remotely). The
// document never reaches submission and stays pending.
type ReconcileError struct {
	Entity  string // "contact" or "item"
	LocalID int64
	Message string
	Cause   error
}

func (e *ReconcileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reconcile %s %d: %s (%v)", e.Entity, e.LocalID, e.Message, e.Cause)
	}
	return fmt.Sprintf("reconcile %s %d: %s", e.Entity, e.LocalID, e.Message)
}

func (e *ReconcileError) Unwrap() error {
	return e.Cause
}

// NewReconcileError creates a reconciliation failure for one entity.
func NewReconcileError(entity string, localID int64, message string, cause error) *ReconcileError {
	return &ReconcileError{Entity: entity, LocalID: localID, Message: message, Cause: cause}
}

// IsReconcileError reports whether err is a reconciliation failure.
func IsReconcileError(err error) bool {
	var re *ReconcileError
	return errors.As(err, &re)
}

// AssemblyError means a document could not be turned into a wire
// payload and was not submitted.
type AssemblyError struct {
	DocumentID int64
	Message    string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble document %d: %s", e.DocumentID, e.Message)
}

// NewAssemblyError creates an assembly failure for one document.
func NewAssemblyError(documentID int64, message string) *AssemblyError {
	return &AssemblyError{DocumentID: documentID, Message: message}
}
