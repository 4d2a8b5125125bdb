package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed input. Nothing is applied when it is returned.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			msgs := make([]string, 0, len(err.Fields))
			for _, f := range err.Fields {
				msgs = append(msgs, f.Field+": "+f.Error)
			}
			return strings.Join(msgs, "; ")
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports an unknown entity. Packages declare one sentinel per entity.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) *NotFoundError {
	return &NotFoundError{Entity: entity}
}

func (err NotFoundError) Error() string {
	return err.Entity + " not found"
}

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// AuthorizationError reports a role or department/college scope mismatch.
type AuthorizationError struct {
	Reason string
}

func NewAuthorizationError(format string, args ...interface{}) error {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

func (err AuthorizationError) Error() string {
	return "permission denied: " + err.Reason
}

// BlockingReason is one unmet precondition of an operation.
type BlockingReason struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Semester string `json:"semester,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// ConsistencyError reports unmet preconditions. It is expected and recoverable:
// the caller resolves each reason and retries.
type ConsistencyError struct {
	Err     error
	Reasons []BlockingReason
}

func NewConsistencyError(err error, reasons ...BlockingReason) error {
	return &ConsistencyError{Err: err, Reasons: reasons}
}

func (err ConsistencyError) Error() string {
	msgs := make([]string, 0, len(err.Reasons)+1)
	if err.Err != nil {
		msgs = append(msgs, err.Err.Error())
	}
	for _, r := range err.Reasons {
		msgs = append(msgs, r.Message)
	}
	return strings.Join(msgs, ": ")
}

// TransactionError reports an aborted multi-write operation. State is unchanged and the operation is safe to retry.
type TransactionError struct {
	Op  string
	Err error
}

func NewTransactionError(op string, err error) error {
	return &TransactionError{Op: op, Err: err}
}

func (err TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction aborted: %v", err.Op, err.Err)
}

func (err TransactionError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
