package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrorRecordNotFound      = errors.New("record not found")
	ErrorConcurrencyConflict = errors.New("concurrent update conflict")
	ErrorUnauthorized        = errors.New("unauthorized")
)

// ValidationError carries field-level messages. It is always raised before a transaction opens.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// ConflictError reports a lost race on an entity's version number.
type ConflictError struct {
	Kind            string
	Id              int
	ExpectedVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently (expected version %d)", e.Kind, e.Id, e.ExpectedVersion)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrorConcurrencyConflict
}

// TransactionError wraps a storage failure. Nothing from the failed transaction is persisted.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return "transaction failed: " + e.Op + ": " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsDomainError reports whether err belongs to the store's own taxonomy
// and must not be wrapped as a storage failure.
func IsDomainError(err error) bool {
	var ve *ValidationError
	var te *TransactionError
	return errors.Is(err, ErrorRecordNotFound) ||
		errors.Is(err, ErrorConcurrencyConflict) ||
		errors.As(err, &ve) ||
		errors.As(err, &te)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
