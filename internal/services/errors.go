package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"librarydesk/internal/models"
)

// ─── Error Kinds ──────────────────────────────────────────────────────────────
//
// Every error a service returns on purpose wraps exactly one kind, so callers
// can classify with errors.Is. Anything else is a store failure.

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
)

type serviceError struct {
	kind error
	msg  string
}

func (e *serviceError) Error() string { return e.msg }

func (e *serviceError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &serviceError{kind: kind, msg: msg}
}

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	ErrUserOnly  = newError(ErrForbidden, "Only USER allowed")
	ErrAdminOnly = newError(ErrForbidden, "Only ADMIN allowed")

	ErrBookNotFound     = newError(ErrNotFound, "Book not found")
	ErrIssueNotFound    = newError(ErrNotFound, "Issue not found")
	ErrUserNotFound     = newError(ErrNotFound, "User not found")
	ErrCategoryNotFound = newError(ErrNotFound, "Category not found")

	ErrNoCopiesAvailable = newError(ErrConflict, "No copies available")
	ErrAlreadyRequested  = newError(ErrConflict, "Book already issued or requested")
	ErrDuplicateISBN     = newError(ErrConflict, "Book with this ISBN already exists")
	ErrDuplicateCategory = newError(ErrConflict, "Category already exists")
	ErrCopiesBelowIssued = newError(ErrConflict, "Total copies cannot be lower than the number of issued copies")
	ErrBookInUse         = newError(ErrConflict, "Book is referenced by issue records")
	ErrCategoryInUse     = newError(ErrConflict, "Category is referenced by books")
	ErrAdminExists       = newError(ErrForbidden, "Admin already exists. Multiple admins are not allowed.")
	ErrAccountTaken      = newError(ErrConflict, "Email or username already registered")
	ErrBadCredentials    = newError(ErrUnauthorized, "Invalid email or password")
)

// transitionConflict surfaces a refused state transition as a Conflict.
func transitionConflict(err error) error {
	var te *models.TransitionError
	if errors.As(err, &te) {
		return newError(ErrConflict, te.Reason)
	}
	return err
}

// ValidationError is returned for malformed input that passed HTTP binding.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// fail logs a refused or failed operation. Service errors pass through
// unchanged; store errors are wrapped with the operation name.
func fail(log *zap.Logger, op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	var se *serviceError
	var ve *ValidationError
	if errors.As(err, &se) || errors.As(err, &ve) {
		log.Warn("operation refused", fields...)
		return err
	}
	log.Error("operation failed", fields...)
	return fmt.Errorf("%s: %w", op, err)
}
