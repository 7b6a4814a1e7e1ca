package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/chime/internal/logger"
)

// ValidationError is returned when a reminder cannot be saved because it is
// malformed or never fires in the future. Nothing is persisted or scheduled.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reminder: %s", e.Reason)
}

// StorageError wraps a failed read or write of the reminder collection.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DispatchError wraps a failed schedule, cancel or dismiss call. It is logged
// by the service and never prevents the reminder's own state from being saved.
type DispatchError struct {
	Op     string
	Handle string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("notification %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("notification %s %s failed: %v", e.Op, e.Handle, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Validationf builds a ValidationError from a format string
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStorage reports whether err is or wraps a StorageError
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
