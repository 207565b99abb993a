// Package fserrors defines the error taxonomy shared by every fsx subsystem.
//
// These are domain errors (file not found, tier disabled, transaction timed
// out, etc.) as opposed to infrastructure errors (network failure, disk
// error). Transport layers translate the error Code to wire-level codes
// (POSIX-style errno strings for the RPC surface, error frames for the
// WebSocket surface).
package fserrors

import (
	"errors"
	"fmt"
)

// ErrorCode is the category of a domain error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested path or id doesn't exist (ENOENT).
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a unique constraint violation (EEXIST).
	ErrAlreadyExists

	// ErrIsDirectory indicates operation expected a file but got a directory (EISDIR).
	ErrIsDirectory

	// ErrNotDirectory indicates operation expected a directory but got a file (ENOTDIR).
	ErrNotDirectory

	// ErrNotEmpty indicates a non-recursive remove on a populated directory (ENOTEMPTY).
	ErrNotEmpty

	// ErrInvalidArgument indicates a bad path, bad tier, disabled tier, or
	// malformed options (EINVAL).
	ErrInvalidArgument

	// ErrLimitReached indicates a per-connection subscription cap was exceeded.
	ErrLimitReached

	// ErrTimeout indicates a transaction exceeded its configured timeout.
	ErrTimeout

	// ErrTransient indicates a retryable backend failure (SQLITE_BUSY or
	// equivalent). Transaction retry treats only this class as retryable.
	ErrTransient

	// ErrCompression indicates a codec failure. The Detail field carries one
	// of COMPRESSION_FAILED, DECOMPRESSION_FAILED, INVALID_DATA,
	// UNSUPPORTED_ALGORITHM.
	ErrCompression

	// ErrConfig indicates invalid tiered-storage or watch configuration.
	// Field and Reason are carried on the error.
	ErrConfig

	// ErrIO indicates an unclassified lower-layer error.
	ErrIO
)

// String returns the errno-style label for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "ENOENT"
	case ErrAlreadyExists:
		return "EEXIST"
	case ErrIsDirectory:
		return "EISDIR"
	case ErrNotDirectory:
		return "ENOTDIR"
	case ErrNotEmpty:
		return "ENOTEMPTY"
	case ErrInvalidArgument:
		return "EINVAL"
	case ErrLimitReached:
		return "ELIMIT"
	case ErrTimeout:
		return "ETIMEDOUT"
	case ErrTransient:
		return "EAGAIN"
	case ErrCompression:
		return "ECOMPRESS"
	case ErrConfig:
		return "ECONFIG"
	case ErrIO:
		return "EIO"
	default:
		return "EUNKNOWN"
	}
}

// Error is the structured domain error carried across fsx layers.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the filesystem path related to the error, if applicable.
	Path string

	// Detail is an optional machine-readable sub-code (compression failure
	// kinds, config field names).
	Detail string

	// Err is the wrapped lower-layer cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = msg + ": " + e.Path
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigError is a dedicated configuration error carrying the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// NewNotFound creates an Error for a missing path or id.
func NewNotFound(path string, entityType string) *Error {
	return &Error{Code: ErrNotFound, Message: entityType + " not found", Path: path}
}

// NewAlreadyExists creates an Error for a duplicate path.
func NewAlreadyExists(path string) *Error {
	return &Error{Code: ErrAlreadyExists, Message: "already exists", Path: path}
}

// NewIsDirectory creates an Error for a file operation on a directory.
func NewIsDirectory(path string) *Error {
	return &Error{Code: ErrIsDirectory, Message: "is a directory", Path: path}
}

// NewNotDirectory creates an Error for a directory operation on a file.
func NewNotDirectory(path string) *Error {
	return &Error{Code: ErrNotDirectory, Message: "not a directory", Path: path}
}

// NewNotEmpty creates an Error for removing a populated directory.
func NewNotEmpty(path string) *Error {
	return &Error{Code: ErrNotEmpty, Message: "directory not empty", Path: path}
}

// NewInvalidArgument creates an Error for a malformed argument.
func NewInvalidArgument(msg string) *Error {
	return &Error{Code: ErrInvalidArgument, Message: msg}
}

// NewLimitReached creates an Error for an exceeded subscription cap.
func NewLimitReached(msg string) *Error {
	return &Error{Code: ErrLimitReached, Message: msg}
}

// NewTimeout creates an Error for an expired transaction.
func NewTimeout(msg string) *Error {
	return &Error{Code: ErrTimeout, Message: msg}
}

// NewTransient wraps a retryable backend failure.
func NewTransient(err error) *Error {
	return &Error{Code: ErrTransient, Message: "transient backend failure", Err: err}
}

// NewCompression creates a codec error with the given sub-code.
func NewCompression(detail string, err error) *Error {
	return &Error{Code: ErrCompression, Message: "compression error", Detail: detail, Err: err}
}

// NewIO wraps an unclassified lower-layer error with the originating path
// and operation name.
func NewIO(op, path string, err error) *Error {
	return &Error{Code: ErrIO, Message: op + " failed", Path: path, Err: err}
}

// CodeOf extracts the ErrorCode from err, or ErrIO when err is not a domain
// error.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ErrIO
}

// Is reports whether err is a domain error with the given code.
func Is(err error, code ErrorCode) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

// IsNotFound reports whether err is an ErrNotFound domain error.
func IsNotFound(err error) bool { return Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is an ErrAlreadyExists domain error.
func IsAlreadyExists(err error) bool { return Is(err, ErrAlreadyExists) }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return Is(err, ErrTransient) }

// IsTimeout reports whether err is a transaction timeout.
func IsTimeout(err error) bool { return Is(err, ErrTimeout) }
