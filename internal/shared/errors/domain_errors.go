package errors

import (
	"errors"
	"fmt"
	"time"
)

// DomainError is the base interface for all structured errors in the application
type DomainError interface {
	error

	// Domain returns the domain context (e.g., "session", "staging", "importlog")
	Domain() string

	// Code returns a stable error code
	Code() string

	// Message returns the human readable message without domain and code decoration
	Message() string

	// Retryable indicates if the operation can be retried
	Retryable() bool

	// Metadata returns additional error context
	Metadata() map[string]any

	// WithMetadata adds metadata to the error
	WithMetadata(key string, value any) DomainError

	// Timestamp returns when the error occurred
	Timestamp() time.Time
}

// BaseError is the foundational implementation of DomainError
type BaseError struct {
	domain    string
	code      string
	message   string
	cause     error
	retryable bool
	metadata  map[string]any
	timestamp time.Time
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.domain, e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.domain, e.code, e.message)
}

func (e *BaseError) Unwrap() error            { return e.cause }
func (e *BaseError) Domain() string           { return e.domain }
func (e *BaseError) Code() string             { return e.code }
func (e *BaseError) Message() string          { return e.message }
func (e *BaseError) Retryable() bool          { return e.retryable }
func (e *BaseError) Metadata() map[string]any { return e.metadata }
func (e *BaseError) Timestamp() time.Time     { return e.timestamp }

// Is matches another BaseError with the same domain and code, so pre-built
// sentinels below work with errors.Is.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return e.domain == t.domain && e.code == t.code
}

// NewBaseError creates a new BaseError with the specified parameters
func NewBaseError(domain, code, message string, retryable bool, cause error, metadata map[string]any) *BaseError {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &BaseError{
		domain:    domain,
		code:      code,
		message:   message,
		cause:     cause,
		retryable: retryable,
		metadata:  metadata,
		timestamp: time.Now(),
	}
}

// WithMetadata returns a copy of the error carrying the extra key
func (e *BaseError) WithMetadata(key string, value any) DomainError {
	newMeta := make(map[string]any, len(e.metadata)+1)
	for k, v := range e.metadata {
		newMeta[k] = v
	}
	newMeta[key] = value

	return &BaseError{
		domain:    e.domain,
		code:      e.code,
		message:   e.message,
		cause:     e.cause,
		retryable: e.retryable,
		metadata:  newMeta,
		timestamp: e.timestamp,
	}
}

// Standardized Error Codes
const (
	// Session domain errors
	ErrCodeSessionNotFound   = "session_not_found"
	ErrCodeSessionIPConflict = "session_ip_conflict"
	ErrCodeInvalidTransition = "invalid_state_transition"

	// Address space errors
	ErrCodeInvalidIPAddress = "invalid_ip_address"
	ErrCodeInvalidPrefix    = "invalid_prefix"
	ErrCodeOutsidePrefix    = "address_outside_prefix"

	// Staging errors
	ErrCodeStagingNotFound = "staging_not_found"
	ErrCodeNetworkNotFound = "network_not_found"
	ErrCodeLANNotFound     = "lan_not_found"
	ErrCodeExchangeMissing = "exchange_not_found"
	ErrCodeInvalidFeed     = "invalid_ixf_feed"

	// Import log errors
	ErrCodeImportLogNotFound = "import_log_not_found"
	ErrCodeVersionNotFound   = "version_not_found"

	// Notification errors
	ErrCodeRender   = "render_failed"
	ErrCodeDelivery = "delivery_failed"

	// System errors
	ErrCodeDatabase      = "database_error"
	ErrCodeConfiguration = "config_error"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
)

// Domain Constants
const (
	DomainAddrSpace    = "addrspace"
	DomainSession      = "session"
	DomainStaging      = "staging"
	DomainImportLog    = "importlog"
	DomainHistory      = "history"
	DomainNotification = "notification"
	DomainImporter     = "importer"
	DomainDatabase     = "database"
	DomainSystem       = "system"
)

// NewSessionError creates a standardized peering session error
func NewSessionError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainSession, code, message, retryable, cause, nil)
}

// NewAddrSpaceError creates a standardized address space error
func NewAddrSpaceError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainAddrSpace, code, message, retryable, cause, nil)
}

// NewStagingError creates a standardized staging record error
func NewStagingError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainStaging, code, message, retryable, cause, nil)
}

// NewImportLogError creates a standardized import log error
func NewImportLogError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainImportLog, code, message, retryable, cause, nil)
}

// NewHistoryError creates a standardized snapshot history error
func NewHistoryError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainHistory, code, message, retryable, cause, nil)
}

// NewNotificationError creates a standardized notification error
func NewNotificationError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainNotification, code, message, retryable, cause, nil)
}

// NewImporterError creates a standardized importer error
func NewImporterError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainImporter, code, message, retryable, cause, nil)
}

// NewDatabaseError creates a standardized database error
func NewDatabaseError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainDatabase, code, message, retryable, cause, nil)
}

// NewSystemError creates a standardized system error
func NewSystemError(code, message string, retryable bool, cause error) DomainError {
	return NewBaseError(DomainSystem, code, message, retryable, cause, nil)
}

// Domain Sentinel Errors - compare with errors.Is
var (
	DomainErrSessionNotFound   = NewSessionError(ErrCodeSessionNotFound, "session not found", false, nil)
	DomainErrStagingNotFound   = NewStagingError(ErrCodeStagingNotFound, "staging record not found", false, nil)
	DomainErrNetworkNotFound   = NewStagingError(ErrCodeNetworkNotFound, "network not found", false, nil)
	DomainErrLANNotFound       = NewStagingError(ErrCodeLANNotFound, "ixlan not found", false, nil)
	DomainErrExchangeNotFound  = NewStagingError(ErrCodeExchangeMissing, "exchange not found", false, nil)
	DomainErrImportLogNotFound = NewImportLogError(ErrCodeImportLogNotFound, "import log not found", false, nil)
	DomainErrVersionNotFound   = NewHistoryError(ErrCodeVersionNotFound, "version not found", false, nil)
	DomainErrInvalidConfig     = NewSystemError(ErrCodeConfiguration, "invalid configuration", false, nil)
	DomainErrDatabaseError     = NewDatabaseError(ErrCodeDatabase, "database error", true, nil)
)

// Helper functions for error checking

// IsDomainError checks if an error is a DomainError
func IsDomainError(err error) bool {
	var domainErr DomainError
	return errors.As(err, &domainErr)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return false
}

// GetErrorCode returns the error code if it's a DomainError, otherwise returns "unknown"
func GetErrorCode(err error) string {
	if domainErr, ok := err.(DomainError); ok {
		return domainErr.Code()
	}
	return "unknown"
}

// GetErrorDomain returns the error domain if it's a DomainError, otherwise returns "unknown"
func GetErrorDomain(err error) string {
	if domainErr, ok := err.(DomainError); ok {
		return domainErr.Domain()
	}
	return "unknown"
}

// IsErrorCode checks if any error in the chain has the specified code
func IsErrorCode(err error, code string) bool {
	for err != nil {
		if GetErrorCode(err) == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// WrapWithDomain wraps an existing error with domain context
func WrapWithDomain(err error, domain, code, message string, retryable bool) DomainError {
	return NewBaseError(domain, code, message, retryable, err, nil)
}
