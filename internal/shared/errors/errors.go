package errors

import (
	"errors"
)

// Field names carried by validation errors
const (
	FieldIPAddr4 = "ipaddr4"
	FieldIPAddr6 = "ipaddr6"
	FieldSpeed   = "speed"
	FieldASN     = "asn"
	FieldPrefix  = "prefix"
)

// NewValidationError creates a validation error for one field of a record.
// The message is what ends up in the staging record error column, so it is kept
// free of domain decoration.
func NewValidationError(domain, field, message string) DomainError {
	return NewBaseError(domain, ErrCodeValidation, message, false, nil, map[string]any{"field": field})
}

// IsValidation reports whether any error in the chain is a validation error
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// ValidationField returns the field of the first validation error in the chain
func ValidationField(err error) string {
	for err != nil {
		if de, ok := err.(DomainError); ok && de.Code() == ErrCodeValidation {
			if f, ok := de.Metadata()["field"].(string); ok {
				return f
			}
			return ""
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// MessageOf returns the undecorated message of the first DomainError in the
// chain, or err.Error() for plain errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var de DomainError
	if errors.As(err, &de) {
		return de.Message()
	}
	return err.Error()
}

// NotFound reports whether err matches any of the not-found sentinels
func NotFound(err error) bool {
	switch {
	case errors.Is(err, DomainErrSessionNotFound),
		errors.Is(err, DomainErrStagingNotFound),
		errors.Is(err, DomainErrNetworkNotFound),
		errors.Is(err, DomainErrLANNotFound),
		errors.Is(err, DomainErrExchangeNotFound),
		errors.Is(err, DomainErrImportLogNotFound),
		errors.Is(err, DomainErrVersionNotFound):
		return true
	}
	return false
}
