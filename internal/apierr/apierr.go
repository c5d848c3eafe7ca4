// internal/apierr/apierr.go
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external_service"
)

// Error carries a taxonomy kind and a machine-readable code alongside the cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Status maps the error kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		if e.Code == CodeRuleLoad {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidZip          = "INVALID_ZIP"
	CodeZipNotFound         = "ZIP_NOT_FOUND"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeRuleNotFound        = "RULE_NOT_FOUND"
	CodeViolationNotFound   = "VIOLATION_NOT_FOUND"
	CodeRuleLoad            = "RULE_LOAD_ERROR"
	CodeClassification      = "CLASSIFICATION_FAILED"
	CodeIngestion           = "INGESTION_FAILED"
	CodeAlreadyResolved     = "ALREADY_RESOLVED"
	CodeDuplicateRule       = "DUPLICATE_RULE"
	CodeRuleCategoryLocked  = "RULE_CATEGORY_LOCKED"
	CodeRevealNotPermitted  = "REVEAL_NOT_PERMITTED"
	CodeExternalUnavailable = "EXTERNAL_SERVICE_ERROR"
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidZip        = &Error{Kind: KindValidation, Code: CodeInvalidZip}
	ErrZipNotFound       = &Error{Kind: KindNotFound, Code: CodeZipNotFound}
	ErrProductNotFound   = &Error{Kind: KindNotFound, Code: CodeProductNotFound}
	ErrRuleNotFound      = &Error{Kind: KindNotFound, Code: CodeRuleNotFound}
	ErrViolationNotFound = &Error{Kind: KindNotFound, Code: CodeViolationNotFound}
	ErrRuleLoad          = &Error{Kind: KindExternal, Code: CodeRuleLoad}
	ErrAlreadyResolved   = &Error{Kind: KindConflict, Code: CodeAlreadyResolved}
)

func Validation(code, message string) *Error {
	if code == "" {
		code = CodeValidation
	}
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func External(code, message string, err error) *Error {
	if code == "" {
		code = CodeExternalUnavailable
	}
	return &Error{Kind: KindExternal, Code: code, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
