package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// Error categories.
const (
	CategoryValidation     = "validation"
	CategoryAuthentication = "authentication"
	CategoryIntegrity      = "integrity"
	CategoryNotFound       = "not_found"
	CategoryConfiguration  = "configuration"
	CategoryProcessing     = "processing"
)

// Public error codes.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeTicketTypeNotFound   = "TICKET_TYPE_NOT_FOUND"
	CodeInvalidQuantity      = "INVALID_QUANTITY"
	CodeInvalidWebhookBody   = "INVALID_WEBHOOK_BODY"
	CodeInvalidSignatureData = "INVALID_SIGNATURE_DATA"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeMissingReference     = "MISSING_REFERENCE"
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeNotFound             = "NOT_FOUND"
	CodeNoNFCUID             = "NO_NFC_UID"
	CodeProviderEnvMissing   = "WOMPI_ENV_MISSING"
	CodeDBError              = "DB_ERROR"
	CodeServerError          = "SERVER_ERROR"
	CodeNoToken              = "NO_TOKEN"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeForbidden            = "FORBIDDEN"
	CodeNoAPIKey             = "NO_API_KEY"
	CodeInvalidDevice        = "INVALID_DEVICE"
)

// ServiceError carries a public machine code and an internal message kept for logs.
type ServiceError struct {
	Category      string
	StatusCode    int
	Code          string
	InternalError string
	OriginalErr   error
}

func (e *ServiceError) Error() string {
	if e.InternalError != "" {
		return e.InternalError
	}
	return e.Code
}

func (e *ServiceError) Unwrap() error {
	return e.OriginalErr
}

func NewValidationError(code, internal string) *ServiceError {
	return &ServiceError{
		Category:      CategoryValidation,
		StatusCode:    http.StatusBadRequest,
		Code:          code,
		InternalError: internal,
	}
}

func NewIntegrityError(code string, status int, internal string) *ServiceError {
	return &ServiceError{
		Category:      CategoryIntegrity,
		StatusCode:    status,
		Code:          code,
		InternalError: internal,
	}
}

func NewNotFoundError(code, internal string) *ServiceError {
	return &ServiceError{
		Category:      CategoryNotFound,
		StatusCode:    http.StatusNotFound,
		Code:          code,
		InternalError: internal,
	}
}

func NewConfigurationError(code, internal string) *ServiceError {
	return &ServiceError{
		Category:      CategoryConfiguration,
		StatusCode:    http.StatusInternalServerError,
		Code:          code,
		InternalError: internal,
	}
}

func NewInternalError(code string, err error, format string, args ...any) *ServiceError {
	return &ServiceError{
		Category:      CategoryProcessing,
		StatusCode:    http.StatusInternalServerError,
		Code:          code,
		InternalError: fmt.Sprintf(format, args...) + ": " + errString(err),
		OriginalErr:   err,
	}
}

// AsServiceError unwraps err into a ServiceError. ErrNotFound becomes a 404,
// anything else a generic 500.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, ErrNotFound) {
		return NewNotFoundError(CodeNotFound, err.Error())
	}
	return &ServiceError{
		Category:      CategoryProcessing,
		StatusCode:    http.StatusInternalServerError,
		Code:          CodeServerError,
		InternalError: errString(err),
		OriginalErr:   err,
	}
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
