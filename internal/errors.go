package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeUnprocessable ErrorType = "UNPROCESSABLE"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal      ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount        ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountTooHigh        ErrorCode = "AMOUNT_TOO_HIGH"
	ErrCodeInvalidPaymentMethod ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidCurrency      ErrorCode = "INVALID_CURRENCY"
	ErrCodeFeeToggleNotAllowed  ErrorCode = "FEE_TOGGLE_NOT_ALLOWED"

	ErrCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeNoProviderAvailable ErrorCode = "NO_PROVIDER_AVAILABLE"
	ErrCodePaymentProcessing   ErrorCode = "PAYMENT_PROCESSING_FAILED"
	ErrCodePaymentCanceled     ErrorCode = "PAYMENT_CANCELED"

	ErrCodeTransactionFailed ErrorCode = "TRANSACTION_FAILED"
	ErrCodeVersionConflict   ErrorCode = "VERSION_CONFLICT"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNoProviderAvailableError reports that no payment provider is eligible
// for the requested method and restaurant. Terminal, no retry.
func NewNoProviderAvailableError(method, restaurantID string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnprocessable,
		Code:       ErrCodeNoProviderAvailable,
		Message:    fmt.Sprintf("no payment provider available for method %s", method),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"payment_method": method,
			"restaurant_id":  restaurantID,
		},
	}
}

// NewPaymentProcessingError reports that every eligible provider was tried
// and none succeeded. It carries the payment id so the caller can retrieve
// the audit trail; provider internals stay out of the message.
func NewPaymentProcessingError(paymentID string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodePaymentProcessing,
		Message:    "payment could not be processed by any provider",
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
		Details: map[string]string{
			"payment_id": paymentID,
		},
	}
}

func NewPaymentCanceledError(paymentID string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodePaymentCanceled,
		Message:    "payment processing was canceled",
		StatusCode: http.StatusRequestTimeout,
		Cause:      cause,
		Details: map[string]string{
			"payment_id": paymentID,
		},
	}
}

var (
	ErrPaymentNotFound     = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrFeeToggleNotAllowed = NewValidationError("merchant is not allowed to override who pays processor fees", ErrCodeFeeToggleNotAllowed)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
