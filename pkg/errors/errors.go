package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string, waitTime interface{}) *AppError {
	return &AppError{
		Code:    "TOO_MANY_REQUESTS",
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     nil,
	}
}

// Negotiation errors. These are policy violations, not transient failures,
// and are never retried automatically.

func DuplicatePendingOffer(listingID string) *AppError {
	return &AppError{
		Code:    "DUPLICATE_PENDING_OFFER",
		Message: fmt.Sprintf("An unresolved offer already exists for listing %s", listingID),
		Status:  http.StatusConflict,
	}
}

func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:    "INVALID_AMOUNT",
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func AlreadyResolved(message string) *AppError {
	return &AppError{
		Code:    "ALREADY_RESOLVED",
		Message: message,
		Status:  http.StatusConflict,
	}
}

// Chat errors. CHAT_BLOCKED is a state the caller renders, not an error toast,
// but it still travels as an AppError so handlers can branch on the code.

func ChatUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "CHAT_UNAVAILABLE",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func ChatBlocked(chatID string) *AppError {
	return &AppError{
		Code:    "CHAT_BLOCKED",
		Message: fmt.Sprintf("Chat %s is blocked", chatID),
		Status:  http.StatusConflict,
	}
}

// Transport errors, recoverable via retry or resubscribe.

func DeliveryFailed(message string, err error) *AppError {
	return &AppError{
		Code:    "DELIVERY_FAILED",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func SubscriptionLost(message string, err error) *AppError {
	return &AppError{
		Code:    "SUBSCRIPTION_LOST",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
