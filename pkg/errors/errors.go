package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrThreadClosed    = errors.New("thread is closed")

	ErrInvalidAmount      = errors.New("offer amount must be a positive whole number")
	ErrInvalidResponse    = errors.New("unknown offer response")
	ErrNotRecipient       = errors.New("only the recipient of an offer can respond to it")
	ErrCounterNotAllowed  = errors.New("counter-offers are not available to this role")
	ErrNotActionable      = errors.New("offer is no longer open for responses")
	ErrInFlight           = errors.New("a response to this offer is already being processed")
	ErrPendingOfferExists = errors.New("thread already has a pending offer")

	ErrLinkCodeInvalid = errors.New("link code is invalid or expired")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// HTTPStatusFromError maps wrapped domain errors to a response status.
func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrThreadNotFound),
		errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotRecipient),
		errors.Is(err, ErrCounterNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrLinkCodeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotActionable), errors.Is(err, ErrInFlight),
		errors.Is(err, ErrPendingOfferExists), errors.Is(err, ErrThreadClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
