package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies a failure independently of the transport.
type Kind string

const (
	Validation        Kind = "VALIDATION"
	StateConflict     Kind = "STATE_CONFLICT"
	Authorization     Kind = "AUTHORIZATION"
	AccountBlocked    Kind = "ACCOUNT_BLOCKED"
	InsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	NotFound          Kind = "NOT_FOUND"
	Unauthenticated   Kind = "UNAUTHENTICATED"
	RateLimited       Kind = "RATE_LIMITED"
	Internal          Kind = "INTERNAL"
)

// Error is a domain failure carrying a stable machine-readable code.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches errors by code so sentinels work with errors.Is even when the
// message was customised.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message}
}

var (
	ErrInvalidInput       = New(Validation, "INVALID_INPUT", "invalid input")
	ErrInvalidAmount      = New(Validation, "INVALID_AMOUNT", "amount must be one of 500, 1000, 2000")
	ErrEmptyCart          = New(Validation, "EMPTY_CART", "cart is empty")
	ErrNoValidItems       = New(Validation, "NO_VALID_ITEMS", "no purchasable items in cart")
	ErrCodeRequired       = New(Validation, "CODE_REQUIRED", "code is required")
	ErrAmountOutOfRange   = New(Validation, "AMOUNT_OUT_OF_RANGE", "order total is out of range")
	ErrUsernameTaken      = New(Validation, "USERNAME_TAKEN", "username already exists")
	ErrRateLimited        = New(RateLimited, "RATE_LIMITED", "too many attempts, try again later")
	ErrInvalidState       = New(StateConflict, "INVALID_STATE", "operation not allowed in current state")
	ErrForbidden          = New(Authorization, "FORBIDDEN", "forbidden")
	ErrNotAssigned        = New(Authorization, "NOT_ASSIGNED", "code is not visible to this staff member")
	ErrAccountBlocked     = New(AccountBlocked, "ACCOUNT_BLOCKED", "account is blocked, contact your branch")
	ErrInsufficientCredit = New(InsufficientFunds, "INSUFFICIENT_CREDIT", "credit balance too low")
	ErrCodeNotFound       = New(NotFound, "CODE_NOT_FOUND", "this code does not exist")
	ErrNotFound           = New(NotFound, "NOT_FOUND", "not found")
	ErrStaffNotFound      = New(NotFound, "STAFF_NOT_FOUND", "staff member not found")
	ErrUnauthenticated    = New(Unauthenticated, "UNAUTHENTICATED", "missing or invalid token")
	ErrInvalidCredentials = New(Unauthenticated, "INVALID_CREDENTIALS", "invalid username or password")
)

// KindOf reports the Kind of err, or Internal when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps an error onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case StateConflict:
		return http.StatusConflict
	case Authorization, AccountBlocked:
		return http.StatusForbidden
	case InsufficientFunds:
		return http.StatusPaymentRequired
	case NotFound:
		return http.StatusNotFound
	case Unauthenticated:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Write encodes err as a JSON error body. Non-domain errors are reported
// without their internal detail.
func Write(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = New(Internal, "INTERNAL", "internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(e))
	json.NewEncoder(w).Encode(e)
}
