// Package apperrors defines the machine-readable failure taxonomy for the
// poolrun engine. Every rejection the engine produces carries one of these
// codes; the API layer maps codes to HTTP statuses. All failures are
// synchronous and leave state untouched.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified internal error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors — caller-input validation.
	CodeInvalidFee              Code = "INVALID_FEE"
	CodeInvalidDepositAmount    Code = "INVALID_DEPOSIT_AMOUNT"
	CodeInvalidParticipantLimit Code = "INVALID_PARTICIPANT_LIMIT"
	CodeInvalidVoteStats        Code = "INVALID_VOTE_STATS"

	// State-machine violations.
	CodePlatformPaused       Code = "PLATFORM_PAUSED"
	CodePlatformNotPaused    Code = "PLATFORM_NOT_PAUSED"
	CodeRunNotInWaitingPhase Code = "RUN_NOT_IN_WAITING_PHASE"
	CodeInvalidRunStatus     Code = "INVALID_RUN_STATUS"
	CodeRunNotSettled        Code = "RUN_NOT_SETTLED"
	CodeNoParticipants       Code = "RUN_HAS_NO_PARTICIPANTS"

	// Capacity/bounds violations.
	CodeDepositTooLow  Code = "DEPOSIT_TOO_LOW"
	CodeDepositTooHigh Code = "DEPOSIT_TOO_HIGH"
	CodeRunFull        Code = "RUN_FULL"

	// Accounting-integrity violations. Hard rejections, never coerced.
	CodeInvalidSharesCount     Code = "INVALID_SHARES_COUNT"
	CodeVaultBalanceMismatch   Code = "VAULT_BALANCE_MISMATCH"
	CodeInsufficientVaultFunds Code = "INSUFFICIENT_VAULT_FUNDS"

	// Authorization and storage.
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// Double-action violations.
	CodeAlreadyWithdrawn Code = "ALREADY_WITHDRAWN"
)

// Error is a typed engine error carrying a Code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a typed error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates a typed error with attached key/value metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// CodeOf extracts the Code from an error chain, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HTTPStatus maps an error code to an HTTP status for the API surface.
func (c Code) HTTPStatus() int {
	switch c {
	// Validation failures, bad input.
	case CodeInvalidFee,
		CodeInvalidDepositAmount,
		CodeInvalidParticipantLimit,
		CodeInvalidVoteStats,
		CodeInvalidSharesCount:
		return http.StatusBadRequest

	// State doesn't allow the operation, or the action already happened.
	case CodePlatformPaused,
		CodePlatformNotPaused,
		CodeRunNotInWaitingPhase,
		CodeInvalidRunStatus,
		CodeRunNotSettled,
		CodeNoParticipants,
		CodeDepositTooLow,
		CodeDepositTooHigh,
		CodeRunFull,
		CodeVaultBalanceMismatch,
		CodeInsufficientVaultFunds,
		CodeAlreadyExists,
		CodeAlreadyWithdrawn:
		return http.StatusConflict

	case CodeUnauthorized:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
