package services

import (
	"errors"
	"fmt"

	"quest-battle-service/models"
)

var (
	// ErrUnauthorized: caller is neither a participant nor an operator.
	ErrUnauthorized = errors.New("caller is not a participant of this battle")

	ErrBattleNotFound = errors.New("battle not found")

	// ErrAlreadyResolved is the idempotency signal: the battle is COMPLETED.
	ErrAlreadyResolved = errors.New("battle already resolved")

	// ErrBattleNotActive: PENDING, CANCELLED or DECLINED battles cannot be settled.
	ErrBattleNotActive = errors.New("battle is not active")

	// ErrTransactionFailed: the settlement did not commit. The battle is
	// still ACTIVE and a later attempt may succeed.
	ErrTransactionFailed = errors.New("settlement transaction failed")

	ErrInvalidCredit   = errors.New("invalid ledger credit")
	ErrDuplicateCredit = errors.New("source already credited this user")
)

// Wire codes returned by ErrorCode.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyResolved    = "ALREADY_RESOLVED"
	CodeNotActive          = "NOT_ACTIVE"
	CodeTransactionFailure = "TRANSACTION_FAILURE"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternal           = "INTERNAL"
)

// ResolutionError carries the battle id and, for failed transactions, the
// underlying store error.
type ResolutionError struct {
	BattleID string
	Kind     error
	Status   models.BattleStatus // observed status, when known
	Cause    error
}

func (e *ResolutionError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("battle %s: %v: %v", e.BattleID, e.Kind, e.Cause)
	case e.Status != "":
		return fmt.Sprintf("battle %s: %v (status %s)", e.BattleID, e.Kind, e.Status)
	default:
		return fmt.Sprintf("battle %s: %v", e.BattleID, e.Kind)
	}
}

func (e *ResolutionError) Unwrap() error {
	return e.Kind
}

func resolutionErr(battleID string, kind error) *ResolutionError {
	return &ResolutionError{BattleID: battleID, Kind: kind}
}

func txFailure(battleID string, cause error) *ResolutionError {
	return &ResolutionError{BattleID: battleID, Kind: ErrTransactionFailed, Cause: cause}
}

// statusError maps a non-ACTIVE status to the matching guard error.
func statusError(battleID string, status models.BattleStatus) *ResolutionError {
	switch status {
	case models.BattleStatusCompleted:
		return &ResolutionError{BattleID: battleID, Kind: ErrAlreadyResolved, Status: status}
	case models.BattleStatusPending, models.BattleStatusCancelled, models.BattleStatusDeclined, models.BattleStatusActive:
		return &ResolutionError{BattleID: battleID, Kind: ErrBattleNotActive, Status: status}
	default:
		return &ResolutionError{BattleID: battleID, Kind: ErrBattleNotActive, Status: status}
	}
}

// ErrorCode maps an error from this package to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrBattleNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyResolved):
		return CodeAlreadyResolved
	case errors.Is(err, ErrBattleNotActive):
		return CodeNotActive
	case errors.Is(err, ErrTransactionFailed):
		return CodeTransactionFailure
	case errors.Is(err, ErrInvalidCredit), errors.Is(err, ErrDuplicateCredit):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// IsRetryable returns true if the same call may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
