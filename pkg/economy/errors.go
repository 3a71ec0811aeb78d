package economy

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the economy services.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrOwnerInsufficientFunds = errors.New("shop owner has insufficient funds")
	ErrOfferNotFound          = errors.New("offer not found")
	ErrOfferExpired           = errors.New("offer expired")
	ErrOfferSoldOut           = errors.New("offer sold out")
	ErrOfferKindMismatch      = errors.New("offer does not trade in that direction")
	ErrDuplicateLocation      = errors.New("a shop already exists at this location")
	ErrPriceOutOfBounds       = errors.New("price out of bounds")
	ErrOwnershipViolation     = errors.New("not the owner of this offer")
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrOperationDisabled      = errors.New("operation disabled")
	ErrListingLimitReached    = errors.New("active listing limit reached")
	ErrSelfTrade              = errors.New("cannot trade with yourself")
	ErrPriceNotOffered        = errors.New("item not offered at that price direction")
	ErrRewardNotReady         = errors.New("daily reward not ready")
	ErrNoSession              = errors.New("no shop creation session")
	ErrSessionState           = errors.New("unexpected shop creation step")
	ErrNoPriceSupplied        = errors.New("no price supplied")
	ErrInvalidPlayerID        = errors.New("invalid player id")
	ErrInvalidOfferID         = errors.New("invalid offer id")
	ErrInvalidItem            = errors.New("invalid item")
	ErrInvalidLocation        = errors.New("invalid location")
	ErrInvalidOfferKind       = errors.New("invalid offer kind")
	ErrInvalidTransactionKind = errors.New("invalid transaction kind")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidDuration        = errors.New("invalid duration")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAdminPriceNotFound     = errors.New("admin price not found")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// PersistenceError marks a store failure so it matches ErrPersistenceFailure
// while keeping the cause reachable through errors.Is/As.
func PersistenceError(subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return WrapError(errorOperationStore, subject, code, errors.Join(ErrPersistenceFailure, err))
}

var userMessages = []struct {
	err     error
	message string
}{
	{ErrOwnerInsufficientFunds, "The shop owner cannot afford to buy that right now."},
	{ErrInsufficientFunds, "You do not have enough money for that."},
	{ErrOfferNotFound, "That shop or listing no longer exists."},
	{ErrOfferExpired, "That listing has expired."},
	{ErrOfferSoldOut, "That offer is sold out."},
	{ErrOfferKindMismatch, "That shop does not trade in that direction."},
	{ErrDuplicateLocation, "There is already a shop at this location."},
	{ErrPriceOutOfBounds, "That price is outside the allowed range."},
	{ErrOwnershipViolation, "You do not own that shop or listing."},
	{ErrOperationDisabled, "That kind of shop is currently disabled."},
	{ErrListingLimitReached, "You have reached the maximum number of active listings."},
	{ErrSelfTrade, "You cannot trade with yourself."},
	{ErrPriceNotOffered, "The server shop does not trade that item in that direction."},
	{ErrAdminPriceNotFound, "The server shop does not trade that item."},
	{ErrRewardNotReady, "You already claimed your daily reward. Come back later."},
	{ErrNoSession, "You are not creating a shop. Start again."},
	{ErrSessionState, "Finish the current shop creation step first."},
	{ErrNoPriceSupplied, "A shop needs at least a buy or a sell price."},
	{ErrInvalidPlayerID, "Unknown player."},
	{ErrInvalidOfferID, "Unknown shop or listing."},
	{ErrInvalidItem, "Hold a valid item."},
	{ErrInvalidLocation, "That is not a valid shop location."},
	{ErrInvalidOfferKind, "Unknown shop type."},
	{ErrInvalidAmount, "The amount must be greater than zero."},
	{ErrInvalidQuantity, "The quantity must be greater than zero."},
	{ErrInvalidDuration, "That listing duration is not allowed."},
	{ErrPersistenceFailure, "Your change was applied but could not be saved yet; it will be retried."},
}

// Message renders an error as a user-facing sentence.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range userMessages {
		if errors.Is(err, candidate.err) {
			return candidate.message
		}
	}
	return "The economy is temporarily unavailable. Please try again."
}
