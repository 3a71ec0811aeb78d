package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorMapping struct {
	sentinel error
	code     codes.Code
	detail   string
}

// Order matters: ErrOwnerInsufficientFunds also matches ErrInsufficientFunds.
var errorMappings = []errorMapping{
	{economy.ErrOwnerInsufficientFunds, codes.FailedPrecondition, "owner_insufficient_funds"},
	{economy.ErrInsufficientFunds, codes.FailedPrecondition, "insufficient_funds"},
	{economy.ErrOfferNotFound, codes.NotFound, "offer_not_found"},
	{economy.ErrOfferExpired, codes.FailedPrecondition, "offer_expired"},
	{economy.ErrOfferSoldOut, codes.FailedPrecondition, "offer_sold_out"},
	{economy.ErrOfferKindMismatch, codes.FailedPrecondition, "offer_kind_mismatch"},
	{economy.ErrDuplicateLocation, codes.AlreadyExists, "duplicate_location"},
	{economy.ErrPriceOutOfBounds, codes.InvalidArgument, "price_out_of_bounds"},
	{economy.ErrOwnershipViolation, codes.PermissionDenied, "ownership_violation"},
	{economy.ErrOperationDisabled, codes.FailedPrecondition, "operation_disabled"},
	{economy.ErrListingLimitReached, codes.ResourceExhausted, "listing_limit_reached"},
	{economy.ErrSelfTrade, codes.InvalidArgument, "self_trade"},
	{economy.ErrPriceNotOffered, codes.FailedPrecondition, "price_not_offered"},
	{economy.ErrRewardNotReady, codes.FailedPrecondition, "reward_not_ready"},
	{economy.ErrNoSession, codes.NotFound, "no_session"},
	{economy.ErrSessionState, codes.FailedPrecondition, "session_state"},
	{economy.ErrNoPriceSupplied, codes.InvalidArgument, "no_price_supplied"},
	{economy.ErrAccountNotFound, codes.NotFound, "account_not_found"},
	{economy.ErrAdminPriceNotFound, codes.NotFound, "admin_price_not_found"},
	{economy.ErrInvalidPlayerID, codes.InvalidArgument, "invalid_player_id"},
	{economy.ErrInvalidOfferID, codes.InvalidArgument, "invalid_offer_id"},
	{economy.ErrInvalidItem, codes.InvalidArgument, "invalid_item"},
	{economy.ErrInvalidLocation, codes.InvalidArgument, "invalid_location"},
	{economy.ErrInvalidOfferKind, codes.InvalidArgument, "invalid_offer_kind"},
	{economy.ErrInvalidTransactionKind, codes.InvalidArgument, "invalid_transaction_kind"},
	{economy.ErrInvalidAmount, codes.InvalidArgument, "invalid_amount"},
	{economy.ErrInvalidQuantity, codes.InvalidArgument, "invalid_quantity"},
	{economy.ErrInvalidDuration, codes.InvalidArgument, "invalid_duration"},
	{economy.ErrPersistenceFailure, codes.Unavailable, "persistence_failure"},
}

func mapToGRPCError(source error) error {
	if source == nil {
		return nil
	}
	for _, mapping := range errorMappings {
		if errors.Is(source, mapping.sentinel) {
			return status.Error(mapping.code, mapping.detail)
		}
	}
	if errors.Is(source, context.Canceled) {
		return status.Error(codes.Canceled, source.Error())
	}
	if errors.Is(source, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, source.Error())
	}
	return status.Error(codes.Internal, source.Error())
}

// FromGRPCError restores the economy sentinel behind a status returned by the server,
// so callers can keep matching with errors.Is and rendering with economy.Message.
func FromGRPCError(source error) error {
	if source == nil {
		return nil
	}
	grpcStatus, ok := status.FromError(source)
	if !ok {
		return source
	}
	for _, mapping := range errorMappings {
		if grpcStatus.Code() == mapping.code && grpcStatus.Message() == mapping.detail {
			return mapping.sentinel
		}
	}
	return source
}

// ErrorCode returns the stable snake_case code of an economy error, or "" when none applies.
func ErrorCode(source error) string {
	for _, mapping := range errorMappings {
		if errors.Is(source, mapping.sentinel) {
			return mapping.detail
		}
	}
	return ""
}
