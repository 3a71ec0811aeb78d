package economy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStore persists balances.
type AccountStore interface {
	// LoadOrCreateAccount inserts the account with the starting balance when absent and returns the stored row.
	LoadOrCreateAccount(ctx context.Context, playerID PlayerID, startingBalance decimal.Decimal) (AccountSnapshot, error)
	// SaveBalances writes all snapshots in one transaction; rows holding a newer version are left untouched.
	SaveBalances(ctx context.Context, snapshots []AccountSnapshot) error
	// TopBalances orders by balance descending then player id.
	TopBalances(ctx context.Context, limit int) ([]AccountBalance, error)
}

// OfferStore persists offers. InsertOffer returns ErrDuplicateLocation on a location conflict.
type OfferStore interface {
	InsertOffer(ctx context.Context, offer Offer) error
	UpdateOfferProgress(ctx context.Context, offerID OfferID, quantityTransacted int64) error
	UpdateOfferPrice(ctx context.Context, offerID OfferID, unitPrice decimal.Decimal, buybackPrice *decimal.Decimal) error
	DeleteOffer(ctx context.Context, offerID OfferID) error
	ListOffers(ctx context.Context) ([]Offer, error)
}

// EscrowStore persists pending seller earnings.
type EscrowStore interface {
	LoadEscrow(ctx context.Context, sellerID PlayerID) (decimal.Decimal, error)
	SaveEscrow(ctx context.Context, sellerID PlayerID, pending decimal.Decimal) error
}

// TransactionStore persists the audit trail.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, record TransactionRecord) error
	// ListTransactions returns records involving the player older than before, newest first.
	ListTransactions(ctx context.Context, playerID PlayerID, before time.Time, limit int) ([]TransactionRecord, error)
}

// AdminPriceStore persists the administrative price table.
type AdminPriceStore interface {
	UpsertAdminPrice(ctx context.Context, price AdminPrice) error
	ListAdminPrices(ctx context.Context) ([]AdminPrice, error)
}

// DailyRewardStore persists claim streaks.
type DailyRewardStore interface {
	LoadDailyReward(ctx context.Context, playerID PlayerID) (DailyRewardState, bool, error)
	SaveDailyReward(ctx context.Context, state DailyRewardState) error
}

// Store aggregates every persistence contract of the engine.
type Store interface {
	AccountStore
	OfferStore
	EscrowStore
	TransactionStore
	AdminPriceStore
	DailyRewardStore
}

// WriteJob is a durable write executed off the caller's path.
type WriteJob struct {
	// Key orders jobs: writes sharing a key run in enqueue order.
	Key         string
	Description string
	Write       func(ctx context.Context) error
	// OnDone runs once with the final outcome, before the pending write settles.
	OnDone func(err error)
}

// WriteQueue executes durable writes asynchronously.
type WriteQueue interface {
	Enqueue(job WriteJob) *PendingWrite
}

// TransactionLog appends audit records without blocking or failing the caller.
type TransactionLog interface {
	Append(record TransactionRecord)
}

// Notifier hands events to the external inventory and chat layer.
type Notifier interface {
	ReturnUnsold(ctx context.Context, notice ReturnNotice)
	SaleCompleted(ctx context.Context, notice SaleNotice)
}

// IdentityResolver reports player presence.
type IdentityResolver interface {
	IsOnline(playerID PlayerID) bool
}
