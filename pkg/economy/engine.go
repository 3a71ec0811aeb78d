package economy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const defaultHistoryLimit = 20

// Engine wires the economy services around one store, write queue and transaction log.
type Engine struct {
	Ledger   *Ledger
	Catalog  *Catalog
	Escrow   *Escrow
	Admin    *AdminCatalog
	Sessions *ShopSessions
	Rewards  *DailyRewards
	Sweeper  *Sweeper

	store    Store
	audit    auditor
	settings Settings
	options  options
}

// NewEngine validates dependencies and constructs every service.
func NewEngine(store Store, queue WriteQueue, log TransactionLog, settings Settings, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidServiceConfig)
	}
	if queue == nil {
		return nil, fmt.Errorf("%w: write queue is required", ErrInvalidServiceConfig)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	resolved := buildOptions(opts)

	ledger, err := NewLedger(store, queue, settings, opts...)
	if err != nil {
		return nil, err
	}
	escrow, err := NewEscrow(store, queue, ledger, log, settings, opts...)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(store, queue, ledger, escrow, log, settings, opts...)
	if err != nil {
		return nil, err
	}
	admin, err := NewAdminCatalog(store, ledger, log, settings, opts...)
	if err != nil {
		return nil, err
	}
	sessions, err := NewShopSessions(catalog, settings, opts...)
	if err != nil {
		return nil, err
	}
	rewards, err := NewDailyRewards(store, ledger, log, settings, opts...)
	if err != nil {
		return nil, err
	}
	sweeper, err := NewSweeper(catalog, sessions, settings.SweepInterval, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Ledger:   ledger,
		Catalog:  catalog,
		Escrow:   escrow,
		Admin:    admin,
		Sessions: sessions,
		Rewards:  rewards,
		Sweeper:  sweeper,
		store:    store,
		audit:    auditor{log: log, now: resolved.now},
		settings: settings,
		options:  resolved,
	}, nil
}

// Load warms the offer index and the admin price table.
func (engine *Engine) Load(ctx context.Context) error {
	if err := engine.Catalog.Load(ctx); err != nil {
		return err
	}
	return engine.Admin.Load(ctx)
}

// Settings returns the economy tuning in effect.
func (engine *Engine) Settings() Settings {
	return engine.settings
}

// Deposit credits a player and records a deposit.
func (engine *Engine) Deposit(ctx context.Context, player PlayerID, amount decimal.Decimal, description string) (Receipt, error) {
	receipt, err := engine.Ledger.Deposit(ctx, player, amount)
	if err != nil {
		return receipt, err
	}
	engine.audit.record(TransactionRecord{
		To:          player,
		Amount:      engine.settings.round(amount),
		Tax:         decimal.Zero,
		Kind:        TransactionDeposit,
		Description: description,
	})
	return receipt, nil
}

// Withdraw debits a player and records a withdrawal. Nothing is recorded on failure.
func (engine *Engine) Withdraw(ctx context.Context, player PlayerID, amount decimal.Decimal, description string) (Receipt, error) {
	receipt, err := engine.Ledger.Withdraw(ctx, player, amount)
	if err != nil {
		return receipt, err
	}
	engine.audit.record(TransactionRecord{
		From:        player,
		Amount:      engine.settings.round(amount),
		Tax:         decimal.Zero,
		Kind:        TransactionWithdrawal,
		Description: description,
	})
	return receipt, nil
}

// Transfer moves money between players and records one transfer.
func (engine *Engine) Transfer(ctx context.Context, from PlayerID, to PlayerID, amount decimal.Decimal, description string) (TransferReceipt, error) {
	receipt, err := engine.Ledger.Transfer(ctx, from, to, amount)
	if err != nil {
		return receipt, err
	}
	engine.audit.record(TransactionRecord{
		From:        from,
		To:          to,
		Amount:      engine.settings.round(amount),
		Tax:         decimal.Zero,
		Kind:        TransactionTransfer,
		Description: description,
	})
	return receipt, nil
}

// SetBalance replaces a balance and records the administrative adjustment.
func (engine *Engine) SetBalance(ctx context.Context, player PlayerID, amount decimal.Decimal, description string) (Receipt, error) {
	receipt, err := engine.Ledger.SetBalance(ctx, player, amount)
	if err != nil {
		return receipt, err
	}
	engine.audit.record(TransactionRecord{
		To:          player,
		Amount:      receipt.Balance,
		Tax:         decimal.Zero,
		Kind:        TransactionAdminAdjustment,
		Description: description,
	})
	return receipt, nil
}

// CollectEarnings moves the seller's escrow into their balance.
func (engine *Engine) CollectEarnings(ctx context.Context, seller PlayerID) (CollectOutcome, error) {
	return engine.Escrow.Collect(ctx, seller)
}

// History returns the player's most recent transaction records, newest first.
func (engine *Engine) History(ctx context.Context, player PlayerID, before time.Time, limit int) ([]TransactionRecord, error) {
	if player.IsZero() {
		return nil, ErrInvalidPlayerID
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if before.IsZero() {
		before = engine.options.now().Add(time.Second)
	}
	records, err := engine.store.ListTransactions(ctx, player, before.UTC(), limit)
	if err != nil {
		return nil, PersistenceError(errorSubjectHistory, errorCodeList, err)
	}
	return records, nil
}

// Disconnect releases per-player state when a player leaves.
func (engine *Engine) Disconnect(player PlayerID) {
	engine.Sessions.Disconnect(player)
	engine.Ledger.Evict(player)
	engine.Escrow.Evict(player)
	engine.Rewards.Evict(player)
}
