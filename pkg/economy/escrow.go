package economy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const escrowKeyPrefix = "escrow:"

// CollectOutcome is the result of collecting escrowed earnings.
type CollectOutcome struct {
	Amount     decimal.Decimal
	Balance    decimal.Decimal
	Durability Durability
}

// Escrow holds market proceeds per seller until they are collected.
type Escrow struct {
	store    EscrowStore
	queue    WriteQueue
	ledger   *Ledger
	audit    auditor
	settings Settings
	options  options
	sellers  *entryTable[decimal.Decimal]
}

// NewEscrow constructs an Escrow.
func NewEscrow(store EscrowStore, queue WriteQueue, ledger *Ledger, log TransactionLog, settings Settings, opts ...Option) (*Escrow, error) {
	if store == nil || queue == nil || ledger == nil {
		return nil, fmt.Errorf("%w: escrow requires store, queue and ledger", ErrInvalidServiceConfig)
	}
	resolved := buildOptions(opts)
	return &Escrow{
		store:    store,
		queue:    queue,
		ledger:   ledger,
		audit:    auditor{log: log, now: resolved.now},
		settings: settings,
		options:  resolved,
		sellers:  newEntryTable[decimal.Decimal](),
	}, nil
}

// Pending returns the seller's uncollected earnings.
func (escrow *Escrow) Pending(ctx context.Context, seller PlayerID) (decimal.Decimal, error) {
	if seller.IsZero() {
		return decimal.Zero, ErrInvalidPlayerID
	}
	held := escrow.sellers.acquire(seller.String())
	defer held.mu.Unlock()
	if err := escrow.ensureLoaded(ctx, seller, held); err != nil {
		return decimal.Zero, err
	}
	return held.value, nil
}

// Credit adds a positive amount to the seller's pending earnings.
func (escrow *Escrow) Credit(ctx context.Context, seller PlayerID, amount decimal.Decimal) (decimal.Decimal, Durability, error) {
	return escrow.credit(ctx, seller, amount)
}

func (escrow *Escrow) credit(ctx context.Context, seller PlayerID, amount decimal.Decimal) (decimal.Decimal, Durability, error) {
	if seller.IsZero() {
		return decimal.Zero, Durability{}, ErrInvalidPlayerID
	}
	amount = escrow.settings.round(amount)
	if !amount.IsPositive() {
		return decimal.Zero, Durability{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	held := escrow.sellers.acquire(seller.String())
	defer held.mu.Unlock()
	if err := escrow.ensureLoaded(ctx, seller, held); err != nil {
		return decimal.Zero, Durability{}, err
	}
	held.value = held.value.Add(amount)
	return held.value, escrow.persist(seller, held), nil
}

// Collect moves all pending earnings into the seller's balance. Nothing happens
// when there is nothing to collect.
func (escrow *Escrow) Collect(ctx context.Context, seller PlayerID) (CollectOutcome, error) {
	outcome, err := escrow.collect(ctx, seller)
	escrow.options.logOperation(ctx, OperationLog{
		Operation: operationCollect,
		PlayerID:  seller,
		Amount:    outcome.Amount,
		Error:     err,
	})
	return outcome, err
}

func (escrow *Escrow) collect(ctx context.Context, seller PlayerID) (CollectOutcome, error) {
	if seller.IsZero() {
		return CollectOutcome{}, ErrInvalidPlayerID
	}
	held := escrow.sellers.acquire(seller.String())
	defer held.mu.Unlock()
	if err := escrow.ensureLoaded(ctx, seller, held); err != nil {
		return CollectOutcome{}, err
	}
	amount := held.value
	if !amount.IsPositive() {
		return CollectOutcome{Amount: decimal.Zero}, nil
	}
	held.value = decimal.Zero
	receipt, err := escrow.ledger.adjust(ctx, seller, amount, true)
	if err != nil {
		held.value = amount
		return CollectOutcome{}, err
	}
	durability := receipt.Durability.join(escrow.persist(seller, held))
	escrow.audit.record(TransactionRecord{
		To:          seller,
		Amount:      amount,
		Tax:         decimal.Zero,
		Kind:        TransactionDeposit,
		Description: descriptionEscrowCollect,
	})
	return CollectOutcome{Amount: amount, Balance: receipt.Balance, Durability: durability}, nil
}

func (escrow *Escrow) ensureLoaded(ctx context.Context, seller PlayerID, held *entry[decimal.Decimal]) error {
	if held.loaded {
		return nil
	}
	pending, err := escrow.store.LoadEscrow(ctx, seller)
	if err != nil {
		return PersistenceError(errorSubjectEscrow, errorCodeLoad, err)
	}
	held.value = pending
	held.loaded = true
	return nil
}

// persist queues the held pending amount; the caller holds the entry lock.
func (escrow *Escrow) persist(seller PlayerID, held *entry[decimal.Decimal]) Durability {
	pending := held.value
	generation := held.beginWrite()
	return newDurability(escrow.queue.Enqueue(WriteJob{
		Key:         escrowKeyPrefix + seller.String(),
		Description: "save escrow",
		Write: func(ctx context.Context) error {
			if err := escrow.store.SaveEscrow(ctx, seller, pending); err != nil {
				return PersistenceError(errorSubjectEscrow, errorCodeSave, err)
			}
			return nil
		},
		OnDone: func(err error) {
			held.finishWrite(generation, err)
		},
	}))
}

// Evict drops a seller whose pending amount reached the store. A seller whose
// last write failed stays cached and the amount is queued again.
func (escrow *Escrow) Evict(seller PlayerID) bool {
	if escrow.sellers.evict(seller.String()) {
		return true
	}
	held, found := escrow.sellers.lookup(seller.String())
	if !found {
		return true
	}
	defer held.mu.Unlock()
	if held.loaded && held.unsaved() {
		escrow.persist(seller, held)
	}
	return false
}
