package economy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const accountKeyPrefix = "account:"

type accountState struct {
	balance decimal.Decimal
	version int64
}

// Ledger owns cached player balances backed by an AccountStore.
// Mutations apply to the cache synchronously and persist through the WriteQueue.
type Ledger struct {
	store    AccountStore
	queue    WriteQueue
	settings Settings
	options  options
	accounts *entryTable[accountState]
}

// NewLedger validates dependencies and constructs a Ledger.
func NewLedger(store AccountStore, queue WriteQueue, settings Settings, opts ...Option) (*Ledger, error) {
	if store == nil || queue == nil {
		return nil, fmt.Errorf("%w: ledger requires a store and a write queue", ErrInvalidServiceConfig)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		store:    store,
		queue:    queue,
		settings: settings,
		options:  buildOptions(opts),
		accounts: newEntryTable[accountState](),
	}, nil
}

// GetBalance returns the cached balance, loading or creating the account on first access.
func (ledger *Ledger) GetBalance(ctx context.Context, playerID PlayerID) (decimal.Decimal, error) {
	if playerID.IsZero() {
		return decimal.Zero, ErrInvalidPlayerID
	}
	account := ledger.accounts.acquire(playerID.String())
	defer account.mu.Unlock()
	if err := ledger.ensureLoaded(ctx, playerID, account); err != nil {
		return decimal.Zero, err
	}
	return account.value.balance, nil
}

// Has reports whether the player holds at least amount.
func (ledger *Ledger) Has(ctx context.Context, playerID PlayerID, amount decimal.Decimal) (bool, error) {
	balance, err := ledger.GetBalance(ctx, playerID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

// SetBalance replaces the balance, clamping negative amounts to zero.
func (ledger *Ledger) SetBalance(ctx context.Context, playerID PlayerID, amount decimal.Decimal) (Receipt, error) {
	if playerID.IsZero() {
		return Receipt{}, ErrInvalidPlayerID
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	account := ledger.accounts.acquire(playerID.String())
	defer account.mu.Unlock()
	if err := ledger.ensureLoaded(ctx, playerID, account); err != nil {
		ledger.options.logOperation(ctx, OperationLog{Operation: operationSetBalance, PlayerID: playerID, Amount: amount, Error: err})
		return Receipt{}, err
	}
	receipt := ledger.apply(playerID, account, ledger.settings.round(amount))
	ledger.options.logOperation(ctx, OperationLog{Operation: operationSetBalance, PlayerID: playerID, Amount: amount})
	return receipt, nil
}

// Deposit adds a positive amount.
func (ledger *Ledger) Deposit(ctx context.Context, playerID PlayerID, amount decimal.Decimal) (Receipt, error) {
	receipt, err := ledger.adjust(ctx, playerID, amount, true)
	ledger.options.logOperation(ctx, OperationLog{Operation: operationDeposit, PlayerID: playerID, Amount: amount, Error: err})
	return receipt, err
}

// Withdraw removes a positive amount, failing with ErrInsufficientFunds without mutating.
func (ledger *Ledger) Withdraw(ctx context.Context, playerID PlayerID, amount decimal.Decimal) (Receipt, error) {
	receipt, err := ledger.adjust(ctx, playerID, amount, false)
	ledger.options.logOperation(ctx, OperationLog{Operation: operationWithdraw, PlayerID: playerID, Amount: amount, Error: err})
	return receipt, err
}

func (ledger *Ledger) adjust(ctx context.Context, playerID PlayerID, amount decimal.Decimal, credit bool) (Receipt, error) {
	if playerID.IsZero() {
		return Receipt{}, ErrInvalidPlayerID
	}
	amount = ledger.settings.round(amount)
	if !amount.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	account := ledger.accounts.acquire(playerID.String())
	defer account.mu.Unlock()
	if err := ledger.ensureLoaded(ctx, playerID, account); err != nil {
		return Receipt{}, err
	}
	if credit {
		return ledger.apply(playerID, account, account.value.balance.Add(amount)), nil
	}
	if account.value.balance.LessThan(amount) {
		return Receipt{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, account.value.balance.String(), amount.String())
	}
	return ledger.apply(playerID, account, account.value.balance.Sub(amount)), nil
}

// Transfer moves amount between two players. Both balances are persisted by one store write.
func (ledger *Ledger) Transfer(ctx context.Context, fromID PlayerID, toID PlayerID, amount decimal.Decimal) (TransferReceipt, error) {
	receipt, err := ledger.transfer(ctx, fromID, toID, amount)
	ledger.options.logOperation(ctx, OperationLog{Operation: operationTransfer, PlayerID: fromID, Counterparty: toID, Amount: amount, Error: err})
	return receipt, err
}

func (ledger *Ledger) transfer(ctx context.Context, fromID PlayerID, toID PlayerID, amount decimal.Decimal) (TransferReceipt, error) {
	if fromID.IsZero() || toID.IsZero() {
		return TransferReceipt{}, ErrInvalidPlayerID
	}
	if fromID == toID {
		return TransferReceipt{}, ErrSelfTrade
	}
	amount = ledger.settings.round(amount)
	if !amount.IsPositive() {
		return TransferReceipt{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	sender, receiver := ledger.accounts.acquirePair(fromID.String(), toID.String())
	defer sender.mu.Unlock()
	defer receiver.mu.Unlock()

	if err := ledger.ensureLoaded(ctx, fromID, sender); err != nil {
		return TransferReceipt{}, err
	}
	if sender.value.balance.LessThan(amount) {
		return TransferReceipt{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, sender.value.balance.String(), amount.String())
	}
	senderBefore := sender.value
	sender.value = accountState{balance: senderBefore.balance.Sub(amount), version: senderBefore.version + 1}

	if err := ledger.ensureLoaded(ctx, toID, receiver); err != nil {
		// compensate: the sender never leaves this call debited
		sender.value = senderBefore
		return TransferReceipt{}, err
	}
	receiver.value = accountState{balance: receiver.value.balance.Add(amount), version: receiver.value.version + 1}

	snapshots := []AccountSnapshot{
		{PlayerID: fromID, Balance: sender.value.balance, Version: sender.value.version},
		{PlayerID: toID, Balance: receiver.value.balance, Version: receiver.value.version},
	}
	durability := ledger.enqueue(accountKeyPrefix+fromID.String(), snapshots, sender, receiver)
	return TransferReceipt{
		FromBalance: sender.value.balance,
		ToBalance:   receiver.value.balance,
		Durability:  durability,
	}, nil
}

// TopBalances reads the store directly, bypassing the cache.
func (ledger *Ledger) TopBalances(ctx context.Context, limit int) ([]AccountBalance, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidQuantity, limit)
	}
	balances, err := ledger.store.TopBalances(ctx, limit)
	if err != nil {
		return nil, PersistenceError(errorSubjectAccount, errorCodeLeaderboard, err)
	}
	return balances, nil
}

// Evict drops a cached account whose writes all reached the store. It reports whether the entry is gone.
// An account whose last write failed stays cached and its current balance is queued again.
func (ledger *Ledger) Evict(playerID PlayerID) bool {
	if ledger.accounts.evict(playerID.String()) {
		return true
	}
	ledger.resave(playerID)
	return false
}

// resave re-enqueues the cached snapshot of an account whose newest write failed.
func (ledger *Ledger) resave(playerID PlayerID) Durability {
	account, found := ledger.accounts.lookup(playerID.String())
	if !found {
		return Durability{}
	}
	defer account.mu.Unlock()
	if !account.loaded || !account.unsaved() {
		return Durability{}
	}
	snapshot := AccountSnapshot{PlayerID: playerID, Balance: account.value.balance, Version: account.value.version}
	return ledger.enqueue(accountKeyPrefix+playerID.String(), []AccountSnapshot{snapshot}, account)
}

// CachedAccounts returns the number of cached accounts.
func (ledger *Ledger) CachedAccounts() int {
	return ledger.accounts.len()
}

// ensureLoaded runs under the account lock so concurrent first accesses share one load.
func (ledger *Ledger) ensureLoaded(ctx context.Context, playerID PlayerID, account *entry[accountState]) error {
	if account.loaded {
		return nil
	}
	snapshot, err := ledger.store.LoadOrCreateAccount(ctx, playerID, ledger.settings.round(ledger.settings.StartingBalance))
	if err != nil {
		return PersistenceError(errorSubjectAccount, errorCodeLoad, err)
	}
	account.value = accountState{balance: snapshot.Balance, version: snapshot.Version}
	account.loaded = true
	return nil
}

func (ledger *Ledger) apply(playerID PlayerID, account *entry[accountState], balance decimal.Decimal) Receipt {
	account.value = accountState{balance: balance, version: account.value.version + 1}
	snapshot := AccountSnapshot{PlayerID: playerID, Balance: balance, Version: account.value.version}
	return Receipt{
		Balance:    balance,
		Durability: ledger.enqueue(accountKeyPrefix+playerID.String(), []AccountSnapshot{snapshot}, account),
	}
}

func (ledger *Ledger) enqueue(key string, snapshots []AccountSnapshot, held ...*entry[accountState]) Durability {
	generations := make([]int64, len(held))
	for index, account := range held {
		generations[index] = account.beginWrite()
	}
	pending := ledger.queue.Enqueue(WriteJob{
		Key:         key,
		Description: "save balances",
		Write: func(ctx context.Context) error {
			if err := ledger.store.SaveBalances(ctx, snapshots); err != nil {
				return PersistenceError(errorSubjectAccount, errorCodeSave, err)
			}
			return nil
		},
		OnDone: func(err error) {
			for index, account := range held {
				account.finishWrite(generations[index], err)
			}
		},
	})
	return newDurability(pending)
}
