package economy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu           sync.Mutex
	accounts     map[string]AccountSnapshot
	offers       map[string]Offer
	escrow       map[string]decimal.Decimal
	transactions []TransactionRecord
	adminPrices  map[string]AdminPrice
	rewards      map[string]DailyRewardState

	loadCalls        int
	failLoadAccount  map[string]error
	failSaveBalances error
	failInsertOffer  error
	failDeleteOffer  error
	failLoadEscrow   error
	failSaveEscrow   error
	failSaveReward   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:        make(map[string]AccountSnapshot),
		offers:          make(map[string]Offer),
		escrow:          make(map[string]decimal.Decimal),
		adminPrices:     make(map[string]AdminPrice),
		rewards:         make(map[string]DailyRewardState),
		failLoadAccount: make(map[string]error),
	}
}

func (store *memoryStore) LoadOrCreateAccount(_ context.Context, playerID PlayerID, startingBalance decimal.Decimal) (AccountSnapshot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.loadCalls++
	if err := store.failLoadAccount[playerID.String()]; err != nil {
		return AccountSnapshot{}, err
	}
	snapshot, found := store.accounts[playerID.String()]
	if !found {
		snapshot = AccountSnapshot{PlayerID: playerID, Balance: startingBalance}
		store.accounts[playerID.String()] = snapshot
	}
	return snapshot, nil
}

func (store *memoryStore) SaveBalances(_ context.Context, snapshots []AccountSnapshot) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failSaveBalances != nil {
		return store.failSaveBalances
	}
	for _, snapshot := range snapshots {
		current, found := store.accounts[snapshot.PlayerID.String()]
		if found && current.Version >= snapshot.Version {
			continue
		}
		store.accounts[snapshot.PlayerID.String()] = snapshot
	}
	return nil
}

func (store *memoryStore) TopBalances(_ context.Context, limit int) ([]AccountBalance, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	balances := make([]AccountBalance, 0, len(store.accounts))
	for _, snapshot := range store.accounts {
		balances = append(balances, AccountBalance{PlayerID: snapshot.PlayerID, Balance: snapshot.Balance})
	}
	sort.Slice(balances, func(left, right int) bool {
		if !balances[left].Balance.Equal(balances[right].Balance) {
			return balances[left].Balance.GreaterThan(balances[right].Balance)
		}
		return balances[left].PlayerID.String() < balances[right].PlayerID.String()
	})
	if len(balances) > limit {
		balances = balances[:limit]
	}
	return balances, nil
}

func (store *memoryStore) InsertOffer(_ context.Context, offer Offer) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failInsertOffer != nil {
		return store.failInsertOffer
	}
	if offer.Location != nil {
		for _, existing := range store.offers {
			if existing.Location != nil && existing.Location.Key() == offer.Location.Key() {
				return ErrDuplicateLocation
			}
		}
	}
	store.offers[offer.ID.String()] = offer
	return nil
}

func (store *memoryStore) UpdateOfferProgress(_ context.Context, offerID OfferID, quantityTransacted int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	offer, found := store.offers[offerID.String()]
	if !found {
		return nil
	}
	offer.QuantityTransacted = quantityTransacted
	store.offers[offerID.String()] = offer
	return nil
}

func (store *memoryStore) UpdateOfferPrice(_ context.Context, offerID OfferID, unitPrice decimal.Decimal, buybackPrice *decimal.Decimal) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	offer, found := store.offers[offerID.String()]
	if !found {
		return nil
	}
	offer.UnitPrice = unitPrice
	offer.BuybackPrice = buybackPrice
	store.offers[offerID.String()] = offer
	return nil
}

func (store *memoryStore) DeleteOffer(_ context.Context, offerID OfferID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failDeleteOffer != nil {
		return store.failDeleteOffer
	}
	delete(store.offers, offerID.String())
	return nil
}

func (store *memoryStore) ListOffers(context.Context) ([]Offer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	offers := make([]Offer, 0, len(store.offers))
	for _, offer := range store.offers {
		offers = append(offers, offer)
	}
	return offers, nil
}

func (store *memoryStore) LoadEscrow(_ context.Context, sellerID PlayerID) (decimal.Decimal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failLoadEscrow != nil {
		return decimal.Zero, store.failLoadEscrow
	}
	return store.escrow[sellerID.String()], nil
}

func (store *memoryStore) SaveEscrow(_ context.Context, sellerID PlayerID, pending decimal.Decimal) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failSaveEscrow != nil {
		return store.failSaveEscrow
	}
	store.escrow[sellerID.String()] = pending
	return nil
}

func (store *memoryStore) InsertTransaction(_ context.Context, record TransactionRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.transactions = append(store.transactions, record)
	return nil
}

func (store *memoryStore) ListTransactions(_ context.Context, playerID PlayerID, before time.Time, limit int) ([]TransactionRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matches := make([]TransactionRecord, 0)
	for index := len(store.transactions) - 1; index >= 0 && len(matches) < limit; index-- {
		record := store.transactions[index]
		if (record.From == playerID || record.To == playerID) && record.Timestamp.Before(before) {
			matches = append(matches, record)
		}
	}
	return matches, nil
}

func (store *memoryStore) UpsertAdminPrice(_ context.Context, price AdminPrice) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.adminPrices[price.ItemType] = price
	return nil
}

func (store *memoryStore) ListAdminPrices(context.Context) ([]AdminPrice, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	prices := make([]AdminPrice, 0, len(store.adminPrices))
	for _, price := range store.adminPrices {
		prices = append(prices, price)
	}
	return prices, nil
}

func (store *memoryStore) LoadDailyReward(_ context.Context, playerID PlayerID) (DailyRewardState, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	state, found := store.rewards[playerID.String()]
	return state, found, nil
}

func (store *memoryStore) SaveDailyReward(_ context.Context, state DailyRewardState) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failSaveReward != nil {
		return store.failSaveReward
	}
	store.rewards[state.PlayerID.String()] = state
	return nil
}

func (store *memoryStore) storedBalance(test *testing.T, playerID PlayerID) decimal.Decimal {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot, found := store.accounts[playerID.String()]
	if !found {
		test.Fatalf("no stored account for %s", playerID)
	}
	return snapshot.Balance
}

func (store *memoryStore) storedOffer(offerID OfferID) (Offer, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	offer, found := store.offers[offerID.String()]
	return offer, found
}

// syncQueue runs every job inline.
type syncQueue struct {
	mu   sync.Mutex
	jobs int
}

func (queue *syncQueue) Enqueue(job WriteJob) *PendingWrite {
	queue.mu.Lock()
	queue.jobs++
	queue.mu.Unlock()
	err := job.Write(context.Background())
	if job.OnDone != nil {
		job.OnDone(err)
	}
	return SettledWrite(err)
}

// manualQueue holds jobs until Flush.
type manualQueue struct {
	mu      sync.Mutex
	jobs    []WriteJob
	pending []*PendingWrite
}

func (queue *manualQueue) Enqueue(job WriteJob) *PendingWrite {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	pending := NewPendingWrite()
	queue.jobs = append(queue.jobs, job)
	queue.pending = append(queue.pending, pending)
	return pending
}

func (queue *manualQueue) runAt(index int) {
	queue.mu.Lock()
	job := queue.jobs[index]
	pending := queue.pending[index]
	queue.mu.Unlock()
	err := job.Write(context.Background())
	if job.OnDone != nil {
		job.OnDone(err)
	}
	pending.Settle(err)
}

func (queue *manualQueue) flush() {
	queue.mu.Lock()
	count := len(queue.jobs)
	queue.mu.Unlock()
	for index := 0; index < count; index++ {
		queue.runAt(index)
	}
}

type recordingLog struct {
	mu      sync.Mutex
	records []TransactionRecord
}

func (log *recordingLog) Append(record TransactionRecord) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.records = append(log.records, record)
}

func (log *recordingLog) ofKind(kind TransactionKind) []TransactionRecord {
	log.mu.Lock()
	defer log.mu.Unlock()
	matches := make([]TransactionRecord, 0)
	for _, record := range log.records {
		if record.Kind == kind {
			matches = append(matches, record)
		}
	}
	return matches
}

func (log *recordingLog) count() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.records)
}

type recordingNotifier struct {
	mu      sync.Mutex
	returns []ReturnNotice
	sales   []SaleNotice
}

func (notifier *recordingNotifier) ReturnUnsold(_ context.Context, notice ReturnNotice) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.returns = append(notifier.returns, notice)
}

func (notifier *recordingNotifier) SaleCompleted(_ context.Context, notice SaleNotice) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.sales = append(notifier.sales, notice)
}

type onlineSet map[string]bool

func (online onlineSet) IsOnline(playerID PlayerID) bool {
	return online[playerID.String()]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

type engineFixture struct {
	engine   *Engine
	store    *memoryStore
	log      *recordingLog
	notifier *recordingNotifier
	clock    *fakeClock
}

func newEngineFixture(test *testing.T, mutate func(*Settings), opts ...Option) engineFixture {
	test.Helper()
	settings := DefaultSettings()
	settings.StartingBalance = decimal.Zero
	if mutate != nil {
		mutate(&settings)
	}
	fixture := engineFixture{
		store:    newMemoryStore(),
		log:      &recordingLog{},
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
	}
	engineOptions := append([]Option{WithClock(fixture.clock.Now), WithNotifier(fixture.notifier)}, opts...)
	engine, err := NewEngine(fixture.store, &syncQueue{}, fixture.log, settings, engineOptions...)
	if err != nil {
		test.Fatalf("engine init failed: %v", err)
	}
	fixture.engine = engine
	return fixture
}

func (fixture engineFixture) fund(test *testing.T, playerID PlayerID, amount string) {
	test.Helper()
	if _, err := fixture.engine.Ledger.SetBalance(context.Background(), playerID, mustDecimal(test, amount)); err != nil {
		test.Fatalf("fund %s failed: %v", playerID, err)
	}
}

func (fixture engineFixture) balance(test *testing.T, playerID PlayerID) decimal.Decimal {
	test.Helper()
	balance, err := fixture.engine.Ledger.GetBalance(context.Background(), playerID)
	if err != nil {
		test.Fatalf("balance %s failed: %v", playerID, err)
	}
	return balance
}

func mustPlayerID(test *testing.T, raw string) PlayerID {
	test.Helper()
	playerID, err := NewPlayerID(raw)
	if err != nil {
		test.Fatalf("invalid player id: %v", err)
	}
	return playerID
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("invalid decimal %q: %v", raw, err)
	}
	return value
}

func mustItem(test *testing.T, itemType string) ItemDescriptor {
	test.Helper()
	item, err := NewItemDescriptor(itemType, "")
	if err != nil {
		test.Fatalf("invalid item: %v", err)
	}
	return item
}

func mustLocation(test *testing.T, world string, x, y, z int) Location {
	test.Helper()
	location, err := NewLocation(world, x, y, z)
	if err != nil {
		test.Fatalf("invalid location: %v", err)
	}
	return location
}

func requireAmount(test *testing.T, label string, got decimal.Decimal, want string) {
	test.Helper()
	if !got.Equal(mustDecimal(test, want)) {
		test.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}

func requireErrorIs(test *testing.T, err error, target error) {
	test.Helper()
	if !errors.Is(err, target) {
		test.Fatalf("expected %v, got %v", target, err)
	}
}

func decimalPointer(test *testing.T, raw string) *decimal.Decimal {
	test.Helper()
	value := mustDecimal(test, raw)
	return &value
}
