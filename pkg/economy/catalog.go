package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const offerKeyPrefix = "offer:"

// FixedOfferRequest creates a shop bound to a location.
type FixedOfferRequest struct {
	Seller       PlayerID
	Location     Location
	Item         ItemDescriptor
	Kind         OfferKind
	UnitPrice    decimal.Decimal
	BuybackPrice *decimal.Decimal
	Quantity     int64
	Unlimited    bool
	Override     bool
}

// ListingRequest creates a global time-limited listing.
type ListingRequest struct {
	Seller    PlayerID
	Item      ItemDescriptor
	UnitPrice decimal.Decimal
	Quantity  int64
	Duration  time.Duration
}

// RemovedOffer is an offer taken out of the catalog and the units owed back to its owner.
type RemovedOffer struct {
	Offer    Offer
	Returned int64
}

type offerEntry struct {
	mu      sync.Mutex
	offer   Offer
	removed bool
	view    atomic.Pointer[Offer]
}

func newOfferEntry(offer Offer) *offerEntry {
	created := &offerEntry{offer: offer}
	created.publish()
	return created
}

// publish exposes the current offer to lock-free readers; callers hold mu.
func (current *offerEntry) publish() {
	snapshot := current.offer
	current.view.Store(&snapshot)
}

// Catalog indexes fixed shops and global listings.
type Catalog struct {
	store    OfferStore
	queue    WriteQueue
	ledger   *Ledger
	escrow   *Escrow
	audit    auditor
	settings Settings
	options  options

	mu                sync.RWMutex
	offers            map[string]*offerEntry
	byLocation        map[string]string
	bySeller          map[string]map[string]struct{}
	reservedLocations map[string]struct{}
	pendingListings   map[string]int
}

// NewCatalog constructs an empty catalog. Call Load to warm it from the store.
func NewCatalog(store OfferStore, queue WriteQueue, ledger *Ledger, escrow *Escrow, log TransactionLog, settings Settings, opts ...Option) (*Catalog, error) {
	if store == nil || queue == nil || ledger == nil || escrow == nil {
		return nil, fmt.Errorf("%w: catalog requires store, queue, ledger and escrow", ErrInvalidServiceConfig)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	resolved := buildOptions(opts)
	return &Catalog{
		store:             store,
		queue:             queue,
		ledger:            ledger,
		escrow:            escrow,
		audit:             auditor{log: log, now: resolved.now},
		settings:          settings,
		options:           resolved,
		offers:            make(map[string]*offerEntry),
		byLocation:        make(map[string]string),
		bySeller:          make(map[string]map[string]struct{}),
		reservedLocations: make(map[string]struct{}),
		pendingListings:   make(map[string]int),
	}, nil
}

// Load replaces the index with the offers held by the store.
func (catalog *Catalog) Load(ctx context.Context) error {
	offers, err := catalog.store.ListOffers(ctx)
	if err != nil {
		return PersistenceError(errorSubjectOffer, errorCodeList, err)
	}
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.offers = make(map[string]*offerEntry, len(offers))
	catalog.byLocation = make(map[string]string)
	catalog.bySeller = make(map[string]map[string]struct{})
	for _, offer := range offers {
		catalog.indexLocked(newOfferEntry(offer))
	}
	return nil
}

// CreateFixedOffer persists a shop at a free location before indexing it.
func (catalog *Catalog) CreateFixedOffer(ctx context.Context, request FixedOfferRequest) (Offer, error) {
	offer, err := catalog.createFixedOffer(ctx, request)
	catalog.options.logOperation(ctx, OperationLog{
		Operation: operationCreateShop,
		PlayerID:  request.Seller,
		OfferID:   offer.ID,
		ItemType:  request.Item.Type,
		Amount:    request.UnitPrice,
		Quantity:  request.Quantity,
		Error:     err,
	})
	return offer, err
}

func (catalog *Catalog) createFixedOffer(ctx context.Context, request FixedOfferRequest) (Offer, error) {
	if err := catalog.validateFixedOffer(request); err != nil {
		return Offer{}, err
	}
	locationKey := request.Location.Key()
	catalog.mu.Lock()
	_, occupied := catalog.byLocation[locationKey]
	_, reserved := catalog.reservedLocations[locationKey]
	if occupied || reserved {
		catalog.mu.Unlock()
		return Offer{}, fmt.Errorf("%w: %s", ErrDuplicateLocation, locationKey)
	}
	catalog.reservedLocations[locationKey] = struct{}{}
	catalog.mu.Unlock()

	location := request.Location
	offer := Offer{
		ID:             OfferID{value: uuid.NewString()},
		SellerID:       request.Seller,
		Item:           request.Item,
		UnitPrice:      catalog.settings.round(request.UnitPrice),
		BuybackPrice:   roundedPointer(catalog.settings, request.BuybackPrice),
		Kind:           request.Kind,
		TotalQuantity:  request.Quantity,
		CreatedAt:      catalog.options.now().UTC(),
		Location:       &location,
		UnlimitedStock: request.Unlimited,
	}
	insertErr := catalog.store.InsertOffer(ctx, offer)

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	delete(catalog.reservedLocations, locationKey)
	if insertErr != nil {
		if errors.Is(insertErr, ErrDuplicateLocation) {
			return Offer{}, insertErr
		}
		return Offer{}, PersistenceError(errorSubjectOffer, errorCodeInsert, insertErr)
	}
	catalog.indexLocked(newOfferEntry(offer))
	return offer, nil
}

func (catalog *Catalog) validateFixedOffer(request FixedOfferRequest) error {
	if request.Seller.IsZero() {
		return ErrInvalidPlayerID
	}
	if strings.TrimSpace(request.Item.Type) == "" {
		return ErrInvalidItem
	}
	if strings.TrimSpace(request.Location.World) == "" {
		return ErrInvalidLocation
	}
	if request.Unlimited && !request.Override {
		return fmt.Errorf("%w: unlimited stock requires an administrative override", ErrOwnershipViolation)
	}
	if !request.Unlimited && request.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, request.Quantity)
	}
	switch request.Kind {
	case OfferSellToBuyers:
		if !catalog.settings.SellShopsEnabled {
			return fmt.Errorf("%w: selling shops", ErrOperationDisabled)
		}
	case OfferBuyFromSellers:
		if !catalog.settings.BuyShopsEnabled {
			return fmt.Errorf("%w: buying shops", ErrOperationDisabled)
		}
		if request.BuybackPrice != nil {
			return fmt.Errorf("%w: buying shops carry a single price", ErrInvalidOfferKind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOfferKind, request.Kind)
	}
	if err := catalog.settings.checkPrice(request.UnitPrice); err != nil {
		return err
	}
	if request.BuybackPrice != nil {
		if err := catalog.settings.checkPrice(*request.BuybackPrice); err != nil {
			return err
		}
	}
	return nil
}

// CreateGlobalListing persists a time-limited listing. The caller removes the items
// from the seller beforehand and returns them when this fails.
func (catalog *Catalog) CreateGlobalListing(ctx context.Context, request ListingRequest) (Offer, error) {
	offer, err := catalog.createGlobalListing(ctx, request)
	catalog.options.logOperation(ctx, OperationLog{
		Operation: operationCreateListing,
		PlayerID:  request.Seller,
		OfferID:   offer.ID,
		ItemType:  request.Item.Type,
		Amount:    request.UnitPrice,
		Quantity:  request.Quantity,
		Error:     err,
	})
	return offer, err
}

func (catalog *Catalog) createGlobalListing(ctx context.Context, request ListingRequest) (Offer, error) {
	if request.Seller.IsZero() {
		return Offer{}, ErrInvalidPlayerID
	}
	if strings.TrimSpace(request.Item.Type) == "" {
		return Offer{}, ErrInvalidItem
	}
	if request.Quantity <= 0 {
		return Offer{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, request.Quantity)
	}
	if request.Duration <= 0 || request.Duration > catalog.settings.MaxListingDuration {
		return Offer{}, fmt.Errorf("%w: %s exceeds (0, %s]", ErrInvalidDuration, request.Duration, catalog.settings.MaxListingDuration)
	}
	if err := catalog.settings.checkPrice(request.UnitPrice); err != nil {
		return Offer{}, err
	}

	now := catalog.options.now().UTC()
	sellerKey := request.Seller.String()
	catalog.mu.Lock()
	if catalog.activeListingsLocked(sellerKey, now)+catalog.pendingListings[sellerKey] >= catalog.settings.MaxListingsPerSeller {
		catalog.mu.Unlock()
		return Offer{}, fmt.Errorf("%w: %d", ErrListingLimitReached, catalog.settings.MaxListingsPerSeller)
	}
	catalog.pendingListings[sellerKey]++
	catalog.mu.Unlock()

	expiresAt := now.Add(request.Duration)
	offer := Offer{
		ID:            OfferID{value: uuid.NewString()},
		SellerID:      request.Seller,
		Item:          request.Item,
		UnitPrice:     catalog.settings.round(request.UnitPrice),
		Kind:          OfferSellToBuyers,
		TotalQuantity: request.Quantity,
		CreatedAt:     now,
		ExpiresAt:     &expiresAt,
	}
	insertErr := catalog.store.InsertOffer(ctx, offer)

	catalog.mu.Lock()
	catalog.pendingListings[sellerKey]--
	if catalog.pendingListings[sellerKey] <= 0 {
		delete(catalog.pendingListings, sellerKey)
	}
	if insertErr == nil {
		catalog.indexLocked(newOfferEntry(offer))
	}
	catalog.mu.Unlock()
	if insertErr != nil {
		return Offer{}, PersistenceError(errorSubjectOffer, errorCodeInsert, insertErr)
	}

	catalog.audit.record(TransactionRecord{
		From:        request.Seller,
		Amount:      decimal.Zero,
		Tax:         decimal.Zero,
		Kind:        TransactionMarketListing,
		Description: fmt.Sprintf("listed %d x %s at %s", offer.TotalQuantity, offer.Item.Type, offer.UnitPrice.StringFixed(catalog.settings.CurrencyScale)),
		Metadata:    offerMetadata(offer, offer.TotalQuantity),
	})
	return offer, nil
}

// Cancel removes an offer owned by the requester, deleting it from the store first.
func (catalog *Catalog) Cancel(ctx context.Context, offerID OfferID, requester Requester) (RemovedOffer, error) {
	removed, err := catalog.cancel(ctx, offerID, requester)
	catalog.options.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		PlayerID:  requester.ID,
		OfferID:   offerID,
		Quantity:  removed.Returned,
		Error:     err,
	})
	return removed, err
}

func (catalog *Catalog) cancel(ctx context.Context, offerID OfferID, requester Requester) (RemovedOffer, error) {
	current, err := catalog.lockOffer(offerID)
	if err != nil {
		return RemovedOffer{}, err
	}
	defer current.mu.Unlock()
	if !requester.Override && requester.ID != current.offer.SellerID {
		return RemovedOffer{}, ErrOwnershipViolation
	}
	if err := catalog.store.DeleteOffer(ctx, offerID); err != nil {
		return RemovedOffer{}, PersistenceError(errorSubjectOffer, errorCodeDelete, err)
	}
	current.removed = true
	catalog.unindex(current.offer)
	return RemovedOffer{Offer: current.offer, Returned: current.offer.ReturnQuantity()}, nil
}

// PriceChange is a price update for an owned offer. A nil BuybackPrice keeps the
// current buyback price unless ClearBuyback is set.
type PriceChange struct {
	UnitPrice    decimal.Decimal
	BuybackPrice *decimal.Decimal
	ClearBuyback bool
}

// UpdatePrice changes the prices of an owned offer. The store update is write-behind.
func (catalog *Catalog) UpdatePrice(ctx context.Context, offerID OfferID, requester Requester, change PriceChange) (Offer, Durability, error) {
	offer, durability, err := catalog.updatePrice(offerID, requester, change)
	catalog.options.logOperation(ctx, OperationLog{
		Operation: operationUpdatePrice,
		PlayerID:  requester.ID,
		OfferID:   offerID,
		Amount:    change.UnitPrice,
		Error:     err,
	})
	return offer, durability, err
}

func (catalog *Catalog) updatePrice(offerID OfferID, requester Requester, change PriceChange) (Offer, Durability, error) {
	if change.ClearBuyback && change.BuybackPrice != nil {
		return Offer{}, Durability{}, fmt.Errorf("%w: cannot set and clear the buyback price together", ErrInvalidAmount)
	}
	if err := catalog.settings.checkPrice(change.UnitPrice); err != nil {
		return Offer{}, Durability{}, err
	}
	if change.BuybackPrice != nil {
		if err := catalog.settings.checkPrice(*change.BuybackPrice); err != nil {
			return Offer{}, Durability{}, err
		}
	}
	current, err := catalog.lockOffer(offerID)
	if err != nil {
		return Offer{}, Durability{}, err
	}
	defer current.mu.Unlock()
	if !requester.Override && requester.ID != current.offer.SellerID {
		return Offer{}, Durability{}, ErrOwnershipViolation
	}
	if change.BuybackPrice != nil && (current.offer.Kind != OfferSellToBuyers || !current.offer.IsFixed()) {
		return Offer{}, Durability{}, fmt.Errorf("%w: only selling shops carry a buyback price", ErrOfferKindMismatch)
	}
	current.offer.UnitPrice = catalog.settings.round(change.UnitPrice)
	switch {
	case change.BuybackPrice != nil:
		current.offer.BuybackPrice = roundedPointer(catalog.settings, change.BuybackPrice)
	case change.ClearBuyback:
		current.offer.BuybackPrice = nil
	}
	current.publish()

	price := current.offer.UnitPrice
	buyback := current.offer.BuybackPrice
	pending := catalog.queue.Enqueue(WriteJob{
		Key:         offerKeyPrefix + offerID.String(),
		Description: "update offer price",
		Write: func(ctx context.Context) error {
			if err := catalog.store.UpdateOfferPrice(ctx, offerID, price, buyback); err != nil {
				return PersistenceError(errorSubjectOffer, errorCodeSave, err)
			}
			return nil
		},
	})
	return current.offer, newDurability(pending), nil
}

// Get returns an indexed offer.
func (catalog *Catalog) Get(offerID OfferID) (Offer, error) {
	catalog.mu.RLock()
	current, found := catalog.offers[offerID.String()]
	catalog.mu.RUnlock()
	if !found {
		return Offer{}, ErrOfferNotFound
	}
	return *current.view.Load(), nil
}

// OfferAt returns the fixed offer bound to location.
func (catalog *Catalog) OfferAt(location Location) (Offer, error) {
	catalog.mu.RLock()
	offerID, found := catalog.byLocation[location.Key()]
	var current *offerEntry
	if found {
		current = catalog.offers[offerID]
	}
	catalog.mu.RUnlock()
	if current == nil {
		return Offer{}, ErrOfferNotFound
	}
	return *current.view.Load(), nil
}

// LocationTaken reports whether a fixed offer occupies or is being created at location.
func (catalog *Catalog) LocationTaken(location Location) bool {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	key := location.Key()
	_, occupied := catalog.byLocation[key]
	_, reserved := catalog.reservedLocations[key]
	return occupied || reserved
}

// FindNearby returns active offers for itemType ordered by price. A nil scope center
// searches global listings; otherwise fixed shops within the radius.
func (catalog *Catalog) FindNearby(itemType string, scope SearchScope) []Offer {
	normalized := strings.ToUpper(strings.TrimSpace(itemType))
	now := catalog.options.now()
	results := make([]Offer, 0)
	for _, offer := range catalog.snapshot() {
		if normalized != "" && offer.Item.Type != normalized {
			continue
		}
		if !isActive(offer, now) {
			continue
		}
		if scope.Center == nil {
			if offer.IsFixed() {
				continue
			}
		} else {
			if !offer.IsFixed() || offer.Location.DistanceTo(*scope.Center) > scope.Radius {
				continue
			}
		}
		results = append(results, offer)
	}
	sort.Slice(results, func(left, right int) bool {
		if !results[left].UnitPrice.Equal(results[right].UnitPrice) {
			return results[left].UnitPrice.LessThan(results[right].UnitPrice)
		}
		return results[left].CreatedAt.Before(results[right].CreatedAt)
	})
	return results
}

// ListForSeller returns the seller's offers, oldest first. Expired and exhausted
// offers are included only when includeInactive is set.
func (catalog *Catalog) ListForSeller(seller PlayerID, includeInactive bool) []Offer {
	now := catalog.options.now()
	catalog.mu.RLock()
	entries := make([]*offerEntry, 0, len(catalog.bySeller[seller.String()]))
	for offerID := range catalog.bySeller[seller.String()] {
		entries = append(entries, catalog.offers[offerID])
	}
	catalog.mu.RUnlock()

	results := make([]Offer, 0, len(entries))
	for _, current := range entries {
		offer := *current.view.Load()
		if includeInactive || isActive(offer, now) {
			results = append(results, offer)
		}
	}
	sort.Slice(results, func(left, right int) bool {
		return results[left].CreatedAt.Before(results[right].CreatedAt)
	})
	return results
}

// ExpiredOffers lists offers whose expiry has been reached.
func (catalog *Catalog) ExpiredOffers(now time.Time) []OfferID {
	expired := make([]OfferID, 0)
	for _, offer := range catalog.snapshot() {
		if offer.IsExpired(now) {
			expired = append(expired, offer.ID)
		}
	}
	return expired
}

// Retire removes an expired offer from the index and schedules the store delete.
// It reports false when the offer is already gone or not yet expired.
func (catalog *Catalog) Retire(offerID OfferID, now time.Time) (RemovedOffer, Durability, bool) {
	current, err := catalog.lockOffer(offerID)
	if err != nil {
		return RemovedOffer{}, Durability{}, false
	}
	defer current.mu.Unlock()
	if !current.offer.IsExpired(now) {
		return RemovedOffer{}, Durability{}, false
	}
	current.removed = true
	catalog.unindex(current.offer)
	pending := catalog.queue.Enqueue(WriteJob{
		Key:         offerKeyPrefix + offerID.String(),
		Description: "delete expired offer",
		Write: func(ctx context.Context) error {
			if err := catalog.store.DeleteOffer(ctx, offerID); err != nil {
				return PersistenceError(errorSubjectOffer, errorCodeDelete, err)
			}
			return nil
		},
	})
	return RemovedOffer{Offer: current.offer, Returned: current.offer.ReturnQuantity()}, newDurability(pending), true
}

// lockOffer returns the locked live entry for offerID.
func (catalog *Catalog) lockOffer(offerID OfferID) (*offerEntry, error) {
	catalog.mu.RLock()
	current, found := catalog.offers[offerID.String()]
	catalog.mu.RUnlock()
	if !found {
		return nil, ErrOfferNotFound
	}
	current.mu.Lock()
	if current.removed {
		current.mu.Unlock()
		return nil, ErrOfferNotFound
	}
	return current, nil
}

func (catalog *Catalog) snapshot() []Offer {
	catalog.mu.RLock()
	entries := make([]*offerEntry, 0, len(catalog.offers))
	for _, current := range catalog.offers {
		entries = append(entries, current)
	}
	catalog.mu.RUnlock()
	offers := make([]Offer, 0, len(entries))
	for _, current := range entries {
		offers = append(offers, *current.view.Load())
	}
	return offers
}

func (catalog *Catalog) indexLocked(current *offerEntry) {
	offer := current.offer
	offerKey := offer.ID.String()
	catalog.offers[offerKey] = current
	if offer.Location != nil {
		catalog.byLocation[offer.Location.Key()] = offerKey
	}
	sellerKey := offer.SellerID.String()
	if catalog.bySeller[sellerKey] == nil {
		catalog.bySeller[sellerKey] = make(map[string]struct{})
	}
	catalog.bySeller[sellerKey][offerKey] = struct{}{}
}

func (catalog *Catalog) unindex(offer Offer) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	offerKey := offer.ID.String()
	delete(catalog.offers, offerKey)
	if offer.Location != nil && catalog.byLocation[offer.Location.Key()] == offerKey {
		delete(catalog.byLocation, offer.Location.Key())
	}
	sellerKey := offer.SellerID.String()
	delete(catalog.bySeller[sellerKey], offerKey)
	if len(catalog.bySeller[sellerKey]) == 0 {
		delete(catalog.bySeller, sellerKey)
	}
}

func (catalog *Catalog) activeListingsLocked(sellerKey string, now time.Time) int {
	count := 0
	for offerID := range catalog.bySeller[sellerKey] {
		offer := *catalog.offers[offerID].view.Load()
		if !offer.IsFixed() && isActive(offer, now) {
			count++
		}
	}
	return count
}

func isActive(offer Offer, now time.Time) bool {
	return !offer.IsExpired(now) && !offer.IsSoldOut()
}

func roundedPointer(settings Settings, amount *decimal.Decimal) *decimal.Decimal {
	if amount == nil {
		return nil
	}
	rounded := settings.round(*amount)
	return &rounded
}
