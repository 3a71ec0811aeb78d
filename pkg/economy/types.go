package economy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlayerID identifies an account owner.
type PlayerID struct {
	value string
}

// OfferID identifies a shop or listing.
type OfferID struct {
	value string
}

// NewPlayerID validates and normalizes a player id.
func NewPlayerID(raw string) (PlayerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PlayerID{}, fmt.Errorf("%w: empty value", ErrInvalidPlayerID)
	}
	return PlayerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PlayerID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id PlayerID) IsZero() bool {
	return id.value == ""
}

// NewOfferID validates and normalizes an offer id.
func NewOfferID(raw string) (OfferID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OfferID{}, fmt.Errorf("%w: empty value", ErrInvalidOfferID)
	}
	return OfferID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id OfferID) String() string {
	return id.value
}

// ItemDescriptor names an item type plus opaque serialized extras (enchantments, names).
type ItemDescriptor struct {
	Type string
	Data string
}

// NewItemDescriptor validates an item descriptor.
func NewItemDescriptor(itemType string, data string) (ItemDescriptor, error) {
	trimmed := strings.TrimSpace(itemType)
	if trimmed == "" {
		return ItemDescriptor{}, fmt.Errorf("%w: empty item type", ErrInvalidItem)
	}
	return ItemDescriptor{Type: strings.ToUpper(trimmed), Data: data}, nil
}

// Location is a block position in a named world.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

// NewLocation validates a world location.
func NewLocation(world string, x, y, z int) (Location, error) {
	trimmed := strings.TrimSpace(world)
	if trimmed == "" {
		return Location{}, fmt.Errorf("%w: empty world", ErrInvalidLocation)
	}
	return Location{World: trimmed, X: x, Y: y, Z: z}, nil
}

// Key is the uniqueness key of a location.
func (location Location) Key() string {
	return fmt.Sprintf("%s:%d:%d:%d", location.World, location.X, location.Y, location.Z)
}

// ParseLocationKey reverses Key.
func ParseLocationKey(raw string) (Location, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return Location{}, fmt.Errorf("%w: malformed key %q", ErrInvalidLocation, raw)
	}
	var coordinates [3]int
	for index, part := range parts[len(parts)-3:] {
		value, err := strconv.Atoi(part)
		if err != nil {
			return Location{}, fmt.Errorf("%w: malformed key %q", ErrInvalidLocation, raw)
		}
		coordinates[index] = value
	}
	return NewLocation(strings.Join(parts[:len(parts)-3], ":"), coordinates[0], coordinates[1], coordinates[2])
}

// DistanceTo returns the euclidean distance, or +Inf across worlds.
func (location Location) DistanceTo(other Location) float64 {
	if location.World != other.World {
		return math.Inf(1)
	}
	dx := float64(location.X - other.X)
	dy := float64(location.Y - other.Y)
	dz := float64(location.Z - other.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// OfferKind is the trade direction of an offer.
type OfferKind string

const (
	OfferSellToBuyers   OfferKind = "sell_to_buyers"
	OfferBuyFromSellers OfferKind = "buy_from_sellers"
)

// ParseOfferKind validates an offer kind.
func ParseOfferKind(raw string) (OfferKind, error) {
	switch OfferKind(strings.TrimSpace(raw)) {
	case OfferSellToBuyers:
		return OfferSellToBuyers, nil
	case OfferBuyFromSellers:
		return OfferBuyFromSellers, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOfferKind, raw)
	}
}

// String returns the raw kind.
func (kind OfferKind) String() string {
	return string(kind)
}

// Offer is a fixed-location shop or a global listing.
type Offer struct {
	ID                 OfferID
	SellerID           PlayerID
	Item               ItemDescriptor
	UnitPrice          decimal.Decimal
	BuybackPrice       *decimal.Decimal
	Kind               OfferKind
	TotalQuantity      int64
	QuantityTransacted int64
	CreatedAt          time.Time
	ExpiresAt          *time.Time
	Location           *Location
	UnlimitedStock     bool
}

// Remaining returns the unsold units; math.MaxInt64 when stock is unlimited.
func (offer Offer) Remaining() int64 {
	if offer.UnlimitedStock {
		return math.MaxInt64
	}
	remaining := offer.TotalQuantity - offer.QuantityTransacted
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReturnQuantity is the number of physical units owed to the owner when the offer is removed:
// unsold stock for sell offers, collected units for buy offers.
func (offer Offer) ReturnQuantity() int64 {
	if offer.Kind == OfferBuyFromSellers {
		return offer.QuantityTransacted
	}
	if offer.UnlimitedStock {
		return 0
	}
	return offer.Remaining()
}

// IsFixed reports whether the offer is bound to a world location.
func (offer Offer) IsFixed() bool {
	return offer.Location != nil
}

// IsExpired reports whether the offer's expiry has been reached.
func (offer Offer) IsExpired(now time.Time) bool {
	return offer.ExpiresAt != nil && !now.Before(*offer.ExpiresAt)
}

// IsSoldOut reports whether no units remain.
func (offer Offer) IsSoldOut() bool {
	return offer.Remaining() == 0
}

// SearchScope restricts FindNearby. A nil Center searches global listings.
type SearchScope struct {
	Center *Location
	Radius float64
}

// Requester is the caller of an ownership-checked operation.
type Requester struct {
	ID       PlayerID
	Override bool
}

// AccountBalance is a leaderboard row.
type AccountBalance struct {
	PlayerID PlayerID
	Balance  decimal.Decimal
}

// AccountSnapshot is a versioned balance as persisted.
type AccountSnapshot struct {
	PlayerID PlayerID
	Balance  decimal.Decimal
	Version  int64
}

// TransactionKind enumerates audit record kinds.
type TransactionKind string

const (
	TransactionDeposit         TransactionKind = "deposit"
	TransactionWithdrawal      TransactionKind = "withdrawal"
	TransactionTransfer        TransactionKind = "transfer"
	TransactionShopBuy         TransactionKind = "shop_buy"
	TransactionShopSell        TransactionKind = "shop_sell"
	TransactionMarketPurchase  TransactionKind = "market_purchase"
	TransactionMarketListing   TransactionKind = "market_listing"
	TransactionDailyReward     TransactionKind = "daily_reward"
	TransactionAdminAdjustment TransactionKind = "admin_adjustment"
)

// ParseTransactionKind validates a transaction kind.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	kind := TransactionKind(strings.TrimSpace(raw))
	switch kind {
	case TransactionDeposit, TransactionWithdrawal, TransactionTransfer,
		TransactionShopBuy, TransactionShopSell, TransactionMarketPurchase,
		TransactionMarketListing, TransactionDailyReward, TransactionAdminAdjustment:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionKind, raw)
	}
}

// String returns the raw kind.
func (kind TransactionKind) String() string {
	return string(kind)
}

// TransactionMetadata carries optional item and location context.
type TransactionMetadata struct {
	OfferID  string `json:"offer_id,omitempty"`
	ItemType string `json:"item_type,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
	Location string `json:"location,omitempty"`
}

// TransactionRecord is an immutable audit entry.
type TransactionRecord struct {
	ID          string
	From        PlayerID
	To          PlayerID
	Amount      decimal.Decimal
	Tax         decimal.Decimal
	Kind        TransactionKind
	Description string
	Metadata    TransactionMetadata
	Timestamp   time.Time
}

// AdminPrice is a row of the administrative price table. Nil means not offered.
type AdminPrice struct {
	ItemType  string
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	UpdatedAt time.Time
}

// DailyRewardState tracks a player's claim streak.
type DailyRewardState struct {
	PlayerID    PlayerID
	Streak      int
	LastClaimAt time.Time
}

// ReturnNotice asks the inventory layer to hand unsold units back to a seller.
type ReturnNotice struct {
	OfferID      OfferID
	SellerID     PlayerID
	Item         ItemDescriptor
	Quantity     int64
	SellerOnline bool
	Reason       string
}

// SaleNotice tells an offer owner that units of the offer were traded.
// Kind is shop_buy or market_purchase when a player bought, shop_sell when a player sold into the shop.
type SaleNotice struct {
	OfferID        OfferID
	SellerID       PlayerID
	CounterpartyID PlayerID
	Kind           TransactionKind
	Item           ItemDescriptor
	Quantity       int64
	Amount         decimal.Decimal
	Escrowed       bool
	SellerOnline   bool
}
