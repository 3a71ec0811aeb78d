package economy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// AdminTrade is the result of trading with the server shop.
type AdminTrade struct {
	ItemType   string
	Quantity   int64
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	Balance    decimal.Decimal
	Durability Durability
}

// AdminCatalog is the server shop: fixed prices per item type with unlimited stock.
// BuyPrice is what a player pays to buy one unit; SellPrice is what a player receives for one.
type AdminCatalog struct {
	store    AdminPriceStore
	ledger   *Ledger
	audit    auditor
	settings Settings
	options  options

	mu     sync.RWMutex
	prices map[string]AdminPrice
}

// NewAdminCatalog constructs an empty admin catalog. Call Load to warm it.
func NewAdminCatalog(store AdminPriceStore, ledger *Ledger, log TransactionLog, settings Settings, opts ...Option) (*AdminCatalog, error) {
	if store == nil || ledger == nil {
		return nil, fmt.Errorf("%w: admin catalog requires store and ledger", ErrInvalidServiceConfig)
	}
	resolved := buildOptions(opts)
	return &AdminCatalog{
		store:    store,
		ledger:   ledger,
		audit:    auditor{log: log, now: resolved.now},
		settings: settings,
		options:  resolved,
		prices:   make(map[string]AdminPrice),
	}, nil
}

// Load replaces the cached price table with the stored one.
func (admin *AdminCatalog) Load(ctx context.Context) error {
	prices, err := admin.store.ListAdminPrices(ctx)
	if err != nil {
		return PersistenceError(errorSubjectAdmin, errorCodeList, err)
	}
	loaded := make(map[string]AdminPrice, len(prices))
	for _, price := range prices {
		loaded[price.ItemType] = price
	}
	admin.mu.Lock()
	admin.prices = loaded
	admin.mu.Unlock()
	return nil
}

// SetPrice upserts the prices of an item type. A nil price withdraws that direction.
func (admin *AdminCatalog) SetPrice(ctx context.Context, itemType string, buyPrice *decimal.Decimal, sellPrice *decimal.Decimal) (AdminPrice, error) {
	price, err := admin.setPrice(ctx, itemType, buyPrice, sellPrice)
	admin.options.logOperation(ctx, OperationLog{Operation: operationSetAdminPrice, ItemType: price.ItemType, Error: err})
	return price, err
}

func (admin *AdminCatalog) setPrice(ctx context.Context, itemType string, buyPrice *decimal.Decimal, sellPrice *decimal.Decimal) (AdminPrice, error) {
	normalized := strings.ToUpper(strings.TrimSpace(itemType))
	if normalized == "" {
		return AdminPrice{}, ErrInvalidItem
	}
	for _, candidate := range []*decimal.Decimal{buyPrice, sellPrice} {
		if candidate == nil {
			continue
		}
		if err := admin.settings.checkPrice(*candidate); err != nil {
			return AdminPrice{ItemType: normalized}, err
		}
	}
	price := AdminPrice{
		ItemType:  normalized,
		BuyPrice:  roundedPointer(admin.settings, buyPrice),
		SellPrice: roundedPointer(admin.settings, sellPrice),
		UpdatedAt: admin.options.now().UTC(),
	}
	if err := admin.store.UpsertAdminPrice(ctx, price); err != nil {
		return price, PersistenceError(errorSubjectAdmin, errorCodeSave, err)
	}
	admin.mu.Lock()
	admin.prices[normalized] = price
	admin.mu.Unlock()
	return price, nil
}

// GetPrice returns the prices of an item type.
func (admin *AdminCatalog) GetPrice(itemType string) (AdminPrice, error) {
	normalized := strings.ToUpper(strings.TrimSpace(itemType))
	admin.mu.RLock()
	price, found := admin.prices[normalized]
	admin.mu.RUnlock()
	if !found {
		return AdminPrice{}, fmt.Errorf("%w: %s", ErrAdminPriceNotFound, normalized)
	}
	return price, nil
}

// ListAll returns every price ordered by item type.
func (admin *AdminCatalog) ListAll() []AdminPrice {
	admin.mu.RLock()
	prices := make([]AdminPrice, 0, len(admin.prices))
	for _, price := range admin.prices {
		prices = append(prices, price)
	}
	admin.mu.RUnlock()
	sort.Slice(prices, func(left, right int) bool {
		return prices[left].ItemType < prices[right].ItemType
	})
	return prices
}

// BuyFromAdmin charges the player for quantity units at the buy price.
func (admin *AdminCatalog) BuyFromAdmin(ctx context.Context, player PlayerID, itemType string, quantity int64) (AdminTrade, error) {
	trade, err := admin.trade(ctx, player, itemType, quantity, true)
	admin.options.logOperation(ctx, OperationLog{Operation: operationAdminBuy, PlayerID: player, ItemType: trade.ItemType, Amount: trade.Total, Quantity: quantity, Error: err})
	return trade, err
}

// SellToAdmin pays the player for quantity units at the sell price.
func (admin *AdminCatalog) SellToAdmin(ctx context.Context, player PlayerID, itemType string, quantity int64) (AdminTrade, error) {
	trade, err := admin.trade(ctx, player, itemType, quantity, false)
	admin.options.logOperation(ctx, OperationLog{Operation: operationAdminSell, PlayerID: player, ItemType: trade.ItemType, Amount: trade.Total, Quantity: quantity, Error: err})
	return trade, err
}

func (admin *AdminCatalog) trade(ctx context.Context, player PlayerID, itemType string, quantity int64, playerBuys bool) (AdminTrade, error) {
	if player.IsZero() {
		return AdminTrade{}, ErrInvalidPlayerID
	}
	if quantity <= 0 {
		return AdminTrade{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	price, err := admin.GetPrice(itemType)
	if err != nil {
		return AdminTrade{}, err
	}
	unitPrice := price.SellPrice
	if playerBuys {
		unitPrice = price.BuyPrice
	}
	if unitPrice == nil {
		return AdminTrade{ItemType: price.ItemType}, fmt.Errorf("%w: %s", ErrPriceNotOffered, price.ItemType)
	}
	total := admin.settings.round(unitPrice.Mul(decimal.NewFromInt(quantity)))
	receipt, err := admin.ledger.adjust(ctx, player, total, !playerBuys)
	if err != nil {
		return AdminTrade{ItemType: price.ItemType}, err
	}

	record := TransactionRecord{
		Amount:   total,
		Tax:      decimal.Zero,
		Metadata: TransactionMetadata{ItemType: price.ItemType, Quantity: quantity},
	}
	if playerBuys {
		record.From = player
		record.Kind = TransactionShopBuy
		record.Description = fmt.Sprintf("bought %d x %s from the server shop", quantity, price.ItemType)
	} else {
		record.To = player
		record.Kind = TransactionShopSell
		record.Description = fmt.Sprintf("sold %d x %s to the server shop", quantity, price.ItemType)
	}
	admin.audit.record(record)
	return AdminTrade{
		ItemType:   price.ItemType,
		Quantity:   quantity,
		UnitPrice:  *unitPrice,
		Total:      total,
		Balance:    receipt.Balance,
		Durability: receipt.Durability,
	}, nil
}
