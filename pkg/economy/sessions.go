package economy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState is a step of the interactive shop creation flow.
type SessionState string

const (
	SessionAwaitingTarget    SessionState = "awaiting_target"
	SessionAwaitingBuyPrice  SessionState = "awaiting_buy_price"
	SessionAwaitingSellPrice SessionState = "awaiting_sell_price"
	SessionComplete          SessionState = "complete"
	SessionCancelled         SessionState = "cancelled"
)

// ShopSession is one player's in-progress shop creation.
type ShopSession struct {
	PlayerID  PlayerID
	State     SessionState
	Location  *Location
	Item      ItemDescriptor
	Quantity  int64
	BuyPrice  *decimal.Decimal
	SellPrice *decimal.Decimal
	StartedAt time.Time
	UpdatedAt time.Time
}

func (session ShopSession) expired(now time.Time, timeout time.Duration) bool {
	return !now.Before(session.UpdatedAt.Add(timeout))
}

// ShopSessions drives the shop creation state machine per player:
// awaiting_target, awaiting_buy_price, awaiting_sell_price, then complete.
type ShopSessions struct {
	catalog  *Catalog
	settings Settings
	options  options

	mu       sync.Mutex
	sessions map[string]ShopSession
}

// NewShopSessions constructs the session table.
func NewShopSessions(catalog *Catalog, settings Settings, opts ...Option) (*ShopSessions, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: sessions require a catalog", ErrInvalidServiceConfig)
	}
	return &ShopSessions{
		catalog:  catalog,
		settings: settings,
		options:  buildOptions(opts),
		sessions: make(map[string]ShopSession),
	}, nil
}

// Begin starts a session, replacing any session the player already had.
func (sessions *ShopSessions) Begin(player PlayerID) (ShopSession, error) {
	if player.IsZero() {
		return ShopSession{}, ErrInvalidPlayerID
	}
	now := sessions.options.now()
	session := ShopSession{PlayerID: player, State: SessionAwaitingTarget, StartedAt: now, UpdatedAt: now}
	sessions.mu.Lock()
	sessions.sessions[player.String()] = session
	sessions.mu.Unlock()
	return session, nil
}

// SupplyTarget records the target block and the held item.
func (sessions *ShopSessions) SupplyTarget(player PlayerID, location Location, item ItemDescriptor, quantity int64) (ShopSession, error) {
	if item.Type == "" {
		return ShopSession{}, ErrInvalidItem
	}
	if location.World == "" {
		return ShopSession{}, ErrInvalidLocation
	}
	if quantity <= 0 {
		return ShopSession{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if sessions.catalog.LocationTaken(location) {
		return ShopSession{}, fmt.Errorf("%w: %s", ErrDuplicateLocation, location.Key())
	}
	return sessions.advance(player, SessionAwaitingTarget, func(session *ShopSession) error {
		session.Location = &location
		session.Item = item
		session.Quantity = quantity
		session.State = SessionAwaitingBuyPrice
		return nil
	})
}

// SupplyBuyPrice records the price players pay the shop. Nil skips it.
func (sessions *ShopSessions) SupplyBuyPrice(player PlayerID, price *decimal.Decimal) (ShopSession, error) {
	if price != nil {
		if err := sessions.settings.checkPrice(*price); err != nil {
			return ShopSession{}, err
		}
	}
	return sessions.advance(player, SessionAwaitingBuyPrice, func(session *ShopSession) error {
		session.BuyPrice = price
		session.State = SessionAwaitingSellPrice
		return nil
	})
}

// SupplySellPrice records the price the shop pays players and persists the shop.
// With a buy price the shop sells to buyers and buys back at the sell price;
// with only a sell price it buys from sellers.
func (sessions *ShopSessions) SupplySellPrice(ctx context.Context, player PlayerID, price *decimal.Decimal) (Offer, error) {
	if price != nil {
		if err := sessions.settings.checkPrice(*price); err != nil {
			return Offer{}, err
		}
	}
	var claimed ShopSession
	_, err := sessions.advance(player, SessionAwaitingSellPrice, func(session *ShopSession) error {
		if session.BuyPrice == nil && price == nil {
			return ErrNoPriceSupplied
		}
		session.SellPrice = price
		claimed = *session
		return errSessionClaimed
	})
	if !errors.Is(err, errSessionClaimed) {
		return Offer{}, err
	}

	request := FixedOfferRequest{
		Seller:   player,
		Location: *claimed.Location,
		Item:     claimed.Item,
		Quantity: claimed.Quantity,
	}
	if claimed.BuyPrice != nil {
		request.Kind = OfferSellToBuyers
		request.UnitPrice = *claimed.BuyPrice
		request.BuybackPrice = claimed.SellPrice
	} else {
		request.Kind = OfferBuyFromSellers
		request.UnitPrice = *claimed.SellPrice
	}
	return sessions.catalog.CreateFixedOffer(ctx, request)
}

var errSessionClaimed = errors.New("session claimed")

// Cancel destroys the player's session without side effects.
func (sessions *ShopSessions) Cancel(player PlayerID) bool {
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	_, found := sessions.sessions[player.String()]
	delete(sessions.sessions, player.String())
	return found
}

// Disconnect cancels the session of a player leaving the game.
func (sessions *ShopSessions) Disconnect(player PlayerID) {
	sessions.Cancel(player)
}

// Get returns the player's live session.
func (sessions *ShopSessions) Get(player PlayerID) (ShopSession, bool) {
	now := sessions.options.now()
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	session, found := sessions.sessions[player.String()]
	if !found {
		return ShopSession{}, false
	}
	if session.expired(now, sessions.settings.SessionTimeout) {
		delete(sessions.sessions, player.String())
		return ShopSession{}, false
	}
	return session, true
}

// ExpireStale drops sessions idle past the timeout and returns how many were dropped.
func (sessions *ShopSessions) ExpireStale(now time.Time) int {
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	dropped := 0
	for key, session := range sessions.sessions {
		if session.expired(now, sessions.settings.SessionTimeout) {
			delete(sessions.sessions, key)
			dropped++
		}
	}
	return dropped
}

// advance applies step to the session when it is in the expected state. A step
// returning errSessionClaimed removes the session; other step errors leave it as is.
func (sessions *ShopSessions) advance(player PlayerID, expected SessionState, step func(*ShopSession) error) (ShopSession, error) {
	now := sessions.options.now()
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	key := player.String()
	session, found := sessions.sessions[key]
	if !found {
		return ShopSession{}, ErrNoSession
	}
	if session.expired(now, sessions.settings.SessionTimeout) {
		delete(sessions.sessions, key)
		return ShopSession{}, ErrNoSession
	}
	if session.State != expected {
		return session, fmt.Errorf("%w: at %s, expected %s", ErrSessionState, session.State, expected)
	}
	if err := step(&session); err != nil {
		if errors.Is(err, errSessionClaimed) {
			delete(sessions.sessions, key)
		}
		return session, err
	}
	session.UpdatedAt = now
	sessions.sessions[key] = session
	return session, nil
}
