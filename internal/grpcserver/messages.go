package grpcserver

import (
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
)

// Empty is the response of operations without a payload.
type Empty struct{}

type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type BalanceResponse struct {
	PlayerID string          `json:"player_id"`
	Balance  decimal.Decimal `json:"balance"`
}

type AmountRequest struct {
	PlayerID    string          `json:"player_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type TransferRequest struct {
	FromPlayerID string          `json:"from_player_id"`
	ToPlayerID   string          `json:"to_player_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
}

type TransferResponse struct {
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
}

type LeaderboardRequest struct {
	Limit int `json:"limit"`
}

type LeaderboardResponse struct {
	Entries []BalanceResponse `json:"entries"`
}

type HistoryRequest struct {
	PlayerID string     `json:"player_id"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit"`
}

type TransactionMessage struct {
	ID          string          `json:"id"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	Kind        string          `json:"kind"`
	Description string          `json:"description,omitempty"`
	OfferID     string          `json:"offer_id,omitempty"`
	ItemType    string          `json:"item_type,omitempty"`
	Quantity    int64           `json:"quantity,omitempty"`
	Location    string          `json:"location,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

type HistoryResponse struct {
	Records []TransactionMessage `json:"records"`
}

type ItemMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type LocationMessage struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

type OfferMessage struct {
	ID                 string           `json:"id"`
	SellerID           string           `json:"seller_id"`
	Item               ItemMessage      `json:"item"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	BuybackPrice       *decimal.Decimal `json:"buyback_price,omitempty"`
	Kind               string           `json:"kind"`
	TotalQuantity      int64            `json:"total_quantity"`
	QuantityTransacted int64            `json:"quantity_transacted"`
	Remaining          int64            `json:"remaining"`
	UnlimitedStock     bool             `json:"unlimited_stock"`
	Location           *LocationMessage `json:"location,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
}

type OfferResponse struct {
	Offer OfferMessage `json:"offer"`
}

type OffersResponse struct {
	Offers []OfferMessage `json:"offers"`
}

type ListingRequest struct {
	SellerID        string          `json:"seller_id"`
	Item            ItemMessage     `json:"item"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int64           `json:"quantity"`
	DurationSeconds int64           `json:"duration_seconds"`
}

type ShopRequest struct {
	SellerID     string           `json:"seller_id"`
	Location     LocationMessage  `json:"location"`
	Item         ItemMessage      `json:"item"`
	Kind         string           `json:"kind"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	BuybackPrice *decimal.Decimal `json:"buyback_price,omitempty"`
	Quantity     int64            `json:"quantity"`
	Unlimited    bool             `json:"unlimited"`
	Override     bool             `json:"override"`
}

type OfferRequest struct {
	OfferID  string `json:"offer_id"`
	PlayerID string `json:"player_id"`
	Override bool   `json:"override"`
}

type CancelResponse struct {
	Offer    OfferMessage `json:"offer"`
	Returned int64        `json:"returned"`
}

type PriceUpdateRequest struct {
	OfferID      string           `json:"offer_id"`
	PlayerID     string           `json:"player_id"`
	Override     bool             `json:"override"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	BuybackPrice *decimal.Decimal `json:"buyback_price,omitempty"`
	ClearBuyback bool             `json:"clear_buyback,omitempty"`
}

type TradeRequest struct {
	OfferID  string `json:"offer_id"`
	PlayerID string `json:"player_id"`
	Quantity int64  `json:"quantity"`
}

type TradeResponse struct {
	Offer     OfferMessage    `json:"offer"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Tax       decimal.Decimal `json:"tax"`
	SellerNet decimal.Decimal `json:"seller_net"`
	Escrowed  bool            `json:"escrowed"`
	Balance   decimal.Decimal `json:"balance"`
}

type NearbyRequest struct {
	ItemType string           `json:"item_type"`
	Center   *LocationMessage `json:"center,omitempty"`
	Radius   float64          `json:"radius,omitempty"`
}

type SellerOffersRequest struct {
	SellerID        string `json:"seller_id"`
	IncludeInactive bool   `json:"include_inactive"`
}

type LocationRequest struct {
	Location LocationMessage `json:"location"`
}

type SessionMessage struct {
	PlayerID  string           `json:"player_id"`
	State     string           `json:"state"`
	Location  *LocationMessage `json:"location,omitempty"`
	Item      *ItemMessage     `json:"item,omitempty"`
	Quantity  int64            `json:"quantity,omitempty"`
	BuyPrice  *decimal.Decimal `json:"buy_price,omitempty"`
	SellPrice *decimal.Decimal `json:"sell_price,omitempty"`
	StartedAt time.Time        `json:"started_at"`
}

type SessionTargetRequest struct {
	PlayerID string          `json:"player_id"`
	Location LocationMessage `json:"location"`
	Item     ItemMessage     `json:"item"`
	Quantity int64           `json:"quantity"`
}

type SessionPriceRequest struct {
	PlayerID string           `json:"player_id"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

type CancelShopResponse struct {
	Cancelled bool `json:"cancelled"`
}

type PendingResponse struct {
	Pending decimal.Decimal `json:"pending"`
}

type CollectResponse struct {
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type AdminPriceMessage struct {
	ItemType  string           `json:"item_type"`
	BuyPrice  *decimal.Decimal `json:"buy_price,omitempty"`
	SellPrice *decimal.Decimal `json:"sell_price,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type AdminPricesResponse struct {
	Prices []AdminPriceMessage `json:"prices"`
}

type AdminTradeRequest struct {
	PlayerID string `json:"player_id"`
	ItemType string `json:"item_type"`
	Quantity int64  `json:"quantity"`
}

type AdminTradeResponse struct {
	ItemType  string          `json:"item_type"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Balance   decimal.Decimal `json:"balance"`
}

type RewardClaimResponse struct {
	Streak      int             `json:"streak"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	NextClaimAt time.Time       `json:"next_claim_at"`
}

type RewardStatusResponse struct {
	Streak      int             `json:"streak"`
	LastClaimAt *time.Time      `json:"last_claim_at,omitempty"`
	Ready       bool            `json:"ready"`
	NextClaimAt time.Time       `json:"next_claim_at"`
	NextAmount  decimal.Decimal `json:"next_amount"`
}

func offerMessage(offer economy.Offer) OfferMessage {
	message := OfferMessage{
		ID:                 offer.ID.String(),
		SellerID:           offer.SellerID.String(),
		Item:               ItemMessage{Type: offer.Item.Type, Data: offer.Item.Data},
		UnitPrice:          offer.UnitPrice,
		BuybackPrice:       offer.BuybackPrice,
		Kind:               string(offer.Kind),
		TotalQuantity:      offer.TotalQuantity,
		QuantityTransacted: offer.QuantityTransacted,
		Remaining:          offer.Remaining(),
		UnlimitedStock:     offer.UnlimitedStock,
		CreatedAt:          offer.CreatedAt,
		ExpiresAt:          offer.ExpiresAt,
	}
	if offer.Location != nil {
		location := locationMessage(*offer.Location)
		message.Location = &location
	}
	return message
}

func offerMessages(offers []economy.Offer) []OfferMessage {
	messages := make([]OfferMessage, 0, len(offers))
	for _, offer := range offers {
		messages = append(messages, offerMessage(offer))
	}
	return messages
}

func locationMessage(location economy.Location) LocationMessage {
	return LocationMessage{World: location.World, X: location.X, Y: location.Y, Z: location.Z}
}

func (message LocationMessage) toLocation() (economy.Location, error) {
	return economy.NewLocation(message.World, message.X, message.Y, message.Z)
}

func (message ItemMessage) toItem() (economy.ItemDescriptor, error) {
	return economy.NewItemDescriptor(message.Type, message.Data)
}

func transactionMessage(record economy.TransactionRecord) TransactionMessage {
	return TransactionMessage{
		ID:          record.ID,
		From:        record.From.String(),
		To:          record.To.String(),
		Amount:      record.Amount,
		Tax:         record.Tax,
		Kind:        string(record.Kind),
		Description: record.Description,
		OfferID:     record.Metadata.OfferID,
		ItemType:    record.Metadata.ItemType,
		Quantity:    record.Metadata.Quantity,
		Location:    record.Metadata.Location,
		Timestamp:   record.Timestamp,
	}
}

func sessionMessage(session economy.ShopSession) SessionMessage {
	message := SessionMessage{
		PlayerID:  session.PlayerID.String(),
		State:     string(session.State),
		Quantity:  session.Quantity,
		BuyPrice:  session.BuyPrice,
		SellPrice: session.SellPrice,
		StartedAt: session.StartedAt,
	}
	if session.Location != nil {
		location := locationMessage(*session.Location)
		message.Location = &location
	}
	if session.Item.Type != "" {
		message.Item = &ItemMessage{Type: session.Item.Type, Data: session.Item.Data}
	}
	return message
}

func adminPriceMessage(price economy.AdminPrice) AdminPriceMessage {
	return AdminPriceMessage{ItemType: price.ItemType, BuyPrice: price.BuyPrice, SellPrice: price.SellPrice, UpdatedAt: price.UpdatedAt}
}

func tradeResponse(outcome economy.TradeOutcome) *TradeResponse {
	return &TradeResponse{
		Offer:     offerMessage(outcome.Offer),
		Quantity:  outcome.Quantity,
		UnitPrice: outcome.UnitPrice,
		Total:     outcome.Total,
		Tax:       outcome.Tax,
		SellerNet: outcome.SellerNet,
		Escrowed:  outcome.Escrowed,
		Balance:   outcome.Balance,
	}
}

func adminTradeResponse(trade economy.AdminTrade) *AdminTradeResponse {
	return &AdminTradeResponse{
		ItemType:  trade.ItemType,
		Quantity:  trade.Quantity,
		UnitPrice: trade.UnitPrice,
		Total:     trade.Total,
		Balance:   trade.Balance,
	}
}
