// Package notify hands sale and return events to the inventory and chat layer.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectReturns  = "bazaar.returns"
	SubjectSales    = "bazaar.sales"
	SubjectPresence = "bazaar.presence"

	connectTimeout      = 10 * time.Second
	reconnectWait       = 2 * time.Second
	maxReconnects       = 5
	defaultConnectionID = "bazaard"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials the broker with the reconnect policy bazaard uses.
func Connect(url string, name string) (*nats.Conn, error) {
	if name == "" {
		name = defaultConnectionID
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	}
	return nats.Connect(url, opts...)
}

type itemPayload struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type returnPayload struct {
	OfferID      string      `json:"offer_id"`
	SellerID     string      `json:"seller_id"`
	Item         itemPayload `json:"item"`
	Quantity     int64       `json:"quantity"`
	SellerOnline bool        `json:"seller_online"`
	Reason       string      `json:"reason"`
}

type salePayload struct {
	OfferID        string      `json:"offer_id"`
	SellerID       string      `json:"seller_id"`
	CounterpartyID string      `json:"counterparty_id"`
	Kind           string      `json:"kind"`
	Item           itemPayload `json:"item"`
	Quantity       int64       `json:"quantity"`
	Amount         string      `json:"amount"`
	Escrowed       bool        `json:"escrowed"`
	SellerOnline   bool        `json:"seller_online"`
}

// BrokerNotifier publishes JSON events. Publish failures are logged, never returned:
// the economic operation that produced the event has already committed.
type BrokerNotifier struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewBrokerNotifier(publisher Publisher, logger *zap.Logger) *BrokerNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrokerNotifier{publisher: publisher, logger: logger}
}

func (notifier *BrokerNotifier) ReturnUnsold(_ context.Context, notice economy.ReturnNotice) {
	notifier.publish(SubjectReturns, returnPayload{
		OfferID:      notice.OfferID.String(),
		SellerID:     notice.SellerID.String(),
		Item:         itemPayload{Type: notice.Item.Type, Data: notice.Item.Data},
		Quantity:     notice.Quantity,
		SellerOnline: notice.SellerOnline,
		Reason:       notice.Reason,
	})
}

func (notifier *BrokerNotifier) SaleCompleted(_ context.Context, notice economy.SaleNotice) {
	notifier.publish(SubjectSales, salePayload{
		OfferID:        notice.OfferID.String(),
		SellerID:       notice.SellerID.String(),
		CounterpartyID: notice.CounterpartyID.String(),
		Kind:           string(notice.Kind),
		Item:           itemPayload{Type: notice.Item.Type, Data: notice.Item.Data},
		Quantity:       notice.Quantity,
		Amount:         notice.Amount.String(),
		Escrowed:       notice.Escrowed,
		SellerOnline:   notice.SellerOnline,
	})
}

func (notifier *BrokerNotifier) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		notifier.logger.Error("notification encode failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := notifier.publisher.Publish(subject, data); err != nil {
		notifier.logger.Warn("notification publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// LogNotifier records events in the log when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (notifier *LogNotifier) ReturnUnsold(_ context.Context, notice economy.ReturnNotice) {
	notifier.logger.Info("unsold items returned",
		zap.String("offer_id", notice.OfferID.String()),
		zap.String("seller_id", notice.SellerID.String()),
		zap.String("item_type", notice.Item.Type),
		zap.Int64("quantity", notice.Quantity),
		zap.Bool("seller_online", notice.SellerOnline),
		zap.String("reason", notice.Reason),
	)
}

func (notifier *LogNotifier) SaleCompleted(_ context.Context, notice economy.SaleNotice) {
	notifier.logger.Info("sale completed",
		zap.String("offer_id", notice.OfferID.String()),
		zap.String("seller_id", notice.SellerID.String()),
		zap.String("counterparty_id", notice.CounterpartyID.String()),
		zap.String("kind", string(notice.Kind)),
		zap.String("item_type", notice.Item.Type),
		zap.Int64("quantity", notice.Quantity),
		zap.String("amount", notice.Amount.String()),
	)
}
