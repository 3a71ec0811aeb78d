package pgstore

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
)

type offerRow struct {
	offerID            string
	sellerID           string
	itemType           string
	itemData           string
	unitPrice          string
	buybackPrice       *string
	kind               string
	totalQuantity      int64
	quantityTransacted int64
	unlimitedStock     bool
	locationKey        *string
	createdAt          time.Time
	expiresAt          *time.Time
}

func (row offerRow) toOffer() (economy.Offer, error) {
	offerID, err := economy.NewOfferID(row.offerID)
	if err != nil {
		return economy.Offer{}, err
	}
	sellerID, err := economy.NewPlayerID(row.sellerID)
	if err != nil {
		return economy.Offer{}, err
	}
	item, err := economy.NewItemDescriptor(row.itemType, row.itemData)
	if err != nil {
		return economy.Offer{}, err
	}
	kind, err := economy.ParseOfferKind(row.kind)
	if err != nil {
		return economy.Offer{}, err
	}
	unitPrice, err := decimal.NewFromString(row.unitPrice)
	if err != nil {
		return economy.Offer{}, err
	}
	buybackPrice, err := parseOptionalDecimal(row.buybackPrice)
	if err != nil {
		return economy.Offer{}, err
	}
	offer := economy.Offer{
		ID:                 offerID,
		SellerID:           sellerID,
		Item:               item,
		UnitPrice:          unitPrice,
		BuybackPrice:       buybackPrice,
		Kind:               kind,
		TotalQuantity:      row.totalQuantity,
		QuantityTransacted: row.quantityTransacted,
		CreatedAt:          row.createdAt.UTC(),
		UnlimitedStock:     row.unlimitedStock,
	}
	if row.locationKey != nil {
		location, err := economy.ParseLocationKey(*row.locationKey)
		if err != nil {
			return economy.Offer{}, err
		}
		offer.Location = &location
	}
	if row.expiresAt != nil {
		expiresAt := row.expiresAt.UTC()
		offer.ExpiresAt = &expiresAt
	}
	return offer, nil
}

func mapTransaction(id, fromValue, toValue, amountValue, taxValue, kindValue, description, metadataValue string, createdAt time.Time) (economy.TransactionRecord, error) {
	kind, err := economy.ParseTransactionKind(kindValue)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	amount, err := decimal.NewFromString(amountValue)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	tax, err := decimal.NewFromString(taxValue)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	var metadata economy.TransactionMetadata
	if err := json.Unmarshal([]byte(metadataValue), &metadata); err != nil {
		return economy.TransactionRecord{}, err
	}
	record := economy.TransactionRecord{
		ID:          id,
		Amount:      amount,
		Tax:         tax,
		Kind:        kind,
		Description: description,
		Metadata:    metadata,
		Timestamp:   createdAt.UTC(),
	}
	if fromValue != "" {
		if record.From, err = economy.NewPlayerID(fromValue); err != nil {
			return economy.TransactionRecord{}, err
		}
	}
	if toValue != "" {
		if record.To, err = economy.NewPlayerID(toValue); err != nil {
			return economy.TransactionRecord{}, err
		}
	}
	return record, nil
}

func optionalDecimal(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	text := value.String()
	return &text
}

func parseOptionalDecimal(value *string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
