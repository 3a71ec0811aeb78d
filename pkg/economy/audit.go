package economy

import (
	"time"

	"github.com/google/uuid"
)

type auditor struct {
	log TransactionLog
	now func() time.Time
}

func (audit auditor) record(record TransactionRecord) {
	if audit.log == nil {
		return
	}
	record.ID = uuid.NewString()
	record.Timestamp = audit.now().UTC()
	audit.log.Append(record)
}

func offerMetadata(offer Offer, quantity int64) TransactionMetadata {
	metadata := TransactionMetadata{
		OfferID:  offer.ID.String(),
		ItemType: offer.Item.Type,
		Quantity: quantity,
	}
	if offer.Location != nil {
		metadata.Location = offer.Location.Key()
	}
	return metadata
}
