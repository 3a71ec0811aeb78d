package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeOutcome reports a settled trade against an offer. The caller moves exactly
// Quantity physical units.
type TradeOutcome struct {
	Offer      Offer
	Quantity   int64
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	Tax        decimal.Decimal
	SellerNet  decimal.Decimal
	Escrowed   bool
	Balance    decimal.Decimal
	Durability Durability
}

// Purchase buys up to requested units from a selling offer. Proceeds of fixed shops
// go to the seller's balance; proceeds of global listings go to escrow.
func (catalog *Catalog) Purchase(ctx context.Context, offerID OfferID, buyer PlayerID, requested int64) (TradeOutcome, error) {
	outcome, err := catalog.purchase(ctx, offerID, buyer, requested)
	catalog.options.logOperation(ctx, OperationLog{
		Operation:    operationPurchase,
		PlayerID:     buyer,
		Counterparty: outcome.Offer.SellerID,
		OfferID:      offerID,
		ItemType:     outcome.Offer.Item.Type,
		Amount:       outcome.Total,
		Quantity:     outcome.Quantity,
		Error:        err,
	})
	return outcome, err
}

func (catalog *Catalog) purchase(ctx context.Context, offerID OfferID, buyer PlayerID, requested int64) (TradeOutcome, error) {
	if buyer.IsZero() {
		return TradeOutcome{}, ErrInvalidPlayerID
	}
	if requested <= 0 {
		return TradeOutcome{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, requested)
	}
	current, err := catalog.lockOffer(offerID)
	if err != nil {
		return TradeOutcome{}, err
	}
	defer current.mu.Unlock()

	offer := current.offer
	if offer.Kind != OfferSellToBuyers {
		return TradeOutcome{}, fmt.Errorf("%w: offer buys from sellers", ErrOfferKindMismatch)
	}
	if offer.SellerID == buyer {
		return TradeOutcome{}, ErrSelfTrade
	}
	if offer.IsExpired(catalog.options.now()) {
		return TradeOutcome{}, ErrOfferExpired
	}
	quantity := min(requested, offer.Remaining())
	if quantity <= 0 {
		return TradeOutcome{}, ErrOfferSoldOut
	}

	total := catalog.settings.round(offer.UnitPrice.Mul(decimal.NewFromInt(quantity)))
	tax := catalog.settings.Tax(total)
	sellerNet := total.Sub(tax)

	buyerReceipt, err := catalog.ledger.adjust(ctx, buyer, total, false)
	if err != nil {
		return TradeOutcome{Offer: offer}, err
	}
	escrowed := !offer.IsFixed()
	durability := buyerReceipt.Durability
	if sellerNet.IsPositive() {
		var credited Durability
		if escrowed {
			_, credited, err = catalog.escrow.credit(ctx, offer.SellerID, sellerNet)
		} else {
			var sellerReceipt Receipt
			sellerReceipt, err = catalog.ledger.adjust(ctx, offer.SellerID, sellerNet, true)
			credited = sellerReceipt.Durability
		}
		if err != nil {
			refund, refundErr := catalog.ledger.adjust(ctx, buyer, total, true)
			if refundErr != nil {
				return TradeOutcome{Offer: offer}, fmt.Errorf("refund buyer after failed credit: %w", refundErr)
			}
			return TradeOutcome{Offer: offer, Balance: refund.Balance}, err
		}
		durability = durability.join(credited)
	}

	if !offer.UnlimitedStock {
		current.offer.QuantityTransacted += quantity
	}
	current.publish()
	durability = durability.join(catalog.persistProgress(current.offer))

	kind := TransactionShopBuy
	if escrowed {
		kind = TransactionMarketPurchase
	}
	catalog.audit.record(TransactionRecord{
		From:        buyer,
		To:          offer.SellerID,
		Amount:      total,
		Tax:         tax,
		Kind:        kind,
		Description: fmt.Sprintf("bought %d x %s", quantity, offer.Item.Type),
		Metadata:    offerMetadata(offer, quantity),
	})
	catalog.options.notifier.SaleCompleted(ctx, SaleNotice{
		OfferID:        offer.ID,
		SellerID:       offer.SellerID,
		CounterpartyID: buyer,
		Kind:           kind,
		Item:           offer.Item,
		Quantity:       quantity,
		Amount:         sellerNet,
		Escrowed:       escrowed,
		SellerOnline:   catalog.options.identity.IsOnline(offer.SellerID),
	})
	return TradeOutcome{
		Offer:      current.offer,
		Quantity:   quantity,
		UnitPrice:  offer.UnitPrice,
		Total:      total,
		Tax:        tax,
		SellerNet:  sellerNet,
		Escrowed:   escrowed,
		Balance:    buyerReceipt.Balance,
		Durability: durability,
	}, nil
}

// Sell hands up to requested units to a fixed shop that buys them: a buying shop
// at its unit price, or a selling shop with a buyback price restocking sold units.
// The shop owner pays the total; the player receives it net of tax.
func (catalog *Catalog) Sell(ctx context.Context, offerID OfferID, seller PlayerID, requested int64) (TradeOutcome, error) {
	outcome, err := catalog.sell(ctx, offerID, seller, requested)
	catalog.options.logOperation(ctx, OperationLog{
		Operation:    operationSell,
		PlayerID:     seller,
		Counterparty: outcome.Offer.SellerID,
		OfferID:      offerID,
		ItemType:     outcome.Offer.Item.Type,
		Amount:       outcome.Total,
		Quantity:     outcome.Quantity,
		Error:        err,
	})
	return outcome, err
}

func (catalog *Catalog) sell(ctx context.Context, offerID OfferID, seller PlayerID, requested int64) (TradeOutcome, error) {
	if seller.IsZero() {
		return TradeOutcome{}, ErrInvalidPlayerID
	}
	if requested <= 0 {
		return TradeOutcome{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, requested)
	}
	current, err := catalog.lockOffer(offerID)
	if err != nil {
		return TradeOutcome{}, err
	}
	defer current.mu.Unlock()

	offer := current.offer
	if !offer.IsFixed() {
		return TradeOutcome{Offer: offer}, fmt.Errorf("%w: listings only sell", ErrOfferKindMismatch)
	}
	if offer.SellerID == seller {
		return TradeOutcome{Offer: offer}, ErrSelfTrade
	}
	if offer.IsExpired(catalog.options.now()) {
		return TradeOutcome{Offer: offer}, ErrOfferExpired
	}

	var unitPrice decimal.Decimal
	var capacity int64
	switch {
	case offer.Kind == OfferBuyFromSellers:
		unitPrice = offer.UnitPrice
		capacity = offer.Remaining()
	case offer.BuybackPrice != nil:
		unitPrice = *offer.BuybackPrice
		capacity = offer.QuantityTransacted
		if offer.UnlimitedStock {
			capacity = requested
		}
	default:
		return TradeOutcome{Offer: offer}, fmt.Errorf("%w: shop does not buy", ErrOfferKindMismatch)
	}
	quantity := min(requested, capacity)
	if quantity <= 0 {
		return TradeOutcome{Offer: offer}, ErrOfferSoldOut
	}

	total := catalog.settings.round(unitPrice.Mul(decimal.NewFromInt(quantity)))
	tax := catalog.settings.Tax(total)
	net := total.Sub(tax)

	sellerReceipt := Receipt{}
	if !net.IsPositive() {
		// nothing to credit, so read the balance before the owner is debited
		sellerReceipt.Balance, err = catalog.ledger.GetBalance(ctx, seller)
		if err != nil {
			return TradeOutcome{Offer: offer}, err
		}
	}

	ownerReceipt, err := catalog.ledger.adjust(ctx, offer.SellerID, total, false)
	if errors.Is(err, ErrInsufficientFunds) {
		return TradeOutcome{Offer: offer}, fmt.Errorf("%w: %w", ErrOwnerInsufficientFunds, err)
	}
	if err != nil {
		return TradeOutcome{Offer: offer}, err
	}
	durability := ownerReceipt.Durability
	if net.IsPositive() {
		sellerReceipt, err = catalog.ledger.adjust(ctx, seller, net, true)
		if err != nil {
			if _, refundErr := catalog.ledger.adjust(ctx, offer.SellerID, total, true); refundErr != nil {
				return TradeOutcome{Offer: offer}, fmt.Errorf("refund shop owner after failed credit: %w", refundErr)
			}
			return TradeOutcome{Offer: offer}, err
		}
		durability = durability.join(sellerReceipt.Durability)
	}

	if offer.Kind == OfferBuyFromSellers {
		current.offer.QuantityTransacted += quantity
	} else if !offer.UnlimitedStock {
		current.offer.QuantityTransacted -= quantity
	}
	current.publish()
	durability = durability.join(catalog.persistProgress(current.offer))

	catalog.audit.record(TransactionRecord{
		From:        offer.SellerID,
		To:          seller,
		Amount:      total,
		Tax:         tax,
		Kind:        TransactionShopSell,
		Description: fmt.Sprintf("sold %d x %s", quantity, offer.Item.Type),
		Metadata:    offerMetadata(offer, quantity),
	})
	catalog.options.notifier.SaleCompleted(ctx, SaleNotice{
		OfferID:        offer.ID,
		SellerID:       offer.SellerID,
		CounterpartyID: seller,
		Kind:           TransactionShopSell,
		Item:           offer.Item,
		Quantity:       quantity,
		Amount:         total,
		SellerOnline:   catalog.options.identity.IsOnline(offer.SellerID),
	})
	return TradeOutcome{
		Offer:      current.offer,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Total:      total,
		Tax:        tax,
		SellerNet:  net,
		Balance:    sellerReceipt.Balance,
		Durability: durability,
	}, nil
}

func (catalog *Catalog) persistProgress(offer Offer) Durability {
	if offer.UnlimitedStock {
		return Durability{}
	}
	offerID := offer.ID
	transacted := offer.QuantityTransacted
	pending := catalog.queue.Enqueue(WriteJob{
		Key:         offerKeyPrefix + offerID.String(),
		Description: "update offer progress",
		Write: func(ctx context.Context) error {
			if err := catalog.store.UpdateOfferProgress(ctx, offerID, transacted); err != nil {
				return PersistenceError(errorSubjectOffer, errorCodeSave, err)
			}
			return nil
		},
	})
	return newDurability(pending)
}
