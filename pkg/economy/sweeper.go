package economy

import (
	"context"
	"fmt"
	"time"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Retired         int
	Returned        int
	SessionsExpired int
	Durability      Durability
}

// Sweeper retires expired offers and stale shop sessions on a fixed interval.
type Sweeper struct {
	catalog  *Catalog
	sessions *ShopSessions
	interval time.Duration
	options  options
}

// NewSweeper constructs a sweeper. sessions may be nil.
func NewSweeper(catalog *Catalog, sessions *ShopSessions, interval time.Duration, opts ...Option) (*Sweeper, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: sweeper requires a catalog", ErrInvalidServiceConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval %s", ErrInvalidServiceConfig, interval)
	}
	return &Sweeper{catalog: catalog, sessions: sessions, interval: interval, options: buildOptions(opts)}, nil
}

// Run sweeps every interval until ctx ends.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweeper.SweepOnce(ctx)
		}
	}
}

// SweepOnce retires every offer whose expiry has passed. Offers already retired are skipped,
// so repeated sweeps emit no duplicate notices.
func (sweeper *Sweeper) SweepOnce(ctx context.Context) SweepReport {
	now := sweeper.options.now()
	report := SweepReport{}
	for _, offerID := range sweeper.catalog.ExpiredOffers(now) {
		removed, durability, retired := sweeper.catalog.Retire(offerID, now)
		if !retired {
			continue
		}
		report.Retired++
		report.Durability = report.Durability.join(durability)
		if removed.Returned > 0 {
			report.Returned++
			sweeper.options.notifier.ReturnUnsold(ctx, ReturnNotice{
				OfferID:      removed.Offer.ID,
				SellerID:     removed.Offer.SellerID,
				Item:         removed.Offer.Item,
				Quantity:     removed.Returned,
				SellerOnline: sweeper.options.identity.IsOnline(removed.Offer.SellerID),
				Reason:       descriptionSweepExpired,
			})
		}
		sweeper.options.logOperation(ctx, OperationLog{
			Operation: operationSweep,
			PlayerID:  removed.Offer.SellerID,
			OfferID:   removed.Offer.ID,
			ItemType:  removed.Offer.Item.Type,
			Quantity:  removed.Returned,
		})
	}
	if sweeper.sessions != nil {
		report.SessionsExpired = sweeper.sessions.ExpireStale(now)
	}
	return report
}
