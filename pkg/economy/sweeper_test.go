package economy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSweeperRetiresExpiredListingsOnce(test *testing.T) {
	test.Parallel()
	seller := mustPlayerID(test, "seller")
	fixture := newEngineFixture(test, nil, WithIdentityResolver(onlineSet{seller.String(): true}))
	buyer := mustPlayerID(test, "buyer")
	fixture.fund(test, buyer, "100")
	partial := mustListing(test, fixture, seller, "diamond", "1", 5)
	soldOut := mustListing(test, fixture, seller, "emerald", "1", 1)
	if _, err := fixture.engine.Catalog.Purchase(context.Background(), partial.ID, buyer, 2); err != nil {
		test.Fatalf("purchase failed: %v", err)
	}
	if _, err := fixture.engine.Catalog.Purchase(context.Background(), soldOut.ID, buyer, 1); err != nil {
		test.Fatalf("purchase failed: %v", err)
	}
	shop := mustShop(test, fixture, FixedOfferRequest{
		Seller:    seller,
		Location:  mustLocation(test, "world", 0, 0, 0),
		Item:      mustItem(test, "bread"),
		Kind:      OfferSellToBuyers,
		UnitPrice: decimal.NewFromInt(1),
		Quantity:  5,
	})

	if report := fixture.engine.Sweeper.SweepOnce(context.Background()); report.Retired != 0 {
		test.Fatalf("nothing should expire yet: %+v", report)
	}

	fixture.clock.Advance(time.Hour)
	report := fixture.engine.Sweeper.SweepOnce(context.Background())
	if report.Retired != 2 || report.Returned != 1 {
		test.Fatalf("unexpected report: %+v", report)
	}
	if err := report.Durability.Wait(context.Background()); err != nil {
		test.Fatalf("durability failed: %v", err)
	}

	fixture.notifier.mu.Lock()
	returns := append([]ReturnNotice(nil), fixture.notifier.returns...)
	fixture.notifier.mu.Unlock()
	if len(returns) != 1 {
		test.Fatalf("expected one return notice, got %+v", returns)
	}
	if returns[0].OfferID != partial.ID || returns[0].Quantity != 3 || !returns[0].SellerOnline {
		test.Fatalf("unexpected return notice: %+v", returns[0])
	}
	if _, stored := fixture.store.storedOffer(partial.ID); stored {
		test.Fatalf("expired listing still stored")
	}
	if _, err := fixture.engine.Catalog.Get(shop.ID); err != nil {
		test.Fatalf("fixed shops never expire: %v", err)
	}

	again := fixture.engine.Sweeper.SweepOnce(context.Background())
	if again.Retired != 0 || again.Returned != 0 {
		test.Fatalf("second sweep must be a no-op: %+v", again)
	}
	fixture.notifier.mu.Lock()
	defer fixture.notifier.mu.Unlock()
	if len(fixture.notifier.returns) != 1 {
		test.Fatalf("duplicate return notices: %+v", fixture.notifier.returns)
	}
}

func TestSweeperRetireSkipsAlreadyCancelledOffer(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test, nil)
	seller := mustPlayerID(test, "seller")
	listing := mustListing(test, fixture, seller, "diamond", "1", 5)
	fixture.clock.Advance(2 * time.Hour)
	expired := fixture.engine.Catalog.ExpiredOffers(fixture.clock.Now())
	if len(expired) != 1 {
		test.Fatalf("expected one expired offer, got %d", len(expired))
	}
	if _, err := fixture.engine.Catalog.Cancel(context.Background(), listing.ID, Requester{ID: seller}); err != nil {
		test.Fatalf("cancel failed: %v", err)
	}
	if _, _, retired := fixture.engine.Catalog.Retire(expired[0], fixture.clock.Now()); retired {
		test.Fatalf("cancelled offer must not be retired again")
	}
}

func TestSweeperExpiresStaleSessions(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test, nil)
	player := mustPlayerID(test, "builder")
	if _, err := fixture.engine.Sessions.Begin(player); err != nil {
		test.Fatalf("begin failed: %v", err)
	}
	fixture.clock.Advance(fixture.engine.Settings().SessionTimeout)
	report := fixture.engine.Sweeper.SweepOnce(context.Background())
	if report.SessionsExpired != 1 {
		test.Fatalf("expected one expired session, got %+v", report)
	}
}

func TestSweeperRunStopsWithContext(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test, func(settings *Settings) {
		settings.SweepInterval = time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fixture.engine.Sweeper.Run(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		requireErrorIs(test, err, context.Canceled)
	case <-time.After(time.Second):
		test.Fatalf("sweeper did not stop")
	}
}
