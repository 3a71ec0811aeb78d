package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bazaar/internal/txlog"
	"github.com/MarkoPoloResearchLab/bazaar/internal/writebehind"
	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/gorm"
)

const bufconnSize = 1 << 20

func TestEconomyServerBalancesAndTransfers(test *testing.T) {
	test.Parallel()
	client := startEconomyClient(test)
	ctx := context.Background()

	balance, err := client.GetBalance(ctx, &PlayerRequest{PlayerID: "alice"})
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(100)) {
		test.Fatalf("expected starting balance 100, got %s", balance.Balance)
	}

	deposited, err := client.Deposit(ctx, &AmountRequest{PlayerID: "alice", Amount: mustDecimal(test, "25.50")})
	if err != nil {
		test.Fatalf("deposit: %v", err)
	}
	if !deposited.Balance.Equal(mustDecimal(test, "125.50")) {
		test.Fatalf("expected 125.50 after deposit, got %s", deposited.Balance)
	}

	transfer, err := client.Transfer(ctx, &TransferRequest{FromPlayerID: "alice", ToPlayerID: "bob", Amount: decimal.NewFromInt(50)})
	if err != nil {
		test.Fatalf("transfer: %v", err)
	}
	if !transfer.FromBalance.Equal(mustDecimal(test, "75.50")) || !transfer.ToBalance.Equal(decimal.NewFromInt(150)) {
		test.Fatalf("unexpected transfer balances %s / %s", transfer.FromBalance, transfer.ToBalance)
	}

	_, err = client.Withdraw(ctx, &AmountRequest{PlayerID: "alice", Amount: decimal.NewFromInt(1000)})
	if !errors.Is(err, economy.ErrInsufficientFunds) {
		test.Fatalf("expected insufficient funds, got %v", err)
	}

	// the leaderboard reads the store, so it trails the write-behind queue
	waitFor(test, func() bool {
		leaderboard, err := client.TopBalances(ctx, &LeaderboardRequest{})
		if err != nil {
			test.Fatalf("top balances: %v", err)
		}
		return len(leaderboard.Entries) == 2 &&
			leaderboard.Entries[0].PlayerID == "bob" &&
			leaderboard.Entries[0].Balance.Equal(decimal.NewFromInt(150))
	})
}

func TestEconomyServerGlobalListingLifecycle(test *testing.T) {
	test.Parallel()
	client := startEconomyClient(test)
	ctx := context.Background()

	created, err := client.CreateListing(ctx, &ListingRequest{
		SellerID:        "seller",
		Item:            ItemMessage{Type: "DIAMOND"},
		UnitPrice:       decimal.NewFromInt(10),
		Quantity:        3,
		DurationSeconds: 3600,
	})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}

	nearby, err := client.FindNearby(ctx, &NearbyRequest{ItemType: "DIAMOND"})
	if err != nil {
		test.Fatalf("find nearby: %v", err)
	}
	if len(nearby.Offers) != 1 || nearby.Offers[0].ID != created.Offer.ID {
		test.Fatalf("expected the listing to be discoverable, got %+v", nearby.Offers)
	}

	trade, err := client.Purchase(ctx, &TradeRequest{OfferID: created.Offer.ID, PlayerID: "buyer", Quantity: 2})
	if err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if !trade.Total.Equal(decimal.NewFromInt(20)) || !trade.Tax.Equal(decimal.NewFromInt(1)) || !trade.Escrowed {
		test.Fatalf("unexpected trade outcome %+v", trade)
	}
	if trade.Offer.Remaining != 1 {
		test.Fatalf("expected 1 remaining, got %d", trade.Offer.Remaining)
	}

	pending, err := client.PendingEarnings(ctx, &PlayerRequest{PlayerID: "seller"})
	if err != nil {
		test.Fatalf("pending earnings: %v", err)
	}
	if !pending.Pending.Equal(decimal.NewFromInt(19)) {
		test.Fatalf("expected 19 pending, got %s", pending.Pending)
	}

	collected, err := client.CollectEarnings(ctx, &PlayerRequest{PlayerID: "seller"})
	if err != nil {
		test.Fatalf("collect earnings: %v", err)
	}
	if !collected.Balance.Equal(decimal.NewFromInt(119)) {
		test.Fatalf("expected 119 after collection, got %s", collected.Balance)
	}

	_, err = client.CancelOffer(ctx, &OfferRequest{OfferID: created.Offer.ID, PlayerID: "buyer"})
	if !errors.Is(err, economy.ErrOwnershipViolation) {
		test.Fatalf("expected ownership violation, got %v", err)
	}
	cancelled, err := client.CancelOffer(ctx, &OfferRequest{OfferID: created.Offer.ID, PlayerID: "seller"})
	if err != nil {
		test.Fatalf("cancel offer: %v", err)
	}
	if cancelled.Returned != 1 {
		test.Fatalf("expected 1 unit returned, got %d", cancelled.Returned)
	}
	_, err = client.GetOffer(ctx, &OfferRequest{OfferID: created.Offer.ID})
	if !errors.Is(err, economy.ErrOfferNotFound) {
		test.Fatalf("expected offer not found, got %v", err)
	}
}

func TestEconomyServerShopSessionFlow(test *testing.T) {
	test.Parallel()
	client := startEconomyClient(test)
	ctx := context.Background()

	if _, err := client.BeginShop(ctx, &PlayerRequest{PlayerID: "merchant"}); err != nil {
		test.Fatalf("begin shop: %v", err)
	}
	session, err := client.SupplyTarget(ctx, &SessionTargetRequest{
		PlayerID: "merchant",
		Location: LocationMessage{World: "world", X: 10, Y: 64, Z: -3},
		Item:     ItemMessage{Type: "IRON_INGOT"},
		Quantity: 8,
	})
	if err != nil {
		test.Fatalf("supply target: %v", err)
	}
	if session.State != string(economy.SessionAwaitingBuyPrice) {
		test.Fatalf("expected awaiting buy price, got %s", session.State)
	}
	buyPrice := decimal.NewFromInt(4)
	if _, err := client.SupplyBuyPrice(ctx, &SessionPriceRequest{PlayerID: "merchant", Price: &buyPrice}); err != nil {
		test.Fatalf("supply buy price: %v", err)
	}
	shop, err := client.SupplySellPrice(ctx, &SessionPriceRequest{PlayerID: "merchant"})
	if err != nil {
		test.Fatalf("supply sell price: %v", err)
	}
	if shop.Offer.Location == nil || shop.Offer.Location.X != 10 {
		test.Fatalf("expected shop at the chosen location, got %+v", shop.Offer.Location)
	}

	found, err := client.OfferAt(ctx, &LocationRequest{Location: LocationMessage{World: "world", X: 10, Y: 64, Z: -3}})
	if err != nil {
		test.Fatalf("offer at: %v", err)
	}
	if found.Offer.ID != shop.Offer.ID {
		test.Fatalf("expected shop %s, got %s", shop.Offer.ID, found.Offer.ID)
	}

	_, err = client.CreateShop(ctx, &ShopRequest{
		SellerID:  "rival",
		Location:  LocationMessage{World: "world", X: 10, Y: 64, Z: -3},
		Item:      ItemMessage{Type: "IRON_INGOT"},
		Kind:      string(economy.OfferSellToBuyers),
		UnitPrice: decimal.NewFromInt(5),
		Quantity:  1,
	})
	if !errors.Is(err, economy.ErrDuplicateLocation) {
		test.Fatalf("expected duplicate location, got %v", err)
	}
}

func TestEconomyServerAdminShopAndRewards(test *testing.T) {
	test.Parallel()
	client := startEconomyClient(test)
	ctx := context.Background()

	buyPrice := decimal.NewFromInt(7)
	if _, err := client.SetAdminPrice(ctx, &AdminPriceMessage{ItemType: "WHEAT", BuyPrice: &buyPrice}); err != nil {
		test.Fatalf("set admin price: %v", err)
	}
	prices, err := client.ListAdminPrices(ctx, &Empty{})
	if err != nil {
		test.Fatalf("list admin prices: %v", err)
	}
	if len(prices.Prices) != 1 || prices.Prices[0].ItemType != "WHEAT" {
		test.Fatalf("unexpected admin prices %+v", prices.Prices)
	}

	bought, err := client.AdminBuy(ctx, &AdminTradeRequest{PlayerID: "farmer", ItemType: "WHEAT", Quantity: 3})
	if err != nil {
		test.Fatalf("admin buy: %v", err)
	}
	if !bought.Balance.Equal(decimal.NewFromInt(79)) {
		test.Fatalf("expected 79 after buying, got %s", bought.Balance)
	}
	_, err = client.AdminSell(ctx, &AdminTradeRequest{PlayerID: "farmer", ItemType: "WHEAT", Quantity: 1})
	if !errors.Is(err, economy.ErrPriceNotOffered) {
		test.Fatalf("expected price not offered, got %v", err)
	}

	claim, err := client.ClaimDailyReward(ctx, &PlayerRequest{PlayerID: "farmer"})
	if err != nil {
		test.Fatalf("claim reward: %v", err)
	}
	if claim.Streak != 1 || !claim.Amount.Equal(decimal.NewFromInt(50)) {
		test.Fatalf("unexpected first claim %+v", claim)
	}
	_, err = client.ClaimDailyReward(ctx, &PlayerRequest{PlayerID: "farmer"})
	if !errors.Is(err, economy.ErrRewardNotReady) {
		test.Fatalf("expected reward not ready, got %v", err)
	}
	rewardStatus, err := client.DailyRewardStatus(ctx, &PlayerRequest{PlayerID: "farmer"})
	if err != nil {
		test.Fatalf("reward status: %v", err)
	}
	if rewardStatus.Ready || rewardStatus.LastClaimAt == nil {
		test.Fatalf("expected a pending cooldown, got %+v", rewardStatus)
	}

	waitFor(test, func() bool {
		history, err := client.History(ctx, &HistoryRequest{PlayerID: "farmer"})
		if err != nil {
			test.Fatalf("history: %v", err)
		}
		return len(history.Records) >= 2
	})
}

func TestEconomyServerRejectsInvalidInput(test *testing.T) {
	test.Parallel()
	client := startEconomyClient(test)
	ctx := context.Background()

	_, err := client.GetBalance(ctx, &PlayerRequest{PlayerID: "  "})
	if !errors.Is(err, economy.ErrInvalidPlayerID) {
		test.Fatalf("expected invalid player id, got %v", err)
	}
	_, err = client.TopBalances(ctx, &LeaderboardRequest{Limit: maxLeaderboardLimit + 1})
	if status.Code(err) != codes.InvalidArgument {
		test.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMapToGRPCError(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		source error
		code   codes.Code
	}{
		{name: "owner funds before generic funds", source: economy.ErrOwnerInsufficientFunds, code: codes.FailedPrecondition},
		{name: "not found", source: economy.WrapError("cancel", "offer", "missing", economy.ErrOfferNotFound), code: codes.NotFound},
		{name: "persistence", source: economy.ErrPersistenceFailure, code: codes.Unavailable},
		{name: "deadline", source: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "unknown", source: errors.New("boom"), code: codes.Internal},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			mapped := mapToGRPCError(testCase.source)
			if status.Code(mapped) != testCase.code {
				test.Fatalf("expected %s, got %s", testCase.code, status.Code(mapped))
			}
		})
	}
	restored := FromGRPCError(mapToGRPCError(economy.ErrOwnerInsufficientFunds))
	if !errors.Is(restored, economy.ErrOwnerInsufficientFunds) {
		test.Fatalf("expected owner insufficient funds to round trip, got %v", restored)
	}
}

func startEconomyClient(test *testing.T) *EconomyClient {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/bazaar.db?_pragma=busy_timeout(5000)"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	store := gormstore.New(db)
	logger := zap.NewNop()
	queueConfig := writebehind.DefaultConfig()
	queueConfig.Workers = 1
	queue := writebehind.New(queueConfig, logger)
	writer := txlog.NewWriter(store, logger, 0)
	engine, err := economy.NewEngine(store, queue, writer, economy.DefaultSettings())
	if err != nil {
		test.Fatalf("engine init failed: %v", err)
	}
	if err := engine.Load(context.Background()); err != nil {
		test.Fatalf("engine load failed: %v", err)
	}

	listener := bufconn.Listen(bufconnSize)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	Register(grpcServer, NewEconomyServer(engine))
	go func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil {
			test.Logf("gRPC server error: %v", serveErr)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		test.Fatalf("gRPC client init failed: %v", err)
	}
	conn.Connect()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := waitForReady(waitCtx, conn); err != nil {
		test.Fatalf("gRPC client failed to connect: %v", err)
	}

	test.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Close(closeCtx)
		writer.Close()
	})
	return NewEconomyClient(conn)
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

func waitFor(test *testing.T, condition func() bool) {
	test.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			test.Fatalf("condition not met before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal parse %q: %v", raw, err)
	}
	return value
}
