package grpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	defaultHistoryLimit     = 20
	maxHistoryLimit         = 200
)

// EconomyServer exposes the economy engine over gRPC.
type EconomyServer struct {
	engine *economy.Engine
}

// NewEconomyServer constructs a gRPC server for the engine.
func NewEconomyServer(engine *economy.Engine) *EconomyServer {
	return &EconomyServer{engine: engine}
}

func (service *EconomyServer) economyService() {}

func (service *EconomyServer) GetBalance(ctx context.Context, request *PlayerRequest) (*BalanceResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	balance, err := service.engine.Ledger.GetBalance(ctx, playerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &BalanceResponse{PlayerID: playerID.String(), Balance: balance}, nil
}

func (service *EconomyServer) Deposit(ctx context.Context, request *AmountRequest) (*BalanceResponse, error) {
	return service.adjust(ctx, request, service.engine.Deposit)
}

func (service *EconomyServer) Withdraw(ctx context.Context, request *AmountRequest) (*BalanceResponse, error) {
	return service.adjust(ctx, request, service.engine.Withdraw)
}

func (service *EconomyServer) SetBalance(ctx context.Context, request *AmountRequest) (*BalanceResponse, error) {
	return service.adjust(ctx, request, service.engine.SetBalance)
}

type balanceMutation func(ctx context.Context, player economy.PlayerID, amount decimal.Decimal, description string) (economy.Receipt, error)

func (service *EconomyServer) adjust(ctx context.Context, request *AmountRequest, mutate balanceMutation) (*BalanceResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, err := mutate(ctx, playerID, request.Amount, request.Description)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &BalanceResponse{PlayerID: playerID.String(), Balance: receipt.Balance}, nil
}

func (service *EconomyServer) Transfer(ctx context.Context, request *TransferRequest) (*TransferResponse, error) {
	from, err := economy.NewPlayerID(request.FromPlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	to, err := economy.NewPlayerID(request.ToPlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, err := service.engine.Transfer(ctx, from, to, request.Amount, request.Description)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &TransferResponse{FromBalance: receipt.FromBalance, ToBalance: receipt.ToBalance}, nil
}

func (service *EconomyServer) TopBalances(ctx context.Context, request *LeaderboardRequest) (*LeaderboardResponse, error) {
	limit, err := normalizeLimit(request.Limit, defaultLeaderboardLimit, maxLeaderboardLimit)
	if err != nil {
		return nil, err
	}
	balances, err := service.engine.Ledger.TopBalances(ctx, limit)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	response := &LeaderboardResponse{Entries: make([]BalanceResponse, 0, len(balances))}
	for _, balance := range balances {
		response.Entries = append(response.Entries, BalanceResponse{PlayerID: balance.PlayerID.String(), Balance: balance.Balance})
	}
	return response, nil
}

func (service *EconomyServer) History(ctx context.Context, request *HistoryRequest) (*HistoryResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	limit, err := normalizeLimit(request.Limit, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		return nil, err
	}
	var before time.Time
	if request.Before != nil {
		before = *request.Before
	}
	records, err := service.engine.History(ctx, playerID, before, limit)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	response := &HistoryResponse{Records: make([]TransactionMessage, 0, len(records))}
	for _, record := range records {
		response.Records = append(response.Records, transactionMessage(record))
	}
	return response, nil
}

func (service *EconomyServer) CreateListing(ctx context.Context, request *ListingRequest) (*OfferResponse, error) {
	seller, err := economy.NewPlayerID(request.SellerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	item, err := request.Item.toItem()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, err := service.engine.Catalog.CreateGlobalListing(ctx, economy.ListingRequest{
		Seller:    seller,
		Item:      item,
		UnitPrice: request.UnitPrice,
		Quantity:  request.Quantity,
		Duration:  time.Duration(request.DurationSeconds) * time.Second,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) CreateShop(ctx context.Context, request *ShopRequest) (*OfferResponse, error) {
	seller, err := economy.NewPlayerID(request.SellerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	location, err := request.Location.toLocation()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	item, err := request.Item.toItem()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	kind, err := economy.ParseOfferKind(request.Kind)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, err := service.engine.Catalog.CreateFixedOffer(ctx, economy.FixedOfferRequest{
		Seller:       seller,
		Location:     location,
		Item:         item,
		Kind:         kind,
		UnitPrice:    request.UnitPrice,
		BuybackPrice: request.BuybackPrice,
		Quantity:     request.Quantity,
		Unlimited:    request.Unlimited,
		Override:     request.Override,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) CancelOffer(ctx context.Context, request *OfferRequest) (*CancelResponse, error) {
	offerID, requester, err := parseOfferRequest(request)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	removed, err := service.engine.Catalog.Cancel(ctx, offerID, requester)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &CancelResponse{Offer: offerMessage(removed.Offer), Returned: removed.Returned}, nil
}

func (service *EconomyServer) UpdatePrice(ctx context.Context, request *PriceUpdateRequest) (*OfferResponse, error) {
	offerID, requester, err := parseOfferRequest(&OfferRequest{OfferID: request.OfferID, PlayerID: request.PlayerID, Override: request.Override})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, _, err := service.engine.Catalog.UpdatePrice(ctx, offerID, requester, economy.PriceChange{
		UnitPrice:    request.UnitPrice,
		BuybackPrice: request.BuybackPrice,
		ClearBuyback: request.ClearBuyback,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) Purchase(ctx context.Context, request *TradeRequest) (*TradeResponse, error) {
	offerID, playerID, err := parseTradeRequest(request)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	outcome, err := service.engine.Catalog.Purchase(ctx, offerID, playerID, request.Quantity)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return tradeResponse(outcome), nil
}

func (service *EconomyServer) Sell(ctx context.Context, request *TradeRequest) (*TradeResponse, error) {
	offerID, playerID, err := parseTradeRequest(request)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	outcome, err := service.engine.Catalog.Sell(ctx, offerID, playerID, request.Quantity)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return tradeResponse(outcome), nil
}

func (service *EconomyServer) GetOffer(_ context.Context, request *OfferRequest) (*OfferResponse, error) {
	offerID, err := economy.NewOfferID(request.OfferID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, err := service.engine.Catalog.Get(offerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) OfferAt(_ context.Context, request *LocationRequest) (*OfferResponse, error) {
	location, err := request.Location.toLocation()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, err := service.engine.Catalog.OfferAt(location)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) FindNearby(_ context.Context, request *NearbyRequest) (*OffersResponse, error) {
	scope := economy.SearchScope{Radius: request.Radius}
	if request.Center != nil {
		center, err := request.Center.toLocation()
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		scope.Center = &center
	}
	offers := service.engine.Catalog.FindNearby(request.ItemType, scope)
	return &OffersResponse{Offers: offerMessages(offers)}, nil
}

func (service *EconomyServer) ListSellerOffers(_ context.Context, request *SellerOffersRequest) (*OffersResponse, error) {
	seller, err := economy.NewPlayerID(request.SellerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offers := service.engine.Catalog.ListForSeller(seller, request.IncludeInactive)
	return &OffersResponse{Offers: offerMessages(offers)}, nil
}

func (service *EconomyServer) BeginShop(_ context.Context, request *PlayerRequest) (*SessionMessage, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	session, err := service.engine.Sessions.Begin(playerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	message := sessionMessage(session)
	return &message, nil
}

func (service *EconomyServer) SupplyTarget(_ context.Context, request *SessionTargetRequest) (*SessionMessage, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	location, err := request.Location.toLocation()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	item, err := request.Item.toItem()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	session, err := service.engine.Sessions.SupplyTarget(playerID, location, item, request.Quantity)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	message := sessionMessage(session)
	return &message, nil
}

func (service *EconomyServer) SupplyBuyPrice(_ context.Context, request *SessionPriceRequest) (*SessionMessage, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	session, err := service.engine.Sessions.SupplyBuyPrice(playerID, request.Price)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	message := sessionMessage(session)
	return &message, nil
}

func (service *EconomyServer) SupplySellPrice(ctx context.Context, request *SessionPriceRequest) (*OfferResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	offer, err := service.engine.Sessions.SupplySellPrice(ctx, playerID, request.Price)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &OfferResponse{Offer: offerMessage(offer)}, nil
}

func (service *EconomyServer) CancelShop(_ context.Context, request *PlayerRequest) (*CancelShopResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &CancelShopResponse{Cancelled: service.engine.Sessions.Cancel(playerID)}, nil
}

func (service *EconomyServer) PendingEarnings(ctx context.Context, request *PlayerRequest) (*PendingResponse, error) {
	seller, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	pending, err := service.engine.Escrow.Pending(ctx, seller)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &PendingResponse{Pending: pending}, nil
}

func (service *EconomyServer) CollectEarnings(ctx context.Context, request *PlayerRequest) (*CollectResponse, error) {
	seller, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	outcome, err := service.engine.CollectEarnings(ctx, seller)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &CollectResponse{Amount: outcome.Amount, Balance: outcome.Balance}, nil
}

func (service *EconomyServer) SetAdminPrice(ctx context.Context, request *AdminPriceMessage) (*AdminPriceMessage, error) {
	price, err := service.engine.Admin.SetPrice(ctx, request.ItemType, request.BuyPrice, request.SellPrice)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	message := adminPriceMessage(price)
	return &message, nil
}

func (service *EconomyServer) ListAdminPrices(_ context.Context, _ *Empty) (*AdminPricesResponse, error) {
	prices := service.engine.Admin.ListAll()
	response := &AdminPricesResponse{Prices: make([]AdminPriceMessage, 0, len(prices))}
	for _, price := range prices {
		response.Prices = append(response.Prices, adminPriceMessage(price))
	}
	return response, nil
}

func (service *EconomyServer) AdminBuy(ctx context.Context, request *AdminTradeRequest) (*AdminTradeResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	trade, err := service.engine.Admin.BuyFromAdmin(ctx, playerID, request.ItemType, request.Quantity)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return adminTradeResponse(trade), nil
}

func (service *EconomyServer) AdminSell(ctx context.Context, request *AdminTradeRequest) (*AdminTradeResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	trade, err := service.engine.Admin.SellToAdmin(ctx, playerID, request.ItemType, request.Quantity)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return adminTradeResponse(trade), nil
}

func (service *EconomyServer) ClaimDailyReward(ctx context.Context, request *PlayerRequest) (*RewardClaimResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	claim, err := service.engine.Rewards.Claim(ctx, playerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &RewardClaimResponse{Streak: claim.Streak, Amount: claim.Amount, Balance: claim.Balance, NextClaimAt: claim.NextClaimAt}, nil
}

func (service *EconomyServer) DailyRewardStatus(ctx context.Context, request *PlayerRequest) (*RewardStatusResponse, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	rewardStatus, err := service.engine.Rewards.Status(ctx, playerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &RewardStatusResponse{
		Streak:      rewardStatus.Streak,
		LastClaimAt: rewardStatus.LastClaimAt,
		Ready:       rewardStatus.Ready,
		NextClaimAt: rewardStatus.NextClaimAt,
		NextAmount:  rewardStatus.NextAmount,
	}, nil
}

func (service *EconomyServer) Disconnect(_ context.Context, request *PlayerRequest) (*Empty, error) {
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	service.engine.Disconnect(playerID)
	return &Empty{}, nil
}

// LoggingInterceptor logs every failed call with its gRPC code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		response, err := handler(ctx, request)
		if err != nil {
			logger.Warn("gRPC call failed",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("elapsed", time.Since(started)),
				zap.Error(err),
			)
		}
		return response, err
	}
}

func parseOfferRequest(request *OfferRequest) (economy.OfferID, economy.Requester, error) {
	offerID, err := economy.NewOfferID(request.OfferID)
	if err != nil {
		return economy.OfferID{}, economy.Requester{}, err
	}
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return economy.OfferID{}, economy.Requester{}, err
	}
	return offerID, economy.Requester{ID: playerID, Override: request.Override}, nil
}

func parseTradeRequest(request *TradeRequest) (economy.OfferID, economy.PlayerID, error) {
	offerID, err := economy.NewOfferID(request.OfferID)
	if err != nil {
		return economy.OfferID{}, economy.PlayerID{}, err
	}
	playerID, err := economy.NewPlayerID(request.PlayerID)
	if err != nil {
		return economy.OfferID{}, economy.PlayerID{}, err
	}
	return offerID, playerID, nil
}

func normalizeLimit(limit int, fallback int, maximum int) (int, error) {
	if limit <= 0 {
		return fallback, nil
	}
	if limit > maximum {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("limit exceeds maximum: %d > %d", limit, maximum))
	}
	return limit, nil
}
