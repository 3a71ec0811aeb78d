package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// EconomyClient calls the Economy service over an established connection.
// Returned errors carry the economy sentinels where the server reported one.
type EconomyClient struct {
	conn grpc.ClientConnInterface
}

// NewEconomyClient wraps a client connection.
func NewEconomyClient(conn grpc.ClientConnInterface) *EconomyClient {
	return &EconomyClient{conn: conn}
}

func invoke[Request any, Response any](ctx context.Context, client *EconomyClient, method string, request *Request, opts ...grpc.CallOption) (*Response, error) {
	response := new(Response)
	callOptions := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := client.conn.Invoke(ctx, fullMethod(method), request, response, callOptions...); err != nil {
		return nil, FromGRPCError(err)
	}
	return response, nil
}

func (client *EconomyClient) GetBalance(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[PlayerRequest, BalanceResponse](ctx, client, methodGetBalance, request, opts...)
}

func (client *EconomyClient) Deposit(ctx context.Context, request *AmountRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[AmountRequest, BalanceResponse](ctx, client, methodDeposit, request, opts...)
}

func (client *EconomyClient) Withdraw(ctx context.Context, request *AmountRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[AmountRequest, BalanceResponse](ctx, client, methodWithdraw, request, opts...)
}

func (client *EconomyClient) SetBalance(ctx context.Context, request *AmountRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[AmountRequest, BalanceResponse](ctx, client, methodSetBalance, request, opts...)
}

func (client *EconomyClient) Transfer(ctx context.Context, request *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferRequest, TransferResponse](ctx, client, methodTransfer, request, opts...)
}

func (client *EconomyClient) TopBalances(ctx context.Context, request *LeaderboardRequest, opts ...grpc.CallOption) (*LeaderboardResponse, error) {
	return invoke[LeaderboardRequest, LeaderboardResponse](ctx, client, methodTopBalances, request, opts...)
}

func (client *EconomyClient) History(ctx context.Context, request *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryRequest, HistoryResponse](ctx, client, methodHistory, request, opts...)
}

func (client *EconomyClient) CreateListing(ctx context.Context, request *ListingRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[ListingRequest, OfferResponse](ctx, client, methodCreateListing, request, opts...)
}

func (client *EconomyClient) CreateShop(ctx context.Context, request *ShopRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[ShopRequest, OfferResponse](ctx, client, methodCreateShop, request, opts...)
}

func (client *EconomyClient) CancelOffer(ctx context.Context, request *OfferRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	return invoke[OfferRequest, CancelResponse](ctx, client, methodCancelOffer, request, opts...)
}

func (client *EconomyClient) UpdatePrice(ctx context.Context, request *PriceUpdateRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[PriceUpdateRequest, OfferResponse](ctx, client, methodUpdatePrice, request, opts...)
}

func (client *EconomyClient) Purchase(ctx context.Context, request *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	return invoke[TradeRequest, TradeResponse](ctx, client, methodPurchase, request, opts...)
}

func (client *EconomyClient) Sell(ctx context.Context, request *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	return invoke[TradeRequest, TradeResponse](ctx, client, methodSell, request, opts...)
}

func (client *EconomyClient) GetOffer(ctx context.Context, request *OfferRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[OfferRequest, OfferResponse](ctx, client, methodGetOffer, request, opts...)
}

func (client *EconomyClient) OfferAt(ctx context.Context, request *LocationRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[LocationRequest, OfferResponse](ctx, client, methodOfferAt, request, opts...)
}

func (client *EconomyClient) FindNearby(ctx context.Context, request *NearbyRequest, opts ...grpc.CallOption) (*OffersResponse, error) {
	return invoke[NearbyRequest, OffersResponse](ctx, client, methodFindNearby, request, opts...)
}

func (client *EconomyClient) ListSellerOffers(ctx context.Context, request *SellerOffersRequest, opts ...grpc.CallOption) (*OffersResponse, error) {
	return invoke[SellerOffersRequest, OffersResponse](ctx, client, methodListSellerOffers, request, opts...)
}

func (client *EconomyClient) BeginShop(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*SessionMessage, error) {
	return invoke[PlayerRequest, SessionMessage](ctx, client, methodBeginShop, request, opts...)
}

func (client *EconomyClient) SupplyTarget(ctx context.Context, request *SessionTargetRequest, opts ...grpc.CallOption) (*SessionMessage, error) {
	return invoke[SessionTargetRequest, SessionMessage](ctx, client, methodSupplyTarget, request, opts...)
}

func (client *EconomyClient) SupplyBuyPrice(ctx context.Context, request *SessionPriceRequest, opts ...grpc.CallOption) (*SessionMessage, error) {
	return invoke[SessionPriceRequest, SessionMessage](ctx, client, methodSupplyBuyPrice, request, opts...)
}

func (client *EconomyClient) SupplySellPrice(ctx context.Context, request *SessionPriceRequest, opts ...grpc.CallOption) (*OfferResponse, error) {
	return invoke[SessionPriceRequest, OfferResponse](ctx, client, methodSupplySellPrice, request, opts...)
}

func (client *EconomyClient) CancelShop(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*CancelShopResponse, error) {
	return invoke[PlayerRequest, CancelShopResponse](ctx, client, methodCancelShop, request, opts...)
}

func (client *EconomyClient) PendingEarnings(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*PendingResponse, error) {
	return invoke[PlayerRequest, PendingResponse](ctx, client, methodPendingEarnings, request, opts...)
}

func (client *EconomyClient) CollectEarnings(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*CollectResponse, error) {
	return invoke[PlayerRequest, CollectResponse](ctx, client, methodCollectEarnings, request, opts...)
}

func (client *EconomyClient) SetAdminPrice(ctx context.Context, request *AdminPriceMessage, opts ...grpc.CallOption) (*AdminPriceMessage, error) {
	return invoke[AdminPriceMessage, AdminPriceMessage](ctx, client, methodSetAdminPrice, request, opts...)
}

func (client *EconomyClient) ListAdminPrices(ctx context.Context, request *Empty, opts ...grpc.CallOption) (*AdminPricesResponse, error) {
	return invoke[Empty, AdminPricesResponse](ctx, client, methodListAdminPrices, request, opts...)
}

func (client *EconomyClient) AdminBuy(ctx context.Context, request *AdminTradeRequest, opts ...grpc.CallOption) (*AdminTradeResponse, error) {
	return invoke[AdminTradeRequest, AdminTradeResponse](ctx, client, methodAdminBuy, request, opts...)
}

func (client *EconomyClient) AdminSell(ctx context.Context, request *AdminTradeRequest, opts ...grpc.CallOption) (*AdminTradeResponse, error) {
	return invoke[AdminTradeRequest, AdminTradeResponse](ctx, client, methodAdminSell, request, opts...)
}

func (client *EconomyClient) ClaimDailyReward(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*RewardClaimResponse, error) {
	return invoke[PlayerRequest, RewardClaimResponse](ctx, client, methodClaimDailyReward, request, opts...)
}

func (client *EconomyClient) DailyRewardStatus(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*RewardStatusResponse, error) {
	return invoke[PlayerRequest, RewardStatusResponse](ctx, client, methodDailyRewardStatus, request, opts...)
}

func (client *EconomyClient) Disconnect(ctx context.Context, request *PlayerRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[PlayerRequest, Empty](ctx, client, methodDisconnect, request, opts...)
}
