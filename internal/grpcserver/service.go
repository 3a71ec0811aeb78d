package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "bazaar.v1.Economy"

const (
	methodGetBalance        = "GetBalance"
	methodDeposit           = "Deposit"
	methodWithdraw          = "Withdraw"
	methodTransfer          = "Transfer"
	methodSetBalance        = "SetBalance"
	methodTopBalances       = "TopBalances"
	methodHistory           = "History"
	methodCreateListing     = "CreateListing"
	methodCreateShop        = "CreateShop"
	methodCancelOffer       = "CancelOffer"
	methodUpdatePrice       = "UpdatePrice"
	methodPurchase          = "Purchase"
	methodSell              = "Sell"
	methodGetOffer          = "GetOffer"
	methodOfferAt           = "OfferAt"
	methodFindNearby        = "FindNearby"
	methodListSellerOffers  = "ListSellerOffers"
	methodBeginShop         = "BeginShop"
	methodSupplyTarget      = "SupplyTarget"
	methodSupplyBuyPrice    = "SupplyBuyPrice"
	methodSupplySellPrice   = "SupplySellPrice"
	methodCancelShop        = "CancelShop"
	methodPendingEarnings   = "PendingEarnings"
	methodCollectEarnings   = "CollectEarnings"
	methodSetAdminPrice     = "SetAdminPrice"
	methodListAdminPrices   = "ListAdminPrices"
	methodAdminBuy          = "AdminBuy"
	methodAdminSell         = "AdminSell"
	methodClaimDailyReward  = "ClaimDailyReward"
	methodDailyRewardStatus = "DailyRewardStatus"
	methodDisconnect        = "Disconnect"
)

type economyHandler interface {
	economyService()
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Request any, Response any](method string, call func(*EconomyServer, context.Context, *Request) (*Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(Request)
			if err := decode(request); err != nil {
				return nil, err
			}
			server := srv.(*EconomyServer)
			if interceptor == nil {
				return call(server, ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, decoded any) (any, error) {
				return call(server, ctx, decoded.(*Request))
			}
			return interceptor(ctx, request, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*economyHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodGetBalance, (*EconomyServer).GetBalance),
		unary(methodDeposit, (*EconomyServer).Deposit),
		unary(methodWithdraw, (*EconomyServer).Withdraw),
		unary(methodTransfer, (*EconomyServer).Transfer),
		unary(methodSetBalance, (*EconomyServer).SetBalance),
		unary(methodTopBalances, (*EconomyServer).TopBalances),
		unary(methodHistory, (*EconomyServer).History),
		unary(methodCreateListing, (*EconomyServer).CreateListing),
		unary(methodCreateShop, (*EconomyServer).CreateShop),
		unary(methodCancelOffer, (*EconomyServer).CancelOffer),
		unary(methodUpdatePrice, (*EconomyServer).UpdatePrice),
		unary(methodPurchase, (*EconomyServer).Purchase),
		unary(methodSell, (*EconomyServer).Sell),
		unary(methodGetOffer, (*EconomyServer).GetOffer),
		unary(methodOfferAt, (*EconomyServer).OfferAt),
		unary(methodFindNearby, (*EconomyServer).FindNearby),
		unary(methodListSellerOffers, (*EconomyServer).ListSellerOffers),
		unary(methodBeginShop, (*EconomyServer).BeginShop),
		unary(methodSupplyTarget, (*EconomyServer).SupplyTarget),
		unary(methodSupplyBuyPrice, (*EconomyServer).SupplyBuyPrice),
		unary(methodSupplySellPrice, (*EconomyServer).SupplySellPrice),
		unary(methodCancelShop, (*EconomyServer).CancelShop),
		unary(methodPendingEarnings, (*EconomyServer).PendingEarnings),
		unary(methodCollectEarnings, (*EconomyServer).CollectEarnings),
		unary(methodSetAdminPrice, (*EconomyServer).SetAdminPrice),
		unary(methodListAdminPrices, (*EconomyServer).ListAdminPrices),
		unary(methodAdminBuy, (*EconomyServer).AdminBuy),
		unary(methodAdminSell, (*EconomyServer).AdminSell),
		unary(methodClaimDailyReward, (*EconomyServer).ClaimDailyReward),
		unary(methodDailyRewardStatus, (*EconomyServer).DailyRewardStatus),
		unary(methodDisconnect, (*EconomyServer).Disconnect),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bazaar/v1/economy",
}

// Register attaches the Economy service to a gRPC server.
func Register(registrar grpc.ServiceRegistrar, server *EconomyServer) {
	registrar.RegisterService(&serviceDesc, server)
}
