package webapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler answers the HTTP routes through the engine backend.
type Handler struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
}

// NewHandler builds a Handler; cfg must already be validated.
func NewHandler(cfg Config, backend Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, backend: backend, logger: logger}
}

type walletResponse struct {
	PlayerID string                          `json:"player_id"`
	Balance  decimal.Decimal                 `json:"balance"`
	Pending  decimal.Decimal                 `json:"pending_earnings"`
	Reward   grpcserver.RewardStatusResponse `json:"daily_reward"`
	History  []grpcserver.TransactionMessage `json:"history"`
}

type priceUpdateRequest struct {
	BuyPrice  *decimal.Decimal `json:"buy_price"`
	SellPrice *decimal.Decimal `json:"sell_price"`
}

func (handler *Handler) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id": claims.GetUserID(),
		"email":   claims.GetUserEmail(),
		"display": claims.GetUserDisplayName(),
		"roles":   claims.GetUserRoles(),
		"expires": claims.GetExpiresAt().Unix(),
	})
}

func (handler *Handler) handleLeaderboard(ctx *gin.Context) {
	limit := handler.cfg.LeaderboardLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxLeaderboardLimit {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.TopBalances(requestCtx, &grpcserver.LeaderboardRequest{Limit: limit})
	if err != nil {
		handler.respondError(ctx, "leaderboard", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": response.Entries})
}

func (handler *Handler) handleMarket(ctx *gin.Context) {
	request := &grpcserver.NearbyRequest{ItemType: ctx.Query("item")}
	if world := ctx.Query("world"); world != "" {
		center, radius, err := parseSearchCenter(ctx, world)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_location", err.Error()))
			return
		}
		request.Center = &center
		request.Radius = radius
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.FindNearby(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, "market", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"offers": response.Offers})
}

func (handler *Handler) handlePrices(ctx *gin.Context) {
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.ListAdminPrices(requestCtx, &grpcserver.Empty{})
	if err != nil {
		handler.respondError(ctx, "prices", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"prices": response.Prices})
}

func (handler *Handler) handleWallet(ctx *gin.Context) {
	playerID, ok := requirePlayer(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	player := &grpcserver.PlayerRequest{PlayerID: playerID}

	balance, err := handler.backend.GetBalance(requestCtx, player)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	pending, err := handler.backend.PendingEarnings(requestCtx, player)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	reward, err := handler.backend.DailyRewardStatus(requestCtx, player)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	history, err := handler.backend.History(requestCtx, &grpcserver.HistoryRequest{PlayerID: playerID, Limit: walletHistoryLimit})
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletResponse{
		PlayerID: playerID,
		Balance:  balance.Balance,
		Pending:  pending.Pending,
		Reward:   *reward,
		History:  history.Records,
	}})
}

func (handler *Handler) handleCollect(ctx *gin.Context) {
	playerID, ok := requirePlayer(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.CollectEarnings(requestCtx, &grpcserver.PlayerRequest{PlayerID: playerID})
	if err != nil {
		handler.respondError(ctx, "collect", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"collected": response.Amount, "balance": response.Balance})
}

func (handler *Handler) handleClaimReward(ctx *gin.Context) {
	playerID, ok := requirePlayer(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.ClaimDailyReward(requestCtx, &grpcserver.PlayerRequest{PlayerID: playerID})
	if err != nil {
		handler.respondError(ctx, "reward", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reward": response})
}

func (handler *Handler) handleOffers(ctx *gin.Context) {
	playerID, ok := requirePlayer(ctx)
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(ctx.DefaultQuery("include_inactive", "false"))
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.ListSellerOffers(requestCtx, &grpcserver.SellerOffersRequest{SellerID: playerID, IncludeInactive: includeInactive})
	if err != nil {
		handler.respondError(ctx, "offers", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"offers": response.Offers})
}

func (handler *Handler) handleCancelOffer(ctx *gin.Context) {
	playerID, ok := requirePlayer(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.CancelOffer(requestCtx, &grpcserver.OfferRequest{OfferID: ctx.Param("id"), PlayerID: playerID})
	if err != nil {
		handler.respondError(ctx, "cancel", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"offer": response.Offer, "returned": response.Returned})
}

func (handler *Handler) handleSetPrice(ctx *gin.Context) {
	var request priceUpdateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.engineContext(ctx)
	defer cancel()
	response, err := handler.backend.SetAdminPrice(requestCtx, &grpcserver.AdminPriceMessage{
		ItemType:  ctx.Param("item"),
		BuyPrice:  request.BuyPrice,
		SellPrice: request.SellPrice,
	})
	if err != nil {
		handler.respondError(ctx, "set price", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"price": response})
}

func (handler *Handler) engineContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.EngineTimeout)
}

// respondError renders domain failures with their user message and logs the rest.
func (handler *Handler) respondError(ctx *gin.Context, operation string, err error) {
	code := grpcserver.ErrorCode(err)
	if code == "" {
		handler.logger.Error("engine call failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("engine_error", economy.Message(err)))
		return
	}
	if errors.Is(err, economy.ErrPersistenceFailure) {
		handler.logger.Warn("engine persistence failure", zap.String("operation", operation), zap.Error(err))
	}
	ctx.JSON(httpStatus(err), errorResponse(code, economy.Message(err)))
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, economy.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, economy.ErrOwnershipViolation):
		return http.StatusForbidden
	case errors.Is(err, economy.ErrOfferNotFound),
		errors.Is(err, economy.ErrAccountNotFound),
		errors.Is(err, economy.ErrAdminPriceNotFound):
		return http.StatusNotFound
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrRewardNotReady),
		errors.Is(err, economy.ErrOfferExpired),
		errors.Is(err, economy.ErrOfferSoldOut):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func requirePlayer(ctx *gin.Context) (string, bool) {
	claims := getClaims(ctx)
	if claims == nil || strings.TrimSpace(claims.GetUserID()) == "" {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return "", false
	}
	return claims.GetUserID(), true
}

func parseSearchCenter(ctx *gin.Context, world string) (grpcserver.LocationMessage, float64, error) {
	coordinates := make([]int, 0, 3)
	for _, axis := range []string{"x", "y", "z"} {
		value, err := strconv.Atoi(ctx.Query(axis))
		if err != nil {
			return grpcserver.LocationMessage{}, 0, errors.New(axis + " must be an integer")
		}
		coordinates = append(coordinates, value)
	}
	radius, err := strconv.ParseFloat(ctx.DefaultQuery("radius", "64"), 64)
	if err != nil || radius <= 0 {
		return grpcserver.LocationMessage{}, 0, errors.New("radius must be a positive number")
	}
	center := grpcserver.LocationMessage{World: world, X: coordinates[0], Y: coordinates[1], Z: coordinates[2]}
	return center, radius, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
