// Package webapi serves the marketplace web pages' JSON API on top of the engine's gRPC service.
package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const claimsContextKey = "auth_claims"

// Backend is the slice of the Economy service the web API calls.
type Backend interface {
	GetBalance(ctx context.Context, request *grpcserver.PlayerRequest, opts ...grpc.CallOption) (*grpcserver.BalanceResponse, error)
	TopBalances(ctx context.Context, request *grpcserver.LeaderboardRequest, opts ...grpc.CallOption) (*grpcserver.LeaderboardResponse, error)
	History(ctx context.Context, request *grpcserver.HistoryRequest, opts ...grpc.CallOption) (*grpcserver.HistoryResponse, error)
	FindNearby(ctx context.Context, request *grpcserver.NearbyRequest, opts ...grpc.CallOption) (*grpcserver.OffersResponse, error)
	ListSellerOffers(ctx context.Context, request *grpcserver.SellerOffersRequest, opts ...grpc.CallOption) (*grpcserver.OffersResponse, error)
	CancelOffer(ctx context.Context, request *grpcserver.OfferRequest, opts ...grpc.CallOption) (*grpcserver.CancelResponse, error)
	PendingEarnings(ctx context.Context, request *grpcserver.PlayerRequest, opts ...grpc.CallOption) (*grpcserver.PendingResponse, error)
	CollectEarnings(ctx context.Context, request *grpcserver.PlayerRequest, opts ...grpc.CallOption) (*grpcserver.CollectResponse, error)
	ListAdminPrices(ctx context.Context, request *grpcserver.Empty, opts ...grpc.CallOption) (*grpcserver.AdminPricesResponse, error)
	SetAdminPrice(ctx context.Context, request *grpcserver.AdminPriceMessage, opts ...grpc.CallOption) (*grpcserver.AdminPriceMessage, error)
	ClaimDailyReward(ctx context.Context, request *grpcserver.PlayerRequest, opts ...grpc.CallOption) (*grpcserver.RewardClaimResponse, error)
	DailyRewardStatus(ctx context.Context, request *grpcserver.PlayerRequest, opts ...grpc.CallOption) (*grpcserver.RewardStatusResponse, error)
}

// Run dials the engine and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	dialOptions := []grpc.DialOption{}
	if cfg.EngineInsecure {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	conn, err := grpc.NewClient(cfg.EngineAddress, dialOptions...)
	if err != nil {
		return fmt.Errorf("connect engine: %w", err)
	}
	conn.Connect()
	if err := waitForClientReady(ctx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("connect engine: %w", err)
	}
	defer conn.Close()

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler := NewHandler(cfg, grpcserver.NewEconomyClient(conn), logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, handler, validator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketweb listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires routes, CORS and session validation.
func NewRouter(cfg Config, handler *Handler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/api")
	public.GET("/leaderboard", handler.handleLeaderboard)
	public.GET("/market", handler.handleMarket)
	public.GET("/prices", handler.handlePrices)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))
	api.GET("/session", handler.handleSession)
	api.GET("/wallet", handler.handleWallet)
	api.POST("/earnings/collect", handler.handleCollect)
	api.POST("/rewards/claim", handler.handleClaimReward)
	api.GET("/offers", handler.handleOffers)
	api.DELETE("/offers/:id", handler.handleCancelOffer)

	admin := api.Group("/admin")
	admin.Use(handler.requireRole)
	admin.PUT("/prices/:item", handler.handleSetPrice)

	return router
}

func waitForClientReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func (handler *Handler) requireRole(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if !slices.Contains(claims.GetUserRoles(), handler.cfg.AdminRole) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
		return
	}
	ctx.Next()
}
