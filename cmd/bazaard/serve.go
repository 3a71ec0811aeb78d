package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/bazaar/internal/notify"
	"github.com/MarkoPoloResearchLab/bazaar/internal/oplog"
	"github.com/MarkoPoloResearchLab/bazaar/internal/txlog"
	"github.com/MarkoPoloResearchLab/bazaar/internal/writebehind"
	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func runServer(ctx context.Context, cfg runtimeConfig, logger *zap.Logger) error {
	handle, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer handle.cleanup()

	queue := writebehind.New(cfg.Queue, logger.Named("writebehind"))
	writer := txlog.NewWriter(handle.store, logger.Named("txlog"), cfg.TxLogBuffer)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
		defer cancel()
		if err := queue.Close(drainCtx); err != nil {
			logger.Error("write queue did not drain", zap.Error(err))
		}
		writer.Close()
		if dropped := writer.Dropped(); dropped > 0 {
			logger.Warn("transaction records dropped", zap.Int64("count", dropped))
		}
	}()

	presence := notify.NewPresence(logger.Named("presence"))
	var notifier economy.Notifier = notify.NewLogNotifier(logger.Named("notify"))
	if cfg.NATSURL != "" {
		conn, err := notify.Connect(cfg.NATSURL, cfg.NATSName)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer conn.Drain()
		if _, err := presence.Subscribe(conn); err != nil {
			return fmt.Errorf("presence subscribe: %w", err)
		}
		notifier = notify.NewBrokerNotifier(conn, logger.Named("notify"))
		logger.Info("publishing notices to NATS", zap.String("url", cfg.NATSURL), zap.String("status", conn.Status().String()))
	}

	engine, err := economy.NewEngine(handle.store, queue, writer, cfg.Settings,
		economy.WithOperationLogger(oplog.New(logger.Named("economy"))),
		economy.WithNotifier(notifier),
		economy.WithIdentityResolver(presence),
	)
	if err != nil {
		return fmt.Errorf("economy engine init: %w", err)
	}
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("economy engine load: %w", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		if err := engine.Sweeper.Run(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}()
	defer func() {
		stopSweeper()
		<-sweeperDone
	}()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(logger.Named("grpc"))))
	grpcserver.Register(grpcServer, grpcserver.NewEconomyServer(engine))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.ListenAddr))
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
