package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/bazaar/internal/store/migrations"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	flagFile        = "file"
	flagSteps       = "steps"
	flagEngineAddr  = "engine-addr"
	defaultEngineAt = "localhost:7000"
	importTimeout   = 30 * time.Second
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bazaard: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:           "bazaard",
		Short:         "Ledger and marketplace engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString(flagConfig)
			if err != nil {
				return err
			}
			if err := readConfigFile(v, configPath); err != nil {
				return err
			}
			return bindFlags(v, cmd)
		},
	}
	cmd.PersistentFlags().String(flagConfig, "", "YAML config file")
	cmd.AddCommand(newServeCommand(v), newMigrateCommand(v), newPricesCommand())
	return cmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the economy gRPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig(v)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or SQLite connection string")
	cmd.Flags().String(flagListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	cmd.Flags().String(flagStoreDriver, storeDriverGorm, "store implementation: gorm or pgx")
	cmd.Flags().String(flagNATSURL, "", "NATS server for notices and presence (empty logs notices instead)")
	return cmd
}

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := migrations.Up(v.GetString(configKeyDatabaseURL))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := cmd.Flags().GetInt(flagSteps)
			if err != nil {
				return err
			}
			version, err := migrations.Down(v.GetString(configKeyDatabaseURL), steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	down.Flags().Int(flagSteps, 1, "number of migrations to roll back")
	for _, sub := range []*cobra.Command{up, down} {
		sub.Flags().String(flagDatabaseURL, "", "PostgreSQL connection string")
	}
	cmd.AddCommand(up, down)
	return cmd
}

func newPricesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Manage the server shop price table",
	}
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load admin prices from a YAML file into a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			address, err := cmd.Flags().GetString(flagEngineAddr)
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open price file: %w", err)
			}
			defer file.Close()
			prices, err := parsePriceSeeds(file)
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("connect engine: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), importTimeout)
			defer cancel()
			if err := importPrices(ctx, grpcserver.NewEconomyClient(conn), prices, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d prices\n", len(prices))
			return nil
		},
	}
	importCmd.Flags().String(flagFile, "", "YAML price file")
	importCmd.Flags().String(flagEngineAddr, defaultEngineAt, "bazaard gRPC address")
	_ = importCmd.MarkFlagRequired(flagFile)
	cmd.AddCommand(importCmd)
	return cmd
}
