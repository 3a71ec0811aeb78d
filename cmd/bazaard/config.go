package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/internal/writebehind"
	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BAZAAR"

	flagConfig      = "config"
	flagDatabaseURL = "database-url"
	flagListenAddr  = "listen-addr"
	flagStoreDriver = "store-driver"
	flagNATSURL     = "nats-url"

	configKeyDatabaseURL = "database_url"
	configKeyListenAddr  = "listen_addr"
	configKeyStoreDriver = "store.driver"
	configKeyAutoMigrate = "store.auto_migrate"
	configKeyNATSURL     = "nats.url"
	configKeyNATSName    = "nats.name"
	configKeyTxLogBuffer = "txlog.buffer"

	configKeyStartingBalance      = "economy.starting_balance"
	configKeyTaxRate              = "economy.tax_rate"
	configKeyMinPrice             = "economy.min_price"
	configKeyMaxPrice             = "economy.max_price"
	configKeyMaxListings          = "economy.max_listings_per_seller"
	configKeyMaxListingDuration   = "economy.max_listing_duration"
	configKeySessionTimeout       = "economy.session_timeout"
	configKeySweepInterval        = "economy.sweep_interval"
	configKeySellShopsEnabled     = "economy.sell_shops_enabled"
	configKeyBuyShopsEnabled      = "economy.buy_shops_enabled"
	configKeyCurrencyScale        = "economy.currency_scale"
	configKeyRewardBase           = "economy.daily_reward.base_amount"
	configKeyRewardIncrement      = "economy.daily_reward.streak_increment"
	configKeyRewardMaxStreak      = "economy.daily_reward.max_streak_days"
	configKeyQueueWorkers         = "writebehind.workers"
	configKeyQueueShardBuffer     = "writebehind.shard_buffer"
	configKeyQueueMaxAttempts     = "writebehind.max_attempts"
	configKeyQueueAttemptTimeout  = "writebehind.attempt_timeout"
	configKeyQueueInitialBackoff  = "writebehind.initial_backoff"
	configKeyQueueMaxBackoff      = "writebehind.max_backoff"
	configKeyShutdownDrainTimeout = "shutdown.drain_timeout"

	defaultDatabaseURL    = "sqlite:///tmp/bazaar.db"
	defaultGRPCListenAddr = ":7000"
	defaultNATSName       = "bazaard"
	defaultTxLogBuffer    = 4096
	defaultDrainTimeout   = 30 * time.Second

	storeDriverGorm = "gorm"
	storeDriverPgx  = "pgx"
)

type runtimeConfig struct {
	DatabaseURL  string
	ListenAddr   string
	StoreDriver  string
	AutoMigrate  bool
	NATSURL      string
	NATSName     string
	TxLogBuffer  int
	DrainTimeout time.Duration
	Settings     economy.Settings
	Queue        writebehind.Config
}

// newViper builds an isolated viper instance with every default registered.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := economy.DefaultSettings()
	queue := writebehind.DefaultConfig()
	v.SetDefault(configKeyDatabaseURL, defaultDatabaseURL)
	v.SetDefault(configKeyListenAddr, defaultGRPCListenAddr)
	v.SetDefault(configKeyStoreDriver, storeDriverGorm)
	v.SetDefault(configKeyAutoMigrate, true)
	v.SetDefault(configKeyNATSName, defaultNATSName)
	v.SetDefault(configKeyTxLogBuffer, defaultTxLogBuffer)
	v.SetDefault(configKeyShutdownDrainTimeout, defaultDrainTimeout)
	v.SetDefault(configKeyStartingBalance, defaults.StartingBalance.String())
	v.SetDefault(configKeyTaxRate, defaults.TaxRate.String())
	v.SetDefault(configKeyMinPrice, defaults.MinPrice.String())
	v.SetDefault(configKeyMaxPrice, defaults.MaxPrice.String())
	v.SetDefault(configKeyMaxListings, defaults.MaxListingsPerSeller)
	v.SetDefault(configKeyMaxListingDuration, defaults.MaxListingDuration)
	v.SetDefault(configKeySessionTimeout, defaults.SessionTimeout)
	v.SetDefault(configKeySweepInterval, defaults.SweepInterval)
	v.SetDefault(configKeySellShopsEnabled, defaults.SellShopsEnabled)
	v.SetDefault(configKeyBuyShopsEnabled, defaults.BuyShopsEnabled)
	v.SetDefault(configKeyCurrencyScale, defaults.CurrencyScale)
	v.SetDefault(configKeyRewardBase, defaults.DailyReward.BaseAmount.String())
	v.SetDefault(configKeyRewardIncrement, defaults.DailyReward.StreakIncrement.String())
	v.SetDefault(configKeyRewardMaxStreak, defaults.DailyReward.MaxStreakDays)
	v.SetDefault(configKeyQueueWorkers, queue.Workers)
	v.SetDefault(configKeyQueueShardBuffer, queue.ShardBuffer)
	v.SetDefault(configKeyQueueMaxAttempts, queue.MaxAttempts)
	v.SetDefault(configKeyQueueAttemptTimeout, queue.AttemptTimeout)
	v.SetDefault(configKeyQueueInitialBackoff, queue.InitialBackoff)
	v.SetDefault(configKeyQueueMaxBackoff, queue.MaxBackoff)
	return v
}

// bindFlags binds the flags a command defines; absent flags are skipped.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		configKeyDatabaseURL: flagDatabaseURL,
		configKeyListenAddr:  flagListenAddr,
		configKeyStoreDriver: flagStoreDriver,
		configKeyNATSURL:     flagNATSURL,
	}
	for key, flagName := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	if err := v.BindEnv(configKeyDatabaseURL, "DATABASE_URL", envPrefix+"_DATABASE_URL"); err != nil {
		return err
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadRuntimeConfig(v *viper.Viper) (runtimeConfig, error) {
	settings, err := loadSettings(v)
	if err != nil {
		return runtimeConfig{}, err
	}
	cfg := runtimeConfig{
		DatabaseURL:  strings.TrimSpace(v.GetString(configKeyDatabaseURL)),
		ListenAddr:   strings.TrimSpace(v.GetString(configKeyListenAddr)),
		StoreDriver:  strings.ToLower(strings.TrimSpace(v.GetString(configKeyStoreDriver))),
		AutoMigrate:  v.GetBool(configKeyAutoMigrate),
		NATSURL:      strings.TrimSpace(v.GetString(configKeyNATSURL)),
		NATSName:     v.GetString(configKeyNATSName),
		TxLogBuffer:  v.GetInt(configKeyTxLogBuffer),
		DrainTimeout: v.GetDuration(configKeyShutdownDrainTimeout),
		Settings:     settings,
		Queue: writebehind.Config{
			Workers:        v.GetInt(configKeyQueueWorkers),
			ShardBuffer:    v.GetInt(configKeyQueueShardBuffer),
			MaxAttempts:    v.GetInt(configKeyQueueMaxAttempts),
			AttemptTimeout: v.GetDuration(configKeyQueueAttemptTimeout),
			InitialBackoff: v.GetDuration(configKeyQueueInitialBackoff),
			MaxBackoff:     v.GetDuration(configKeyQueueMaxBackoff),
		},
	}
	if cfg.DatabaseURL == "" {
		return runtimeConfig{}, fmt.Errorf("database url is required")
	}
	if cfg.ListenAddr == "" {
		return runtimeConfig{}, fmt.Errorf("listen addr is required")
	}
	if cfg.StoreDriver != storeDriverGorm && cfg.StoreDriver != storeDriverPgx {
		return runtimeConfig{}, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return cfg, nil
}

func loadSettings(v *viper.Viper) (economy.Settings, error) {
	settings := economy.Settings{
		MaxListingsPerSeller: v.GetInt(configKeyMaxListings),
		MaxListingDuration:   v.GetDuration(configKeyMaxListingDuration),
		SessionTimeout:       v.GetDuration(configKeySessionTimeout),
		SweepInterval:        v.GetDuration(configKeySweepInterval),
		SellShopsEnabled:     v.GetBool(configKeySellShopsEnabled),
		BuyShopsEnabled:      v.GetBool(configKeyBuyShopsEnabled),
		CurrencyScale:        v.GetInt32(configKeyCurrencyScale),
		DailyReward: economy.DailyRewardSettings{
			MaxStreakDays: v.GetInt(configKeyRewardMaxStreak),
		},
	}
	amounts := map[string]*decimal.Decimal{
		configKeyStartingBalance: &settings.StartingBalance,
		configKeyTaxRate:         &settings.TaxRate,
		configKeyMinPrice:        &settings.MinPrice,
		configKeyMaxPrice:        &settings.MaxPrice,
		configKeyRewardBase:      &settings.DailyReward.BaseAmount,
		configKeyRewardIncrement: &settings.DailyReward.StreakIncrement,
	}
	for key, target := range amounts {
		parsed, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return economy.Settings{}, fmt.Errorf("%s: %w", key, err)
		}
		*target = parsed
	}
	if err := settings.Validate(); err != nil {
		return economy.Settings{}, err
	}
	return settings, nil
}
