package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func mustViperFromYAML(test *testing.T, document string) *viper.Viper {
	test.Helper()
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(document)); err != nil {
		test.Fatalf("read config: %v", err)
	}
	return v
}

func TestLoadRuntimeConfigDefaults(test *testing.T) {
	test.Parallel()
	cfg, err := loadRuntimeConfig(newViper())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	defaults := economy.DefaultSettings()
	if cfg.StoreDriver != storeDriverGorm || cfg.ListenAddr != defaultGRPCListenAddr {
		test.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Settings.StartingBalance.Equal(defaults.StartingBalance) || !cfg.Settings.TaxRate.Equal(defaults.TaxRate) {
		test.Fatalf("expected default economy settings, got %+v", cfg.Settings)
	}
	if cfg.DrainTimeout != defaultDrainTimeout {
		test.Fatalf("expected drain timeout %s, got %s", defaultDrainTimeout, cfg.DrainTimeout)
	}
}

func TestLoadRuntimeConfigFromYAML(test *testing.T) {
	test.Parallel()
	v := mustViperFromYAML(test, `
database_url: postgres://bazaar@localhost/bazaar
store:
  driver: PGX
economy:
  starting_balance: "250.25"
  tax_rate: "0.1"
  session_timeout: 45s
  daily_reward:
    base_amount: "75"
writebehind:
  workers: 8
`)
	cfg, err := loadRuntimeConfig(v)
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != storeDriverPgx {
		test.Fatalf("expected pgx driver, got %q", cfg.StoreDriver)
	}
	if !cfg.Settings.StartingBalance.Equal(decimal.RequireFromString("250.25")) {
		test.Fatalf("unexpected starting balance %s", cfg.Settings.StartingBalance)
	}
	if !cfg.Settings.TaxRate.Equal(decimal.RequireFromString("0.1")) {
		test.Fatalf("unexpected tax rate %s", cfg.Settings.TaxRate)
	}
	if cfg.Settings.SessionTimeout != 45*time.Second {
		test.Fatalf("unexpected session timeout %s", cfg.Settings.SessionTimeout)
	}
	if !cfg.Settings.DailyReward.BaseAmount.Equal(decimal.NewFromInt(75)) {
		test.Fatalf("unexpected reward base %s", cfg.Settings.DailyReward.BaseAmount)
	}
	if cfg.Queue.Workers != 8 {
		test.Fatalf("expected 8 workers, got %d", cfg.Queue.Workers)
	}
}

func TestLoadRuntimeConfigRejectsInvalidValues(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		document string
		contains string
		sentinel error
	}{
		{name: "bad decimal", document: "economy:\n  tax_rate: lots\n", contains: configKeyTaxRate},
		{name: "tax out of range", document: "economy:\n  tax_rate: \"1.5\"\n", sentinel: economy.ErrInvalidServiceConfig},
		{name: "unknown driver", document: "store:\n  driver: mongo\n", contains: "unsupported store driver"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := loadRuntimeConfig(mustViperFromYAML(test, testCase.document))
			if err == nil {
				test.Fatalf("expected error")
			}
			if testCase.sentinel != nil && !errors.Is(err, testCase.sentinel) {
				test.Fatalf("expected %v, got %v", testCase.sentinel, err)
			}
			if testCase.contains != "" && !strings.Contains(err.Error(), testCase.contains) {
				test.Fatalf("expected %q in %v", testCase.contains, err)
			}
		})
	}
}

func TestBindFlagsOverridesDefaults(test *testing.T) {
	test.Parallel()
	root := newRootCommand()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		test.Fatalf("find serve: %v", err)
	}
	if err := serve.Flags().Set(flagListenAddr, ":7100"); err != nil {
		test.Fatalf("set flag: %v", err)
	}
	v := newViper()
	if err := bindFlags(v, serve); err != nil {
		test.Fatalf("bind: %v", err)
	}
	if got := v.GetString(configKeyListenAddr); got != ":7100" {
		test.Fatalf("expected flag value, got %q", got)
	}
}

func TestResolveDriver(test *testing.T) {
	test.Parallel()
	dir := test.TempDir()
	testCases := []struct {
		dsn        string
		driver     string
		sqlitePath string
	}{
		{dsn: "postgres://user@host/db", driver: driverPostgres},
		{dsn: "postgresql://user@host/db", driver: driverPostgres},
		{dsn: "sqlite://" + dir + "/bazaar.db", driver: driverSQLite, sqlitePath: dir + "/bazaar.db"},
		{dsn: dir + "/direct.db", driver: driverSQLite, sqlitePath: dir + "/direct.db"},
		{dsn: ":memory:", driver: driverSQLite, sqlitePath: ":memory:"},
	}
	for _, testCase := range testCases {
		driver, sqlitePath, err := resolveDriver(testCase.dsn)
		if err != nil {
			test.Fatalf("%s: %v", testCase.dsn, err)
		}
		if driver != testCase.driver || sqlitePath != testCase.sqlitePath {
			test.Fatalf("%s: got (%s, %s)", testCase.dsn, driver, sqlitePath)
		}
	}
}
