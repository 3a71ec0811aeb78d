package economy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyRewardSettings is the daily reward table.
type DailyRewardSettings struct {
	BaseAmount      decimal.Decimal
	StreakIncrement decimal.Decimal
	MaxStreakDays   int
}

// Settings holds the economy tuning.
type Settings struct {
	StartingBalance      decimal.Decimal
	TaxRate              decimal.Decimal
	MinPrice             decimal.Decimal
	MaxPrice             decimal.Decimal
	MaxListingsPerSeller int
	MaxListingDuration   time.Duration
	SessionTimeout       time.Duration
	SweepInterval        time.Duration
	SellShopsEnabled     bool
	BuyShopsEnabled      bool
	CurrencyScale        int32
	DailyReward          DailyRewardSettings
}

// DefaultSettings returns the shipped economy tuning.
func DefaultSettings() Settings {
	return Settings{
		StartingBalance:      decimal.NewFromInt(100),
		TaxRate:              decimal.RequireFromString("0.05"),
		MinPrice:             decimal.RequireFromString("0.01"),
		MaxPrice:             decimal.NewFromInt(1_000_000),
		MaxListingsPerSeller: 10,
		MaxListingDuration:   72 * time.Hour,
		SessionTimeout:       2 * time.Minute,
		SweepInterval:        time.Minute,
		SellShopsEnabled:     true,
		BuyShopsEnabled:      true,
		CurrencyScale:        2,
		DailyReward: DailyRewardSettings{
			BaseAmount:      decimal.NewFromInt(50),
			StreakIncrement: decimal.NewFromInt(10),
			MaxStreakDays:   7,
		},
	}
}

// Validate rejects inconsistent tuning.
func (settings Settings) Validate() error {
	switch {
	case settings.StartingBalance.IsNegative():
		return fmt.Errorf("%w: starting balance must not be negative", ErrInvalidServiceConfig)
	case settings.TaxRate.IsNegative() || settings.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: tax rate must be in [0,1)", ErrInvalidServiceConfig)
	case !settings.MinPrice.IsPositive():
		return fmt.Errorf("%w: min price must be positive", ErrInvalidServiceConfig)
	case settings.MaxPrice.LessThan(settings.MinPrice):
		return fmt.Errorf("%w: max price below min price", ErrInvalidServiceConfig)
	case settings.MaxListingsPerSeller <= 0:
		return fmt.Errorf("%w: listing cap must be positive", ErrInvalidServiceConfig)
	case settings.MaxListingDuration <= 0:
		return fmt.Errorf("%w: max listing duration must be positive", ErrInvalidServiceConfig)
	case settings.SessionTimeout <= 0:
		return fmt.Errorf("%w: session timeout must be positive", ErrInvalidServiceConfig)
	case settings.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidServiceConfig)
	case settings.CurrencyScale < 0 || settings.CurrencyScale > 8:
		return fmt.Errorf("%w: currency scale must be in [0,8]", ErrInvalidServiceConfig)
	case !settings.DailyReward.BaseAmount.IsPositive():
		return fmt.Errorf("%w: daily reward base amount must be positive", ErrInvalidServiceConfig)
	case settings.DailyReward.StreakIncrement.IsNegative():
		return fmt.Errorf("%w: daily reward increment must not be negative", ErrInvalidServiceConfig)
	case settings.DailyReward.MaxStreakDays <= 0:
		return fmt.Errorf("%w: max streak days must be positive", ErrInvalidServiceConfig)
	}
	return nil
}

func (settings Settings) round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(settings.CurrencyScale)
}

// Tax returns the rounded tax owed on total.
func (settings Settings) Tax(total decimal.Decimal) decimal.Decimal {
	return settings.round(total.Mul(settings.TaxRate))
}

func (settings Settings) checkPrice(price decimal.Decimal) error {
	if price.LessThan(settings.MinPrice) || price.GreaterThan(settings.MaxPrice) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrPriceOutOfBounds, price.String(), settings.MinPrice.String(), settings.MaxPrice.String())
	}
	return nil
}
