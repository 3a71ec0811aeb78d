package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	PlayerID  string          `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,4);not null;index:idx_accounts_balance,sort:desc"`
	Version   int64           `gorm:"not null;default:0"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Offer mirrors the offers table. LocationKey is null for global listings.
type Offer struct {
	OfferID            string              `gorm:"primaryKey"`
	SellerID           string              `gorm:"not null;index:idx_offers_seller"`
	ItemType           string              `gorm:"not null;index:idx_offers_item_type"`
	ItemData           string              `gorm:"not null;default:''"`
	UnitPrice          decimal.Decimal     `gorm:"type:numeric(20,4);not null"`
	BuybackPrice       decimal.NullDecimal `gorm:"type:numeric(20,4)"`
	Kind               string              `gorm:"not null"`
	TotalQuantity      int64               `gorm:"not null"`
	QuantityTransacted int64               `gorm:"not null;default:0"`
	UnlimitedStock     bool                `gorm:"not null;default:false"`
	LocationKey        *string             `gorm:"uniqueIndex:idx_offers_location_key"`
	CreatedAt          time.Time           `gorm:"not null"`
	ExpiresAt          *time.Time          `gorm:"index:idx_offers_expires_at"`
}

func (Offer) TableName() string { return "offers" }

func (offer *Offer) BeforeCreate(tx *gorm.DB) error {
	if offer.OfferID == "" {
		offer.OfferID = uuid.NewString()
	}
	return nil
}

// Escrow holds pending seller earnings.
type Escrow struct {
	SellerID  string          `gorm:"primaryKey"`
	Pending   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Escrow) TableName() string { return "escrow" }

// Transaction mirrors the transactions table.
type Transaction struct {
	TransactionID string          `gorm:"primaryKey"`
	FromPlayer    *string         `gorm:"index:idx_transactions_from_created,priority:1"`
	ToPlayer      *string         `gorm:"index:idx_transactions_to_created,priority:1"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Tax           decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Kind          string          `gorm:"not null"`
	Description   string          `gorm:"not null;default:''"`
	Metadata      datatypes.JSON  `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_transactions_from_created,priority:2;index:idx_transactions_to_created,priority:2"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// AdminPrice mirrors the admin_prices table. A null price means the direction is not offered.
type AdminPrice struct {
	ItemType  string              `gorm:"primaryKey"`
	BuyPrice  decimal.NullDecimal `gorm:"type:numeric(20,4)"`
	SellPrice decimal.NullDecimal `gorm:"type:numeric(20,4)"`
	UpdatedAt time.Time           `gorm:"not null"`
}

func (AdminPrice) TableName() string { return "admin_prices" }

// DailyReward mirrors the daily_rewards table.
type DailyReward struct {
	PlayerID    string    `gorm:"primaryKey"`
	Streak      int       `gorm:"not null"`
	LastClaimAt time.Time `gorm:"not null"`
}

func (DailyReward) TableName() string { return "daily_rewards" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Account{}, &Offer{}, &Escrow{}, &Transaction{}, &AdminPrice{}, &DailyReward{}}
}
