package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintOfferLocation = "idx_offers_location_key"
	defaultMetadataJSON     = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectOffer       = "offer"
	errorSubjectEscrow      = "escrow"
	errorSubjectTransaction = "transaction"
	errorSubjectAdminPrice  = "admin_price"
	errorSubjectDailyReward = "daily_reward"
	errorCodeDuplicate      = "duplicate"
	errorCodeDelete         = "delete"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLookup         = "lookup"
	errorCodeSave           = "save"
	errorCodeUpdate         = "update"
)

// Store implements economy.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the schema on SQLite; PostgreSQL deployments use the migrations package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (store *Store) LoadOrCreateAccount(ctx context.Context, playerID economy.PlayerID, startingBalance decimal.Decimal) (economy.AccountSnapshot, error) {
	now := time.Now().UTC()
	seed := Account{PlayerID: playerID.String(), Balance: startingBalance, CreatedAt: now, UpdatedAt: now}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "player_id"}}, DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return economy.AccountSnapshot{}, wrapStoreError(errorSubjectAccount, errorCodeInsert, err)
	}
	var account Account
	if err := store.db.WithContext(ctx).Where("player_id = ?", playerID.String()).Take(&account).Error; err != nil {
		return economy.AccountSnapshot{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return economy.AccountSnapshot{PlayerID: playerID, Balance: account.Balance, Version: account.Version}, nil
}

// SaveBalances applies every snapshot in one transaction. Rows already holding a
// newer version keep it, so writes finishing out of order converge.
func (store *Store) SaveBalances(ctx context.Context, snapshots []economy.AccountSnapshot) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		now := time.Now().UTC()
		for _, snapshot := range snapshots {
			result := transaction.Model(&Account{}).
				Where("player_id = ? AND version < ?", snapshot.PlayerID.String(), snapshot.Version).
				Updates(map[string]any{"balance": snapshot.Balance, "version": snapshot.Version, "updated_at": now})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				continue
			}
			missing := Account{PlayerID: snapshot.PlayerID.String(), Balance: snapshot.Balance, Version: snapshot.Version, CreatedAt: now, UpdatedAt: now}
			err := transaction.
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "player_id"}}, DoNothing: true}).
				Create(&missing).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeSave, err)
	}
	return nil
}

func (store *Store) TopBalances(ctx context.Context, limit int) ([]economy.AccountBalance, error) {
	var rows []Account
	err := store.db.WithContext(ctx).
		Order("balance DESC").
		Order("player_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	balances := make([]economy.AccountBalance, 0, len(rows))
	for _, row := range rows {
		playerID, err := economy.NewPlayerID(row.PlayerID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		balances = append(balances, economy.AccountBalance{PlayerID: playerID, Balance: row.Balance})
	}
	return balances, nil
}

func (store *Store) InsertOffer(ctx context.Context, offer economy.Offer) error {
	model := offerModel(offer)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isLocationConflict(err) {
		return economy.WrapError(errorOperationStore, errorSubjectOffer, errorCodeDuplicate, economy.ErrDuplicateLocation)
	}
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdateOfferProgress(ctx context.Context, offerID economy.OfferID, quantityTransacted int64) error {
	err := store.db.WithContext(ctx).
		Model(&Offer{}).
		Where("offer_id = ?", offerID.String()).
		Update("quantity_transacted", quantityTransacted).Error
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) UpdateOfferPrice(ctx context.Context, offerID economy.OfferID, unitPrice decimal.Decimal, buybackPrice *decimal.Decimal) error {
	err := store.db.WithContext(ctx).
		Model(&Offer{}).
		Where("offer_id = ?", offerID.String()).
		Updates(map[string]any{"unit_price": unitPrice, "buyback_price": nullDecimal(buybackPrice)}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) DeleteOffer(ctx context.Context, offerID economy.OfferID) error {
	err := store.db.WithContext(ctx).Where("offer_id = ?", offerID.String()).Delete(&Offer{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListOffers(ctx context.Context) ([]economy.Offer, error) {
	var rows []Offer
	if err := store.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectOffer, errorCodeList, err)
	}
	offers := make([]economy.Offer, 0, len(rows))
	for _, row := range rows {
		offer, err := mapOffer(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectOffer, errorCodeInvalid, err)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (store *Store) LoadEscrow(ctx context.Context, sellerID economy.PlayerID) (decimal.Decimal, error) {
	var row Escrow
	err := store.db.WithContext(ctx).Where("seller_id = ?", sellerID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectEscrow, errorCodeGet, err)
	}
	return row.Pending, nil
}

func (store *Store) SaveEscrow(ctx context.Context, sellerID economy.PlayerID, pending decimal.Decimal) error {
	row := Escrow{SellerID: sellerID.String(), Pending: pending, UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pending", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectEscrow, errorCodeSave, err)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, record economy.TransactionRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	row := Transaction{
		TransactionID: record.ID,
		FromPlayer:    optionalPlayer(record.From),
		ToPlayer:      optionalPlayer(record.To),
		Amount:        record.Amount,
		Tax:           record.Tax,
		Kind:          string(record.Kind),
		Description:   record.Description,
		Metadata:      datatypesJSON(metadata),
		CreatedAt:     record.Timestamp.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, playerID economy.PlayerID, before time.Time, limit int) ([]economy.TransactionRecord, error) {
	var rows []Transaction
	err := store.db.WithContext(ctx).
		Where("(from_player = ? OR to_player = ?) AND created_at < ?", playerID.String(), playerID.String(), before.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	records := make([]economy.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) UpsertAdminPrice(ctx context.Context, price economy.AdminPrice) error {
	row := AdminPrice{
		ItemType:  price.ItemType,
		BuyPrice:  nullDecimal(price.BuyPrice),
		SellPrice: nullDecimal(price.SellPrice),
		UpdatedAt: price.UpdatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"buy_price", "sell_price", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectAdminPrice, errorCodeSave, err)
	}
	return nil
}

func (store *Store) ListAdminPrices(ctx context.Context) ([]economy.AdminPrice, error) {
	var rows []AdminPrice
	if err := store.db.WithContext(ctx).Order("item_type ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeList, err)
	}
	prices := make([]economy.AdminPrice, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, economy.AdminPrice{
			ItemType:  row.ItemType,
			BuyPrice:  decimalPointer(row.BuyPrice),
			SellPrice: decimalPointer(row.SellPrice),
			UpdatedAt: row.UpdatedAt.UTC(),
		})
	}
	return prices, nil
}

func (store *Store) LoadDailyReward(ctx context.Context, playerID economy.PlayerID) (economy.DailyRewardState, bool, error) {
	var row DailyReward
	err := store.db.WithContext(ctx).Where("player_id = ?", playerID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return economy.DailyRewardState{}, false, nil
	}
	if err != nil {
		return economy.DailyRewardState{}, false, wrapStoreError(errorSubjectDailyReward, errorCodeGet, err)
	}
	return economy.DailyRewardState{PlayerID: playerID, Streak: row.Streak, LastClaimAt: row.LastClaimAt.UTC()}, true, nil
}

func (store *Store) SaveDailyReward(ctx context.Context, state economy.DailyRewardState) error {
	row := DailyReward{PlayerID: state.PlayerID.String(), Streak: state.Streak, LastClaimAt: state.LastClaimAt.UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"streak", "last_claim_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectDailyReward, errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return economy.PersistenceError(subject, code, err)
}

func offerModel(offer economy.Offer) Offer {
	model := Offer{
		OfferID:            offer.ID.String(),
		SellerID:           offer.SellerID.String(),
		ItemType:           offer.Item.Type,
		ItemData:           offer.Item.Data,
		UnitPrice:          offer.UnitPrice,
		BuybackPrice:       nullDecimal(offer.BuybackPrice),
		Kind:               string(offer.Kind),
		TotalQuantity:      offer.TotalQuantity,
		QuantityTransacted: offer.QuantityTransacted,
		UnlimitedStock:     offer.UnlimitedStock,
		CreatedAt:          offer.CreatedAt.UTC(),
	}
	if offer.Location != nil {
		key := offer.Location.Key()
		model.LocationKey = &key
	}
	if offer.ExpiresAt != nil {
		expiresAt := offer.ExpiresAt.UTC()
		model.ExpiresAt = &expiresAt
	}
	return model
}

func mapOffer(row Offer) (economy.Offer, error) {
	offerID, err := economy.NewOfferID(row.OfferID)
	if err != nil {
		return economy.Offer{}, err
	}
	sellerID, err := economy.NewPlayerID(row.SellerID)
	if err != nil {
		return economy.Offer{}, err
	}
	item, err := economy.NewItemDescriptor(row.ItemType, row.ItemData)
	if err != nil {
		return economy.Offer{}, err
	}
	kind, err := economy.ParseOfferKind(row.Kind)
	if err != nil {
		return economy.Offer{}, err
	}
	offer := economy.Offer{
		ID:                 offerID,
		SellerID:           sellerID,
		Item:               item,
		UnitPrice:          row.UnitPrice,
		BuybackPrice:       decimalPointer(row.BuybackPrice),
		Kind:               kind,
		TotalQuantity:      row.TotalQuantity,
		QuantityTransacted: row.QuantityTransacted,
		CreatedAt:          row.CreatedAt.UTC(),
		UnlimitedStock:     row.UnlimitedStock,
	}
	if row.LocationKey != nil {
		location, err := economy.ParseLocationKey(*row.LocationKey)
		if err != nil {
			return economy.Offer{}, err
		}
		offer.Location = &location
	}
	if row.ExpiresAt != nil {
		expiresAt := row.ExpiresAt.UTC()
		offer.ExpiresAt = &expiresAt
	}
	return offer, nil
}

func mapTransaction(row Transaction) (economy.TransactionRecord, error) {
	kind, err := economy.ParseTransactionKind(row.Kind)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	var metadata economy.TransactionMetadata
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return economy.TransactionRecord{}, err
		}
	}
	from, err := playerOrZero(row.FromPlayer)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	to, err := playerOrZero(row.ToPlayer)
	if err != nil {
		return economy.TransactionRecord{}, err
	}
	return economy.TransactionRecord{
		ID:          row.TransactionID,
		From:        from,
		To:          to,
		Amount:      row.Amount,
		Tax:         row.Tax,
		Kind:        kind,
		Description: row.Description,
		Metadata:    metadata,
		Timestamp:   row.CreatedAt.UTC(),
	}, nil
}

func optionalPlayer(playerID economy.PlayerID) *string {
	if playerID.IsZero() {
		return nil
	}
	value := playerID.String()
	return &value
}

func playerOrZero(value *string) (economy.PlayerID, error) {
	if value == nil {
		return economy.PlayerID{}, nil
	}
	return economy.NewPlayerID(*value)
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*value)
}

func decimalPointer(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	amount := value.Decimal
	return &amount
}

func datatypesJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON(raw)
}

func isLocationConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintOfferLocation
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
