package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	constraintOfferLocation = "idx_offers_location_key"
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectOffer       = "offer"
	errorSubjectEscrow      = "escrow"
	errorSubjectTransaction = "transaction"
	errorSubjectAdminPrice  = "admin_price"
	errorSubjectDailyReward = "daily_reward"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLookup         = "lookup"
	errorCodeSave           = "save"
	errorCodeUpdate         = "update"

	sqlInsertAccount = `
		insert into accounts(player_id, balance, version, created_at, updated_at)
		values ($1, $2::numeric, 0, now(), now())
		on conflict (player_id) do nothing
	`

	sqlSelectAccount = `
		select balance::text, version from accounts where player_id = $1
	`

	sqlUpdateBalance = `
		update accounts set balance = $2::numeric, version = $3, updated_at = now()
		where player_id = $1 and version < $3
	`

	sqlInsertBalance = `
		insert into accounts(player_id, balance, version, created_at, updated_at)
		values ($1, $2::numeric, $3, now(), now())
		on conflict (player_id) do nothing
	`

	sqlTopBalances = `
		select player_id, balance::text from accounts
		order by balance desc, player_id asc
		limit $1
	`

	sqlInsertOffer = `
		insert into offers(
			offer_id, seller_id, item_type, item_data, unit_price, buyback_price, kind,
			total_quantity, quantity_transacted, unlimited_stock, location_key, created_at, expires_at
		)
		values ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13)
	`

	sqlUpdateOfferProgress = `
		update offers set quantity_transacted = $2 where offer_id = $1
	`

	sqlUpdateOfferPrice = `
		update offers set unit_price = $2::numeric, buyback_price = $3::numeric where offer_id = $1
	`

	sqlDeleteOffer = `
		delete from offers where offer_id = $1
	`

	sqlListOffers = `
		select offer_id, seller_id, item_type, item_data, unit_price::text, buyback_price::text, kind,
			total_quantity, quantity_transacted, unlimited_stock, location_key, created_at, expires_at
		from offers
		order by created_at asc
	`

	sqlSelectEscrow = `
		select pending::text from escrow where seller_id = $1
	`

	sqlUpsertEscrow = `
		insert into escrow(seller_id, pending, updated_at) values ($1, $2::numeric, now())
		on conflict (seller_id) do update set pending = excluded.pending, updated_at = excluded.updated_at
	`

	sqlInsertTransaction = `
		insert into transactions(
			transaction_id, from_player, to_player, amount, tax, kind, description, metadata, created_at
		)
		values ($1, nullif($2,''), nullif($3,''), $4::numeric, $5::numeric, $6, $7, coalesce(nullif($8,''),'{}')::jsonb, $9)
	`

	sqlListTransactions = `
		select transaction_id, coalesce(from_player,''), coalesce(to_player,''), amount::text, tax::text,
			kind, description, coalesce(metadata::text,'{}'), created_at
		from transactions
		where (from_player = $1 or to_player = $1) and created_at < $2
		order by created_at desc
		limit $3
	`

	sqlUpsertAdminPrice = `
		insert into admin_prices(item_type, buy_price, sell_price, updated_at)
		values ($1, $2::numeric, $3::numeric, $4)
		on conflict (item_type) do update
		set buy_price = excluded.buy_price, sell_price = excluded.sell_price, updated_at = excluded.updated_at
	`

	sqlListAdminPrices = `
		select item_type, buy_price::text, sell_price::text, updated_at
		from admin_prices
		order by item_type asc
	`

	sqlSelectDailyReward = `
		select streak, last_claim_at from daily_rewards where player_id = $1
	`

	sqlUpsertDailyReward = `
		insert into daily_rewards(player_id, streak, last_claim_at) values ($1, $2, $3)
		on conflict (player_id) do update set streak = excluded.streak, last_claim_at = excluded.last_claim_at
	`
)

// Store implements economy.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) LoadOrCreateAccount(ctx context.Context, playerID economy.PlayerID, startingBalance decimal.Decimal) (economy.AccountSnapshot, error) {
	if _, err := store.pool.Exec(ctx, sqlInsertAccount, playerID.String(), startingBalance.String()); err != nil {
		return economy.AccountSnapshot{}, wrapStoreError(errorSubjectAccount, errorCodeInsert, err)
	}
	var (
		balanceValue string
		version      int64
	)
	if err := store.pool.QueryRow(ctx, sqlSelectAccount, playerID.String()).Scan(&balanceValue, &version); err != nil {
		return economy.AccountSnapshot{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	balance, err := decimal.NewFromString(balanceValue)
	if err != nil {
		return economy.AccountSnapshot{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return economy.AccountSnapshot{PlayerID: playerID, Balance: balance, Version: version}, nil
}

// SaveBalances applies every snapshot in one transaction; newer stored versions win.
func (store *Store) SaveBalances(ctx context.Context, snapshots []economy.AccountSnapshot) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeBegin, err)
	}
	for _, snapshot := range snapshots {
		tag, err := tx.Exec(ctx, sqlUpdateBalance, snapshot.PlayerID.String(), snapshot.Balance.String(), snapshot.Version)
		if err != nil {
			_ = tx.Rollback(ctx)
			return wrapStoreError(errorSubjectAccount, errorCodeSave, err)
		}
		if tag.RowsAffected() > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, sqlInsertBalance, snapshot.PlayerID.String(), snapshot.Balance.String(), snapshot.Version); err != nil {
			_ = tx.Rollback(ctx)
			return wrapStoreError(errorSubjectAccount, errorCodeSave, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) TopBalances(ctx context.Context, limit int) ([]economy.AccountBalance, error) {
	rows, err := store.pool.Query(ctx, sqlTopBalances, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	defer rows.Close()

	var balances []economy.AccountBalance
	for rows.Next() {
		var playerValue, balanceValue string
		if err := rows.Scan(&playerValue, &balanceValue); err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
		}
		playerID, err := economy.NewPlayerID(playerValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		balance, err := decimal.NewFromString(balanceValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		balances = append(balances, economy.AccountBalance{PlayerID: playerID, Balance: balance})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	return balances, nil
}

func (store *Store) InsertOffer(ctx context.Context, offer economy.Offer) error {
	var locationKey *string
	if offer.Location != nil {
		key := offer.Location.Key()
		locationKey = &key
	}
	var expiresAt *time.Time
	if offer.ExpiresAt != nil {
		value := offer.ExpiresAt.UTC()
		expiresAt = &value
	}
	_, err := store.pool.Exec(ctx, sqlInsertOffer,
		offer.ID.String(),
		offer.SellerID.String(),
		offer.Item.Type,
		offer.Item.Data,
		offer.UnitPrice.String(),
		optionalDecimal(offer.BuybackPrice),
		string(offer.Kind),
		offer.TotalQuantity,
		offer.QuantityTransacted,
		offer.UnlimitedStock,
		locationKey,
		offer.CreatedAt.UTC(),
		expiresAt,
	)
	if isLocationConflict(err) {
		return economy.WrapError(errorOperationStore, errorSubjectOffer, errorCodeDuplicate, economy.ErrDuplicateLocation)
	}
	if err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdateOfferProgress(ctx context.Context, offerID economy.OfferID, quantityTransacted int64) error {
	if _, err := store.pool.Exec(ctx, sqlUpdateOfferProgress, offerID.String(), quantityTransacted); err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) UpdateOfferPrice(ctx context.Context, offerID economy.OfferID, unitPrice decimal.Decimal, buybackPrice *decimal.Decimal) error {
	if _, err := store.pool.Exec(ctx, sqlUpdateOfferPrice, offerID.String(), unitPrice.String(), optionalDecimal(buybackPrice)); err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) DeleteOffer(ctx context.Context, offerID economy.OfferID) error {
	if _, err := store.pool.Exec(ctx, sqlDeleteOffer, offerID.String()); err != nil {
		return wrapStoreError(errorSubjectOffer, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListOffers(ctx context.Context) ([]economy.Offer, error) {
	rows, err := store.pool.Query(ctx, sqlListOffers)
	if err != nil {
		return nil, wrapStoreError(errorSubjectOffer, errorCodeList, err)
	}
	defer rows.Close()

	var offers []economy.Offer
	for rows.Next() {
		var row offerRow
		if err := rows.Scan(
			&row.offerID,
			&row.sellerID,
			&row.itemType,
			&row.itemData,
			&row.unitPrice,
			&row.buybackPrice,
			&row.kind,
			&row.totalQuantity,
			&row.quantityTransacted,
			&row.unlimitedStock,
			&row.locationKey,
			&row.createdAt,
			&row.expiresAt,
		); err != nil {
			return nil, wrapStoreError(errorSubjectOffer, errorCodeList, err)
		}
		offer, err := row.toOffer()
		if err != nil {
			return nil, wrapStoreError(errorSubjectOffer, errorCodeInvalid, err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectOffer, errorCodeList, err)
	}
	return offers, nil
}

func (store *Store) LoadEscrow(ctx context.Context, sellerID economy.PlayerID) (decimal.Decimal, error) {
	var pendingValue string
	err := store.pool.QueryRow(ctx, sqlSelectEscrow, sellerID.String()).Scan(&pendingValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectEscrow, errorCodeGet, err)
	}
	pending, err := decimal.NewFromString(pendingValue)
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectEscrow, errorCodeInvalid, err)
	}
	return pending, nil
}

func (store *Store) SaveEscrow(ctx context.Context, sellerID economy.PlayerID, pending decimal.Decimal) error {
	if _, err := store.pool.Exec(ctx, sqlUpsertEscrow, sellerID.String(), pending.String()); err != nil {
		return wrapStoreError(errorSubjectEscrow, errorCodeSave, err)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, record economy.TransactionRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	timestamp := record.Timestamp.UTC()
	if record.Timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	_, err = store.pool.Exec(ctx, sqlInsertTransaction,
		record.ID,
		record.From.String(),
		record.To.String(),
		record.Amount.String(),
		record.Tax.String(),
		string(record.Kind),
		record.Description,
		string(metadata),
		timestamp,
	)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, playerID economy.PlayerID, before time.Time, limit int) ([]economy.TransactionRecord, error) {
	rows, err := store.pool.Query(ctx, sqlListTransactions, playerID.String(), before.UTC(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()

	var records []economy.TransactionRecord
	for rows.Next() {
		var (
			id, fromValue, toValue, amountValue, taxValue, kindValue, description, metadataValue string
			createdAt                                                                            time.Time
		)
		if err := rows.Scan(&id, &fromValue, &toValue, &amountValue, &taxValue, &kindValue, &description, &metadataValue, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		record, err := mapTransaction(id, fromValue, toValue, amountValue, taxValue, kindValue, description, metadataValue, createdAt)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return records, nil
}

func (store *Store) UpsertAdminPrice(ctx context.Context, price economy.AdminPrice) error {
	_, err := store.pool.Exec(ctx, sqlUpsertAdminPrice,
		price.ItemType,
		optionalDecimal(price.BuyPrice),
		optionalDecimal(price.SellPrice),
		price.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAdminPrice, errorCodeSave, err)
	}
	return nil
}

func (store *Store) ListAdminPrices(ctx context.Context) ([]economy.AdminPrice, error) {
	rows, err := store.pool.Query(ctx, sqlListAdminPrices)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeList, err)
	}
	defer rows.Close()

	var prices []economy.AdminPrice
	for rows.Next() {
		var (
			itemType            string
			buyValue, sellValue *string
			updatedAt           time.Time
		)
		if err := rows.Scan(&itemType, &buyValue, &sellValue, &updatedAt); err != nil {
			return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeList, err)
		}
		buyPrice, err := parseOptionalDecimal(buyValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeInvalid, err)
		}
		sellPrice, err := parseOptionalDecimal(sellValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeInvalid, err)
		}
		prices = append(prices, economy.AdminPrice{ItemType: itemType, BuyPrice: buyPrice, SellPrice: sellPrice, UpdatedAt: updatedAt.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAdminPrice, errorCodeList, err)
	}
	return prices, nil
}

func (store *Store) LoadDailyReward(ctx context.Context, playerID economy.PlayerID) (economy.DailyRewardState, bool, error) {
	var (
		streak      int
		lastClaimAt time.Time
	)
	err := store.pool.QueryRow(ctx, sqlSelectDailyReward, playerID.String()).Scan(&streak, &lastClaimAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return economy.DailyRewardState{}, false, nil
	}
	if err != nil {
		return economy.DailyRewardState{}, false, wrapStoreError(errorSubjectDailyReward, errorCodeGet, err)
	}
	return economy.DailyRewardState{PlayerID: playerID, Streak: streak, LastClaimAt: lastClaimAt.UTC()}, true, nil
}

func (store *Store) SaveDailyReward(ctx context.Context, state economy.DailyRewardState) error {
	if _, err := store.pool.Exec(ctx, sqlUpsertDailyReward, state.PlayerID.String(), state.Streak, state.LastClaimAt.UTC()); err != nil {
		return wrapStoreError(errorSubjectDailyReward, errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return economy.PersistenceError(subject, code, err)
}

func isLocationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintOfferLocation
	}
	return false
}
