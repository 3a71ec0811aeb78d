package economy

const (
	operationDeposit       = "deposit"
	operationWithdraw      = "withdraw"
	operationTransfer      = "transfer"
	operationSetBalance    = "set_balance"
	operationCreateShop    = "create_shop"
	operationCreateListing = "create_listing"
	operationPurchase      = "purchase"
	operationSell          = "sell"
	operationCancel        = "cancel"
	operationUpdatePrice   = "update_price"
	operationCollect       = "collect"
	operationSetAdminPrice = "set_admin_price"
	operationAdminBuy      = "admin_buy"
	operationAdminSell     = "admin_sell"
	operationDailyReward   = "daily_reward"
	operationRewardRestore = "daily_reward_restore"
	operationSweep         = "sweep"

	errorOperationStore  = "store"
	errorSubjectAccount  = "account"
	errorSubjectOffer    = "offer"
	errorSubjectEscrow   = "escrow"
	errorSubjectAdmin    = "admin_price"
	errorSubjectReward   = "daily_reward"
	errorSubjectHistory  = "transaction"
	errorCodeLoad        = "load"
	errorCodeSave        = "save"
	errorCodeInsert      = "insert"
	errorCodeDelete      = "delete"
	errorCodeList        = "list"
	errorCodeLeaderboard = "leaderboard"
	errorCodeRestore     = "restore"

	descriptionEscrowCollect = "collected market earnings"
	descriptionSweepExpired  = "listing expired"
)
