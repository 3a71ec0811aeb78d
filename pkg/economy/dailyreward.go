package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dailyRewardCooldown = 24 * time.Hour
	dailyRewardGrace    = 48 * time.Hour
)

// RewardClaim is a granted daily reward.
type RewardClaim struct {
	Streak      int
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	NextClaimAt time.Time
	Durability  Durability
}

// RewardStatus describes the next claim a player can make.
type RewardStatus struct {
	Streak      int
	LastClaimAt *time.Time
	Ready       bool
	NextClaimAt time.Time
	NextAmount  decimal.Decimal
}

// DailyRewards grants streak-based daily rewards.
type DailyRewards struct {
	store    DailyRewardStore
	ledger   *Ledger
	audit    auditor
	settings Settings
	options  options
	players  *entryTable[struct{}]
}

// NewDailyRewards constructs the reward service.
func NewDailyRewards(store DailyRewardStore, ledger *Ledger, log TransactionLog, settings Settings, opts ...Option) (*DailyRewards, error) {
	if store == nil || ledger == nil {
		return nil, fmt.Errorf("%w: daily rewards require store and ledger", ErrInvalidServiceConfig)
	}
	resolved := buildOptions(opts)
	return &DailyRewards{
		store:    store,
		ledger:   ledger,
		audit:    auditor{log: log, now: resolved.now},
		settings: settings,
		options:  resolved,
		players:  newEntryTable[struct{}](),
	}, nil
}

// Claim grants today's reward. Claims under 24h apart fail with ErrRewardNotReady;
// claims within 48h extend the streak; later claims restart it.
func (rewards *DailyRewards) Claim(ctx context.Context, player PlayerID) (RewardClaim, error) {
	claim, err := rewards.claim(ctx, player)
	rewards.options.logOperation(ctx, OperationLog{Operation: operationDailyReward, PlayerID: player, Amount: claim.Amount, Error: err})
	return claim, err
}

func (rewards *DailyRewards) claim(ctx context.Context, player PlayerID) (RewardClaim, error) {
	if player.IsZero() {
		return RewardClaim{}, ErrInvalidPlayerID
	}
	lock := rewards.players.acquire(player.String())
	defer lock.mu.Unlock()

	previous, found, err := rewards.store.LoadDailyReward(ctx, player)
	if err != nil {
		return RewardClaim{}, PersistenceError(errorSubjectReward, errorCodeLoad, err)
	}
	now := rewards.options.now().UTC()
	if found {
		elapsed := now.Sub(previous.LastClaimAt)
		if elapsed < dailyRewardCooldown {
			return RewardClaim{}, fmt.Errorf("%w: next claim at %s", ErrRewardNotReady, previous.LastClaimAt.Add(dailyRewardCooldown).Format(time.RFC3339))
		}
	}
	streak := rewards.nextStreak(previous, found, now)
	amount := rewards.amountFor(streak)

	// warm the account first so the deposit below cannot fail on a store read
	if _, err := rewards.ledger.GetBalance(ctx, player); err != nil {
		return RewardClaim{}, err
	}
	next := DailyRewardState{PlayerID: player, Streak: streak, LastClaimAt: now}
	if err := rewards.store.SaveDailyReward(ctx, next); err != nil {
		return RewardClaim{}, PersistenceError(errorSubjectReward, errorCodeSave, err)
	}
	receipt, err := rewards.ledger.adjust(ctx, player, amount, true)
	if err != nil {
		if found {
			if restoreErr := rewards.store.SaveDailyReward(ctx, previous); restoreErr != nil {
				restoreErr = PersistenceError(errorSubjectReward, errorCodeRestore, restoreErr)
				rewards.options.logOperation(ctx, OperationLog{Operation: operationRewardRestore, PlayerID: player, Amount: amount, Error: restoreErr})
				return RewardClaim{}, errors.Join(err, restoreErr)
			}
		}
		return RewardClaim{}, err
	}
	rewards.audit.record(TransactionRecord{
		To:          player,
		Amount:      amount,
		Tax:         decimal.Zero,
		Kind:        TransactionDailyReward,
		Description: fmt.Sprintf("daily reward, streak %d", streak),
	})
	return RewardClaim{
		Streak:      streak,
		Amount:      amount,
		Balance:     receipt.Balance,
		NextClaimAt: now.Add(dailyRewardCooldown),
		Durability:  receipt.Durability,
	}, nil
}

// Status reports the player's streak and the next claimable reward.
func (rewards *DailyRewards) Status(ctx context.Context, player PlayerID) (RewardStatus, error) {
	if player.IsZero() {
		return RewardStatus{}, ErrInvalidPlayerID
	}
	state, found, err := rewards.store.LoadDailyReward(ctx, player)
	if err != nil {
		return RewardStatus{}, PersistenceError(errorSubjectReward, errorCodeLoad, err)
	}
	now := rewards.options.now().UTC()
	if !found {
		return RewardStatus{Ready: true, NextClaimAt: now, NextAmount: rewards.amountFor(1)}, nil
	}
	lastClaimAt := state.LastClaimAt
	nextClaimAt := lastClaimAt.Add(dailyRewardCooldown)
	streak := state.Streak
	if now.Sub(lastClaimAt) > dailyRewardGrace {
		streak = 0
	}
	return RewardStatus{
		Streak:      streak,
		LastClaimAt: &lastClaimAt,
		Ready:       !now.Before(nextClaimAt),
		NextClaimAt: nextClaimAt,
		NextAmount:  rewards.amountFor(rewards.nextStreak(state, true, maxTime(now, nextClaimAt))),
	}, nil
}

// Evict drops the player's idle claim lock.
func (rewards *DailyRewards) Evict(player PlayerID) bool {
	return rewards.players.evict(player.String())
}

func (rewards *DailyRewards) nextStreak(previous DailyRewardState, found bool, now time.Time) int {
	if !found || now.Sub(previous.LastClaimAt) > dailyRewardGrace {
		return 1
	}
	return min(previous.Streak+1, rewards.settings.DailyReward.MaxStreakDays)
}

func (rewards *DailyRewards) amountFor(streak int) decimal.Decimal {
	table := rewards.settings.DailyReward
	bonus := table.StreakIncrement.Mul(decimal.NewFromInt(int64(streak - 1)))
	return rewards.settings.round(table.BaseAmount.Add(bonus))
}

func maxTime(left time.Time, right time.Time) time.Time {
	if left.After(right) {
		return left
	}
	return right
}
