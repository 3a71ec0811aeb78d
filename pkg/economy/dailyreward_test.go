package economy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func rewardFixture(test *testing.T) engineFixture {
	test.Helper()
	return newEngineFixture(test, func(settings *Settings) {
		settings.DailyReward = DailyRewardSettings{
			BaseAmount:      decimal.NewFromInt(100),
			StreakIncrement: decimal.NewFromInt(25),
			MaxStreakDays:   3,
		}
	})
}

func mustClaim(test *testing.T, fixture engineFixture, player PlayerID) RewardClaim {
	test.Helper()
	claim, err := fixture.engine.Rewards.Claim(context.Background(), player)
	if err != nil {
		test.Fatalf("claim failed: %v", err)
	}
	return claim
}

func TestDailyRewardStreakGrowsAndCaps(test *testing.T) {
	test.Parallel()
	fixture := rewardFixture(test)
	player := mustPlayerID(test, "regular")

	first := mustClaim(test, fixture, player)
	if first.Streak != 1 {
		test.Fatalf("first claim streak %d", first.Streak)
	}
	requireAmount(test, "day 1", first.Amount, "100")

	fixture.clock.Advance(24 * time.Hour)
	second := mustClaim(test, fixture, player)
	if second.Streak != 2 {
		test.Fatalf("second claim streak %d", second.Streak)
	}
	requireAmount(test, "day 2", second.Amount, "125")

	fixture.clock.Advance(48 * time.Hour)
	third := mustClaim(test, fixture, player)
	requireAmount(test, "day 3", third.Amount, "150")

	fixture.clock.Advance(30 * time.Hour)
	capped := mustClaim(test, fixture, player)
	if capped.Streak != 3 {
		test.Fatalf("streak must cap at 3, got %d", capped.Streak)
	}
	requireAmount(test, "capped", capped.Amount, "150")
	requireAmount(test, "balance", fixture.balance(test, player), "525")
	if len(fixture.log.ofKind(TransactionDailyReward)) != 4 {
		test.Fatalf("expected four daily reward records")
	}
}

func TestDailyRewardResetsAfterGap(test *testing.T) {
	test.Parallel()
	fixture := rewardFixture(test)
	player := mustPlayerID(test, "casual")
	mustClaim(test, fixture, player)
	fixture.clock.Advance(24 * time.Hour)
	mustClaim(test, fixture, player)

	fixture.clock.Advance(48*time.Hour + time.Second)
	reset := mustClaim(test, fixture, player)
	if reset.Streak != 1 {
		test.Fatalf("expected streak reset, got %d", reset.Streak)
	}
	requireAmount(test, "reset amount", reset.Amount, "100")
}

func TestDailyRewardNotReadyWithinCooldown(test *testing.T) {
	test.Parallel()
	fixture := rewardFixture(test)
	player := mustPlayerID(test, "eager")
	mustClaim(test, fixture, player)
	fixture.clock.Advance(23 * time.Hour)
	_, err := fixture.engine.Rewards.Claim(context.Background(), player)
	requireErrorIs(test, err, ErrRewardNotReady)
	requireAmount(test, "balance", fixture.balance(test, player), "100")

	status, err := fixture.engine.Rewards.Status(context.Background(), player)
	if err != nil {
		test.Fatalf("status failed: %v", err)
	}
	if status.Ready || status.Streak != 1 {
		test.Fatalf("unexpected status: %+v", status)
	}
	requireAmount(test, "next amount", status.NextAmount, "125")
}

func TestDailyRewardStatusForNewPlayer(test *testing.T) {
	test.Parallel()
	fixture := rewardFixture(test)
	status, err := fixture.engine.Rewards.Status(context.Background(), mustPlayerID(test, "new"))
	if err != nil {
		test.Fatalf("status failed: %v", err)
	}
	if !status.Ready || status.LastClaimAt != nil {
		test.Fatalf("unexpected status: %+v", status)
	}
	requireAmount(test, "next amount", status.NextAmount, "100")
}

func TestDailyRewardNotGrantedWhenStateCannotBeSaved(test *testing.T) {
	test.Parallel()
	fixture := rewardFixture(test)
	player := mustPlayerID(test, "unlucky")
	fixture.store.mu.Lock()
	fixture.store.failSaveReward = errors.New("read only")
	fixture.store.mu.Unlock()
	_, err := fixture.engine.Rewards.Claim(context.Background(), player)
	requireErrorIs(test, err, ErrPersistenceFailure)
	requireAmount(test, "balance", fixture.balance(test, player), "0")
}

// evictingRewardStore makes the reward deposit fail after the new state is saved,
// then fails the restore of the previous state.
type evictingRewardStore struct {
	*memoryStore
	ledger *Ledger
	saves  int
}

func (store *evictingRewardStore) SaveDailyReward(ctx context.Context, state DailyRewardState) error {
	store.saves++
	if store.saves > 1 {
		return errors.New("reward store down")
	}
	store.ledger.Evict(state.PlayerID)
	store.memoryStore.mu.Lock()
	store.failLoadAccount[state.PlayerID.String()] = errors.New("account store down")
	store.memoryStore.mu.Unlock()
	return store.memoryStore.SaveDailyReward(ctx, state)
}

func TestDailyRewardReportsFailedRestore(test *testing.T) {
	test.Parallel()
	clock := newFakeClock()
	backing := newMemoryStore()
	ledger, err := NewLedger(backing, &syncQueue{}, DefaultSettings())
	if err != nil {
		test.Fatalf("ledger init failed: %v", err)
	}
	player := mustPlayerID(test, "regular")
	backing.rewards[player.String()] = DailyRewardState{PlayerID: player, Streak: 2, LastClaimAt: clock.Now().Add(-25 * time.Hour)}
	logger := &recorderLogger{}
	rewards, err := NewDailyRewards(&evictingRewardStore{memoryStore: backing, ledger: ledger}, ledger, &recordingLog{}, DefaultSettings(),
		WithClock(clock.Now), WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("rewards init failed: %v", err)
	}

	_, err = rewards.Claim(context.Background(), player)
	requireErrorIs(test, err, ErrPersistenceFailure)
	if !strings.Contains(err.Error(), "daily_reward.restore") {
		test.Fatalf("expected the restore failure in %v", err)
	}
	restoreLogged := false
	for _, entry := range logger.entries {
		if entry.Operation == operationRewardRestore && entry.Status == OperationStatusError {
			restoreLogged = true
		}
	}
	if !restoreLogged {
		test.Fatalf("expected a failed restore operation log, got %+v", logger.entries)
	}
}
