package writebehind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"go.uber.org/zap"
)

func newTestQueue(test *testing.T, config Config) *Queue {
	test.Helper()
	queue := New(config, zap.NewNop())
	test.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Close(ctx)
	})
	return queue
}

func waitPending(test *testing.T, pending *economy.PendingWrite) error {
	test.Helper()
	select {
	case <-pending.Done():
		return pending.Err()
	case <-time.After(5 * time.Second):
		test.Fatalf("write did not settle")
		return nil
	}
}

func TestQueueKeepsOrderPerKey(test *testing.T) {
	test.Parallel()
	queue := newTestQueue(test, Config{Workers: 4})

	var mu sync.Mutex
	observed := make(map[string][]int)
	var pendings []*economy.PendingWrite
	for index := 0; index < 50; index++ {
		for _, key := range []string{"account:a", "account:b", "escrow:c"} {
			pendings = append(pendings, queue.Enqueue(economy.WriteJob{
				Key: key,
				Write: func(context.Context) error {
					mu.Lock()
					defer mu.Unlock()
					observed[key] = append(observed[key], index)
					return nil
				},
			}))
		}
	}
	for _, pending := range pendings {
		if err := waitPending(test, pending); err != nil {
			test.Fatalf("unexpected write error: %v", err)
		}
	}
	for key, sequence := range observed {
		for position, value := range sequence {
			if position != value {
				test.Fatalf("%s executed out of order: %v", key, sequence)
			}
		}
	}
}

func TestQueueRetriesUntilSuccess(test *testing.T) {
	test.Parallel()
	queue := newTestQueue(test, Config{Workers: 1, MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	var attempts atomic.Int32
	var doneErr error
	doneCalled := make(chan struct{})
	pending := queue.Enqueue(economy.WriteJob{
		Key: "account:a",
		Write: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("deadlock detected")
			}
			return nil
		},
		OnDone: func(err error) {
			doneErr = err
			close(doneCalled)
		},
	})
	if err := waitPending(test, pending); err != nil {
		test.Fatalf("expected success after retries, got %v", err)
	}
	<-doneCalled
	if doneErr != nil || attempts.Load() != 3 {
		test.Fatalf("expected 3 attempts and nil outcome, got %d %v", attempts.Load(), doneErr)
	}
}

func TestQueueAbandonsAfterMaxAttempts(test *testing.T) {
	test.Parallel()
	queue := newTestQueue(test, Config{Workers: 1, MaxAttempts: 2, InitialBackoff: time.Millisecond})
	cause := errors.New("disk full")
	pending := queue.Enqueue(economy.WriteJob{
		Key:   "offer:1",
		Write: func(context.Context) error { return cause },
	})
	err := waitPending(test, pending)
	if !errors.Is(err, economy.ErrPersistenceFailure) || !errors.Is(err, cause) {
		test.Fatalf("expected persistence failure wrapping cause, got %v", err)
	}
}

func TestQueueAppliesAttemptTimeout(test *testing.T) {
	test.Parallel()
	queue := newTestQueue(test, Config{Workers: 1, MaxAttempts: 1, AttemptTimeout: 10 * time.Millisecond})
	pending := queue.Enqueue(economy.WriteJob{
		Key: "account:slow",
		Write: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if err := waitPending(test, pending); !errors.Is(err, context.DeadlineExceeded) {
		test.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueueRecoversPanickingWrite(test *testing.T) {
	test.Parallel()
	queue := newTestQueue(test, Config{Workers: 1, MaxAttempts: 1})
	pending := queue.Enqueue(economy.WriteJob{
		Key:   "account:p",
		Write: func(context.Context) error { panic("nil map") },
	})
	if err := waitPending(test, pending); !errors.Is(err, economy.ErrPersistenceFailure) {
		test.Fatalf("expected persistence failure, got %v", err)
	}
}

func TestQueueCloseDrainsAndRejectsLateJobs(test *testing.T) {
	test.Parallel()
	queue := New(Config{Workers: 2}, zap.NewNop())
	var written atomic.Int32
	for index := 0; index < 20; index++ {
		queue.Enqueue(economy.WriteJob{
			Key: fmt.Sprintf("account:%d", index),
			Write: func(context.Context) error {
				time.Sleep(time.Millisecond)
				written.Add(1)
				return nil
			},
		})
	}
	if err := queue.Close(context.Background()); err != nil {
		test.Fatalf("close failed: %v", err)
	}
	if written.Load() != 20 {
		test.Fatalf("expected 20 drained writes, got %d", written.Load())
	}

	var lateOutcome error
	late := queue.Enqueue(economy.WriteJob{
		Key:    "account:late",
		Write:  func(context.Context) error { return nil },
		OnDone: func(err error) { lateOutcome = err },
	})
	if !errors.Is(late.Err(), ErrQueueClosed) || !errors.Is(lateOutcome, ErrQueueClosed) {
		test.Fatalf("expected ErrQueueClosed, got %v / %v", late.Err(), lateOutcome)
	}
	if err := queue.Close(context.Background()); err != nil {
		test.Fatalf("second close must be a no-op, got %v", err)
	}
}

func TestQueueCloseHonorsDeadline(test *testing.T) {
	test.Parallel()
	queue := New(Config{Workers: 1, MaxAttempts: 100, InitialBackoff: time.Second}, zap.NewNop())
	pending := queue.Enqueue(economy.WriteJob{
		Key:   "account:stuck",
		Write: func(context.Context) error { return errors.New("unavailable") },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := queue.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		test.Fatalf("expected deadline exceeded, got %v", err)
	}
	if err := waitPending(test, pending); !errors.Is(err, economy.ErrPersistenceFailure) {
		test.Fatalf("abandoned write must settle with a failure, got %v", err)
	}
}
