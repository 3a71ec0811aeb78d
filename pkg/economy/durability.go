package economy

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// PendingWrite settles exactly once when a queued durable write finishes.
type PendingWrite struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewPendingWrite returns an unsettled write handle.
func NewPendingWrite() *PendingWrite {
	return &PendingWrite{done: make(chan struct{})}
}

// SettledWrite returns a handle that already carries its outcome.
func SettledWrite(err error) *PendingWrite {
	pending := NewPendingWrite()
	pending.Settle(err)
	return pending
}

// Settle records the outcome. Later calls are ignored.
func (pending *PendingWrite) Settle(err error) {
	pending.once.Do(func() {
		pending.err = err
		close(pending.done)
	})
}

// Done is closed once the write settles.
func (pending *PendingWrite) Done() <-chan struct{} {
	return pending.done
}

// Err returns the outcome; nil until settled.
func (pending *PendingWrite) Err() error {
	select {
	case <-pending.done:
		return pending.err
	default:
		return nil
	}
}

// Durability tracks the durable writes behind a cached mutation.
type Durability struct {
	writes []*PendingWrite
}

func newDurability(writes ...*PendingWrite) Durability {
	filtered := make([]*PendingWrite, 0, len(writes))
	for _, write := range writes {
		if write != nil {
			filtered = append(filtered, write)
		}
	}
	return Durability{writes: filtered}
}

func (durability Durability) join(other Durability) Durability {
	combined := make([]*PendingWrite, 0, len(durability.writes)+len(other.writes))
	combined = append(combined, durability.writes...)
	combined = append(combined, other.writes...)
	return Durability{writes: combined}
}

// Wait blocks until every write settles or ctx ends.
func (durability Durability) Wait(ctx context.Context) error {
	var failures []error
	for _, write := range durability.writes {
		select {
		case <-write.Done():
			if err := write.Err(); err != nil {
				failures = append(failures, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(failures...)
}

// Settled reports whether every write finished.
func (durability Durability) Settled() bool {
	for _, write := range durability.writes {
		select {
		case <-write.Done():
		default:
			return false
		}
	}
	return true
}

// Receipt is the cached balance after a mutation.
type Receipt struct {
	Balance    decimal.Decimal
	Durability Durability
}

// TransferReceipt carries both balances after a transfer.
type TransferReceipt struct {
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
	Durability  Durability
}
