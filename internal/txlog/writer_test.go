package txlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubInserter struct {
	mu      sync.Mutex
	records []economy.TransactionRecord
	failFor string
	block   chan struct{}
}

func (inserter *stubInserter) InsertTransaction(_ context.Context, record economy.TransactionRecord) error {
	if inserter.block != nil {
		<-inserter.block
	}
	if record.ID == inserter.failFor {
		return errors.New("constraint violation")
	}
	inserter.mu.Lock()
	defer inserter.mu.Unlock()
	inserter.records = append(inserter.records, record)
	return nil
}

func (inserter *stubInserter) ids() []string {
	inserter.mu.Lock()
	defer inserter.mu.Unlock()
	ids := make([]string, 0, len(inserter.records))
	for _, record := range inserter.records {
		ids = append(ids, record.ID)
	}
	return ids
}

func record(id string) economy.TransactionRecord {
	return economy.TransactionRecord{ID: id, Kind: economy.TransactionDeposit, Amount: decimal.NewFromInt(1)}
}

func TestWriterFlushesInOrderOnClose(test *testing.T) {
	test.Parallel()
	inserter := &stubInserter{}
	writer := NewWriter(inserter, zap.NewNop(), 16)
	for _, id := range []string{"a", "b", "c"} {
		writer.Append(record(id))
	}
	writer.Close()
	ids := inserter.ids()
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		test.Fatalf("unexpected records %v", ids)
	}
	writer.Append(record("late"))
	writer.Close()
	if len(inserter.ids()) != 3 {
		test.Fatalf("appends after close must be ignored")
	}
}

func TestWriterDropsFailedInserts(test *testing.T) {
	test.Parallel()
	inserter := &stubInserter{failFor: "bad"}
	writer := NewWriter(inserter, zap.NewNop(), 16)
	writer.Append(record("good"))
	writer.Append(record("bad"))
	writer.Append(record("also-good"))
	writer.Close()
	if ids := inserter.ids(); len(ids) != 2 {
		test.Fatalf("expected the failing record to be dropped, got %v", ids)
	}
	if writer.Dropped() != 1 {
		test.Fatalf("expected one dropped record, got %d", writer.Dropped())
	}
}

func TestWriterNeverBlocksWhenBufferIsFull(test *testing.T) {
	test.Parallel()
	inserter := &stubInserter{block: make(chan struct{})}
	writer := NewWriter(inserter, zap.NewNop(), 1)
	for index := 0; index < 10; index++ {
		writer.Append(record("r"))
	}
	if writer.Dropped() == 0 {
		test.Fatalf("expected drops while the store is stalled")
	}
	close(inserter.block)
	writer.Close()
}
