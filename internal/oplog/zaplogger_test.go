package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerLevelFollowsStatus(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		status string
		level  zapcore.Level
	}{
		{name: "ok", status: economy.OperationStatusOK, level: zapcore.InfoLevel},
		{name: "rejected", status: economy.OperationStatusRejected, level: zapcore.WarnLevel},
		{name: "error", status: economy.OperationStatusError, level: zapcore.ErrorLevel},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			core, logs := observer.New(zapcore.DebugLevel)
			New(zap.New(core)).LogOperation(context.Background(), economy.OperationLog{
				Operation: "purchase",
				Status:    testCase.status,
			})
			entries := logs.All()
			if len(entries) != 1 {
				test.Fatalf("expected one entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.level {
				test.Fatalf("expected level %s, got %s", testCase.level, entries[0].Level)
			}
		})
	}
}

func TestZapLoggerOmitsEmptyFields(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	player := mustPlayerID(test, "alice")
	New(zap.New(core)).LogOperation(context.Background(), economy.OperationLog{
		Operation: "deposit",
		PlayerID:  player,
		Amount:    decimal.RequireFromString("12.5"),
		Status:    economy.OperationStatusRejected,
		Error:     errors.New("insufficient funds"),
	})
	entries := logs.All()
	if len(entries) != 1 {
		test.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["player_id"] != "alice" || fields["amount"] != "12.5" {
		test.Fatalf("unexpected fields %v", fields)
	}
	for _, absent := range []string{"counterparty_id", "offer_id", "item_type", "quantity"} {
		if _, found := fields[absent]; found {
			test.Fatalf("expected %s to be omitted, got %v", absent, fields)
		}
	}
	if _, found := fields["error"]; !found {
		test.Fatalf("expected error field, got %v", fields)
	}
}

func TestNewWithNilLoggerDiscards(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), economy.OperationLog{Operation: "noop", Status: economy.OperationStatusOK})
}

func mustPlayerID(test *testing.T, raw string) economy.PlayerID {
	test.Helper()
	playerID, err := economy.NewPlayerID(raw)
	if err != nil {
		test.Fatalf("player id %q: %v", raw, err)
	}
	return playerID
}
