// Package oplog writes economy operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"go.uber.org/zap"
)

const messageOperation = "economy operation"

// ZapLogger implements economy.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger; a nil logger discards everything.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (logger *ZapLogger) LogOperation(_ context.Context, entry economy.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.PlayerID.IsZero() {
		fields = append(fields, zap.String("player_id", entry.PlayerID.String()))
	}
	if !entry.Counterparty.IsZero() {
		fields = append(fields, zap.String("counterparty_id", entry.Counterparty.String()))
	}
	if entry.OfferID.String() != "" {
		fields = append(fields, zap.String("offer_id", entry.OfferID.String()))
	}
	if entry.ItemType != "" {
		fields = append(fields, zap.String("item_type", entry.ItemType))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}

	switch entry.Status {
	case economy.OperationStatusError:
		logger.logger.Error(messageOperation, fields...)
	case economy.OperationStatusRejected:
		logger.logger.Warn(messageOperation, fields...)
	default:
		logger.logger.Info(messageOperation, fields...)
	}
}
