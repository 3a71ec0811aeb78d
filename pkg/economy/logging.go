package economy

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Option configures the economy services built by NewEngine or the individual constructors.
type Option func(*options)

// OperationLogger records domain-level events emitted by economy operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// Statuses carried by OperationLog.Status.
const (
	OperationStatusOK       = "ok"
	OperationStatusRejected = "rejected"
	OperationStatusError    = "error"
)

// OperationLog describes a state-changing economy operation.
type OperationLog struct {
	Operation    string
	PlayerID     PlayerID
	Counterparty PlayerID
	OfferID      OfferID
	ItemType     string
	Amount       decimal.Decimal
	Quantity     int64
	Status       string
	Error        error
}

type options struct {
	logger   OperationLogger
	notifier Notifier
	identity IdentityResolver
	now      func() time.Time
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(target *options) {
		target.logger = logger
	}
}

// WithNotifier wires the collaborator receiving return and sale notices.
func WithNotifier(notifier Notifier) Option {
	return func(target *options) {
		target.notifier = notifier
	}
}

// WithIdentityResolver wires the online-status lookup used for notifications.
func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(target *options) {
		target.identity = resolver
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(target *options) {
		if now != nil {
			target.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	resolved := options{
		notifier: noopNotifier{},
		identity: offlineResolver{},
		now:      time.Now,
	}
	for _, option := range opts {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

func (resolved options) logOperation(ctx context.Context, entry OperationLog) {
	if resolved.logger == nil {
		return
	}
	if entry.Status == "" {
		entry.Status = operationStatus(entry.Error)
	}
	resolved.logger.LogOperation(ctx, entry)
}

// operationStatus separates domain rejections from infrastructure failures.
func operationStatus(err error) string {
	switch {
	case err == nil:
		return OperationStatusOK
	case errors.Is(err, ErrPersistenceFailure), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OperationStatusError
	default:
		return OperationStatusRejected
	}
}

type noopNotifier struct{}

func (noopNotifier) ReturnUnsold(context.Context, ReturnNotice) {}

func (noopNotifier) SaleCompleted(context.Context, SaleNotice) {}

type offlineResolver struct{}

func (offlineResolver) IsOnline(PlayerID) bool { return false }
