package booking

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// Ledger is the read side of the booking store.
type Ledger interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
}

// Query lists bookings oldest first.  Every call reads the store again.
type Query struct {
	ledger Ledger
}

func NewQuery(l Ledger) *Query { return &Query{ledger: l} }

func (q *Query) ListForUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	if userID == 0 {
		return nil, ErrUserNotResolved
	}
	ctx, span := tracer.Start(ctx, "booking.ListForUser", trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()
	return q.ledger.ListByUser(ctx, userID)
}

func (q *Query) ListAll(ctx context.Context) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.ListAll")
	defer span.End()
	return q.ledger.ListAll(ctx)
}
