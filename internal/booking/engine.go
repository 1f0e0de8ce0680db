// Package booking is the seat reservation engine and the booking read path.
//
// Reserve serializes reservations per show through the store's row lock,
// applies the seat decrement and the ledger insert as one unit of work, and
// only after commit hands the confirmation to the notifier.  Reservations on
// different shows never wait for each other.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/cinema-show-booking/internal/model"
	"github.com/iliyamo/cinema-show-booking/internal/queue"
	"github.com/iliyamo/cinema-show-booking/internal/repository"
)

const DefaultLockTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/iliyamo/cinema-show-booking/internal/booking")

// ShowFinder is the catalog lookup used before any lock is taken.
type ShowFinder interface {
	GetByID(ctx context.Context, showID uint64) (model.Show, error)
}

// Notifier receives confirmations of committed bookings.  Implementations
// must not block on the event bus and must absorb their own failures.
type Notifier interface {
	Notify(ctx context.Context, ev queue.BookingConfirmedEvent)
}

// AvailabilityCache drops cached availability of a show.
type AvailabilityCache interface {
	Invalidate(ctx context.Context, showID uint64) error
}

type Option func(*Engine)

// WithLockTimeout bounds lock acquisition plus commit of one reservation.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithOutbox stages the confirmation inside the reservation transaction
// instead of handing it to the notifier after commit.
func WithOutbox() Option { return func(e *Engine) { e.outbox = true } }

func WithAvailabilityCache(c AvailabilityCache) Option { return func(e *Engine) { e.cache = c } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

type Engine struct {
	shows       ShowFinder
	store       repository.TxStore
	notifier    Notifier
	cache       AvailabilityCache
	outbox      bool
	lockTimeout time.Duration
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewEngine(shows ShowFinder, store repository.TxStore, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		shows:       shows,
		store:       store,
		notifier:    notifier,
		lockTimeout: DefaultLockTimeout,
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve books seatCount seats on a show for userID.
//
// Errors: ErrUserNotResolved, ErrShowNotFound, ErrInsufficientCapacity
// (as *CapacityError), ErrTransientConflict, or context.Canceled when the
// caller gave up.  Notification problems are never returned.
func (e *Engine) Reserve(ctx context.Context, userID, showID uint64, seatCount int) (_ *model.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Reserve", trace.WithAttributes(
		attribute.Int64("show.id", int64(showID)),
		attribute.Int("booking.seats", seatCount),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if userID == 0 {
		return nil, ErrUserNotResolved
	}
	show, err := e.shows.GetByID(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("find show %d: %w", showID, err)
	}
	if seatCount <= 0 {
		return nil, &CapacityError{ShowID: showID, Requested: seatCount, Available: show.Available()}
	}

	b, err := e.reserveTx(ctx, userID, showID, seatCount)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("booking.id", int64(b.ID)))

	e.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"user_id":    userID,
		"show_id":    showID,
		"seats":      seatCount,
	}).Info("booking committed")

	e.afterCommit(context.WithoutCancel(ctx), b)
	return b, nil
}

func (e *Engine) reserveTx(ctx context.Context, userID, showID uint64, seatCount int) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, e.classify(ctx, "begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := uow.Rollback(); rbErr != nil {
				e.log.WithError(rbErr).WithField("show_id", showID).Warn("reserve: rollback failed")
			}
		}
	}()

	show, err := uow.LockShow(ctx, showID)
	if err != nil {
		return nil, e.classify(ctx, "lock show", err)
	}
	available := show.TotalSeats - show.BookedSeats
	if seatCount > available {
		return nil, &CapacityError{ShowID: showID, Requested: seatCount, Available: max(available, 0)}
	}
	if err := uow.SetBookedSeats(ctx, showID, show.BookedSeats+seatCount); err != nil {
		return nil, e.classify(ctx, "update show", err)
	}

	b := &model.Booking{
		UserID:    userID,
		ShowID:    showID,
		SeatCount: seatCount,
		CreatedAt: e.now().UTC().Truncate(time.Microsecond),
	}
	if err := uow.InsertBooking(ctx, b); err != nil {
		return nil, e.classify(ctx, "insert booking", err)
	}
	if e.outbox {
		msg, err := confirmation(b).Message()
		if err != nil {
			return nil, fmt.Errorf("encode confirmation: %w", err)
		}
		if err := uow.Stage(ctx, queue.BookingConfirmedTopic, msg); err != nil {
			return nil, e.classify(ctx, "stage confirmation", err)
		}
	}
	if err := uow.Commit(); err != nil {
		return nil, e.classify(ctx, "commit", err)
	}
	committed = true
	return b, nil
}

// afterCommit runs outside the unit of work; nothing here can undo or fail
// the booking.
func (e *Engine) afterCommit(ctx context.Context, b *model.Booking) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, b.ShowID); err != nil {
			e.log.WithError(err).WithField("show_id", b.ShowID).Warn("availability cache invalidation failed")
		}
	}
	if !e.outbox && e.notifier != nil {
		e.notifier.Notify(ctx, confirmation(b))
	}
}

func (e *Engine) classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrShowNotFound):
		return ErrShowNotFound
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		// the caller went away; retrying on its behalf makes no sense
		return fmt.Errorf("%s: %w", op, context.Canceled)
	case repository.IsLockConflict(err),
		errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil:
		return fmt.Errorf("%w: %s: %v", ErrTransientConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func confirmation(b *model.Booking) queue.BookingConfirmedEvent {
	return queue.NewBookingConfirmed(b.ID, b.UserID, b.ShowID, b.SeatCount, b.CreatedAt)
}
