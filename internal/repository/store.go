package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// ErrOutboxDisabled is returned by Stage when the store has no outbox.
var ErrOutboxDisabled = errors.New("outbox disabled")

// UnitOfWork is one all-or-nothing reservation: lock a show, move its
// booked_seats, append a booking, optionally stage an outbound message.
// Nothing is visible to other units until Commit; Rollback after Commit is
// a no-op.
type UnitOfWork interface {
	LockShow(ctx context.Context, showID uint64) (model.Show, error)
	SetBookedSeats(ctx context.Context, showID uint64, booked int) error
	InsertBooking(ctx context.Context, b *model.Booking) error
	Stage(ctx context.Context, topic string, msg *message.Message) error
	Commit() error
	Rollback() error
}

// TxStore opens units of work.
type TxStore interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Store is the MySQL TxStore: one *sql.Tx per unit, show rows locked with
// SELECT ... FOR UPDATE.
type Store struct {
	db       *sql.DB
	shows    *ShowRepo
	bookings *BookingRepo
	outbox   *Outbox
}

// NewStore wires the repositories into a TxStore.  outbox may be nil.
func NewStore(db *sql.DB, shows *ShowRepo, bookings *BookingRepo, outbox *Outbox) *Store {
	return &Store{db: db, shows: shows, bookings: bookings, outbox: outbox}
}

func (s *Store) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &sqlUnit{tx: tx, store: s}, nil
}

type sqlUnit struct {
	tx    *sql.Tx
	store *Store
}

func (u *sqlUnit) LockShow(ctx context.Context, showID uint64) (model.Show, error) {
	return u.store.shows.LockForUpdateTx(ctx, u.tx, showID)
}

func (u *sqlUnit) SetBookedSeats(ctx context.Context, showID uint64, booked int) error {
	return u.store.shows.SetBookedSeatsTx(ctx, u.tx, showID, booked)
}

func (u *sqlUnit) InsertBooking(ctx context.Context, b *model.Booking) error {
	return u.store.bookings.CreateTx(ctx, u.tx, b)
}

func (u *sqlUnit) Stage(ctx context.Context, topic string, msg *message.Message) error {
	if u.store.outbox == nil {
		return ErrOutboxDisabled
	}
	msg.SetContext(ctx)
	return u.store.outbox.PublishTx(u.tx, topic, msg)
}

func (u *sqlUnit) Commit() error {
	if err := u.tx.Commit(); err != nil {
		if IsLockConflict(err) {
			return errors.Join(ErrLockTimeout, err)
		}
		return err
	}
	return nil
}

func (u *sqlUnit) Rollback() error {
	err := u.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
