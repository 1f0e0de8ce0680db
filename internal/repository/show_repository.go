package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

const showColumns = `id, event_id, venue_name, auditorium_name, starts_at, ends_at, total_seats, booked_seats, created_at, updated_at`

// ShowRepo manages persistence for shows.  It is also the inventory store
// of the reservation engine: LockForUpdateTx and SetBookedSeatsTx only run
// inside a caller-owned transaction.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// DB exposes the underlying sql.DB so callers can begin transactions that
// span multiple repositories.
func (r *ShowRepo) DB() *sql.DB {
	return r.db
}

func scanShow(row scanner) (model.Show, error) {
	var s model.Show
	err := row.Scan(&s.ID, &s.EventID, &s.VenueName, &s.AuditoriumName, &s.StartsAt, &s.EndsAt,
		&s.TotalSeats, &s.BookedSeats, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a new show with no booked seats.  ID and timestamps are
// populated from the stored row.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (event_id, venue_name, auditorium_name, starts_at, ends_at, total_seats, booked_seats)
	           VALUES (?, ?, ?, ?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, q, s.EventID, s.VenueName, s.AuditoriumName, s.StartsAt.UTC(), s.EndsAt.UTC(), s.TotalSeats)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = fresh
	return nil
}

// GetByID retrieves a show by its ID.  It returns ErrShowNotFound if there
// is no matching row.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (model.Show, error) {
	s, err := scanShow(r.db.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Show{}, ErrShowNotFound
	}
	return s, err
}

// ListByEvent returns the shows of an event ordered by start time.
func (r *ShowRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Show, error) {
	return r.list(ctx, `SELECT `+showColumns+` FROM shows WHERE event_id = ? ORDER BY starts_at ASC, id ASC`, eventID)
}

// ListUpcoming returns shows starting at or after from, soonest first.
func (r *ShowRepo) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]model.Show, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+showColumns+` FROM shows WHERE starts_at >= ? ORDER BY starts_at ASC, id ASC LIMIT ?`, from.UTC(), limit)
}

func (r *ShowRepo) list(ctx context.Context, q string, args ...any) ([]model.Show, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shows := []model.Show{}
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

// LockForUpdateTx reads a show and takes an exclusive row lock held until
// tx ends.  Concurrent callers for the same show queue behind the lock;
// other shows are unaffected.
func (r *ShowRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Show, error) {
	s, err := scanShow(tx.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ? FOR UPDATE`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Show{}, ErrShowNotFound
	case IsLockConflict(err):
		return model.Show{}, fmt.Errorf("%w: show %d: %v", ErrLockTimeout, id, err)
	}
	return s, err
}

// SetBookedSeatsTx writes the new booked_seats value of a locked show.
func (r *ShowRepo) SetBookedSeatsTx(ctx context.Context, tx *sql.Tx, id uint64, booked int) error {
	res, err := tx.ExecContext(ctx, `UPDATE shows SET booked_seats = ? WHERE id = ?`, booked, id)
	if err != nil {
		if IsLockConflict(err) {
			return fmt.Errorf("%w: show %d: %v", ErrLockTimeout, id, err)
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrShowNotFound
	}
	return nil
}

// Delete removes a show that has no bookings.  When it was the last show of
// its event, the event is removed as well.  Shows with bookings yield
// ErrConflict so the ledger never references a missing show.
func (r *ShowRepo) Delete(ctx context.Context, id uint64) (eventDeleted bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	show, err := r.LockForUpdateTx(ctx, tx, id)
	if err != nil {
		return false, err
	}
	var bookings int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE show_id = ?`, id).Scan(&bookings); err != nil {
		return false, err
	}
	if bookings > 0 {
		return false, ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shows WHERE id = ?`, id); err != nil {
		return false, err
	}
	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM shows WHERE event_id = ?`, show.EventID).Scan(&remaining); err != nil {
		return false, err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, show.EventID); err != nil {
			return false, err
		}
		eventDeleted = true
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return eventDeleted, nil
}
