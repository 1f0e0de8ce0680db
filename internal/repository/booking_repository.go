package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// BookingRepo is the append-only booking ledger.  Rows are inserted inside
// the reservation transaction and never updated or deleted.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts b within tx and assigns the generated ID.  CreatedAt must
// already be set by the caller.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, show_id, seat_count, created_at) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.UserID, b.ShowID, b.SeatCount, b.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// ListByUser returns the bookings of a user, oldest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx, `SELECT id, user_id, show_id, seat_count, created_at FROM bookings
	                    WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
}

// ListAll returns every booking, oldest first.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, `SELECT id, user_id, show_id, seat_count, created_at FROM bookings
	                    ORDER BY created_at ASC, id ASC`)
}

// SeatsByShow sums seat_count over the bookings of a show.
func (r *BookingRepo) SeatsByShow(ctx context.Context, showID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(seat_count), 0) FROM bookings WHERE show_id = ?`, showID).Scan(&n)
	return n, err
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.ShowID, &b.SeatCount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
