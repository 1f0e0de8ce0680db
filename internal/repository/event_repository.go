package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

const eventColumns = `id, title, city, language, genre, duration_minutes, rating, created_at, updated_at`

// EventRepo manages catalog events.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func scanEvent(row scanner) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.City, &e.Language, &e.Genre, &e.DurationMinutes, &e.Rating, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// Create inserts e and reloads it to pick up ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (title, city, language, genre, duration_minutes, rating) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.City, e.Language, e.Genre, e.DurationMinutes, e.Rating)
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
	*e = fresh
	return nil
}

// GetByID returns ErrEventNotFound when the event does not exist.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrEventNotFound
	}
	return e, err
}

// List returns events ordered by title.  A non-empty city filters
// case-insensitively.
func (r *EventRepo) List(ctx context.Context, city string) ([]model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if city = strings.TrimSpace(city); city != "" {
		q += ` WHERE LOWER(city) = ?`
		args = append(args, strings.ToLower(city))
	}
	q += ` ORDER BY title ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Update overwrites the editable fields of e.  Existing shows keep their
// end times; only shows created afterwards use the new duration.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	if _, err := r.GetByID(ctx, e.ID); err != nil {
		return err
	}
	const q = `UPDATE events SET title = ?, city = ?, language = ?, genre = ?, duration_minutes = ?, rating = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, e.Title, e.City, e.Language, e.Genre, e.DurationMinutes, e.Rating, e.ID); err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = fresh
	return nil
}

// Delete removes an event and, through the foreign key, its shows.  Events
// whose shows carry bookings yield ErrConflict.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	var booked int
	const q = `SELECT COUNT(*) FROM bookings b JOIN shows s ON s.id = b.show_id WHERE s.event_id = ?`
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&booked); err != nil {
		return err
	}
	if booked > 0 {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
