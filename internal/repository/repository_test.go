package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

var (
	ts          = time.Date(2030, 3, 1, 19, 0, 0, 0, time.UTC)
	showColsArr = []string{"id", "event_id", "venue_name", "auditorium_name", "starts_at", "ends_at", "total_seats", "booked_seats", "created_at", "updated_at"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func showRow(id uint64, total, booked int) *sqlmock.Rows {
	return sqlmock.NewRows(showColsArr).
		AddRow(id, 1, "Grand", "A", ts, ts.Add(2*time.Hour), total, booked, ts, ts)
}

func TestIsLockConflict(t *testing.T) {
	assert.True(t, IsLockConflict(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsLockConflict(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsLockConflict(errors.Join(ErrLockTimeout, errors.New("x"))))
	assert.False(t, IsLockConflict(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsLockConflict(errors.New("boom")))
	assert.False(t, IsLockConflict(nil))
}

func TestShowRepoGetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM shows WHERE id = ?")).WithArgs(uint64(3)).WillReturnRows(showRow(3, 100, 40))
	s, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 60, s.Available())
	assert.Equal(t, "Grand", s.VenueName)

	mock.ExpectQuery(regexp.QuoteMeta("FROM shows WHERE id = ?")).WithArgs(uint64(4)).WillReturnRows(sqlmock.NewRows(showColsArr))
	_, err = repo.GetByID(context.Background(), 4)
	assert.ErrorIs(t, err, ErrShowNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReserveUnitCommits(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db, NewShowRepo(db), NewBookingRepo(db), nil)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM shows WHERE id = ? FOR UPDATE")).WithArgs(uint64(7)).WillReturnRows(showRow(7, 100, 90))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shows SET booked_seats = ? WHERE id = ?")).WithArgs(100, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings (user_id, show_id, seat_count, created_at)")).
		WithArgs(uint64(5), uint64(7), 10, ts).WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	show, err := uow.LockShow(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, uow.SetBookedSeats(ctx, 7, show.BookedSeats+10))
	b := &model.Booking{UserID: 5, ShowID: 7, SeatCount: 10, CreatedAt: ts}
	require.NoError(t, uow.InsertBooking(ctx, b))
	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback(), "rollback after commit is a no-op")

	assert.Equal(t, uint64(41), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLockTimeout(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db, NewShowRepo(db), NewBookingRepo(db), nil)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(uint64(7)).
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = uow.LockShow(ctx, 7)
	assert.ErrorIs(t, err, ErrLockTimeout)
	require.NoError(t, uow.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreStageWithoutOutbox(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db, NewShowRepo(db), NewBookingRepo(db), nil)

	mock.ExpectBegin()
	mock.ExpectRollback()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, uow.Stage(context.Background(), "t", nil), ErrOutboxDisabled)
	require.NoError(t, uow.Rollback())
}

func TestSetBookedSeatsMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shows SET booked_seats")).WithArgs(5, uint64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SetBookedSeatsTx(context.Background(), tx, 9, 5), ErrShowNotFound)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowDeleteLastShowRemovesEvent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(uint64(3)).WillReturnRows(showRow(3, 100, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE show_id = ?")).WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shows WHERE id = ?")).WithArgs(uint64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM shows WHERE event_id = ?")).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = ?")).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	eventDeleted, err := repo.Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, eventDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowDeleteWithBookingsConflicts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewShowRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(uint64(3)).WillReturnRows(showRow(3, 100, 4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE show_id = ?")).WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), 3)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepoListByUserOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "show_id", "seat_count", "created_at"}).
		AddRow(1, 5, 7, 2, ts).
		AddRow(4, 5, 8, 1, ts.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = ? ORDER BY created_at ASC, id ASC")).WithArgs(uint64(5)).WillReturnRows(rows)

	bs, err := repo.ListByUser(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, uint64(1), bs[0].ID)
	assert.Equal(t, uint64(8), bs[1].ShowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepoListAllEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "show_id", "seat_count", "created_at"}))

	bs, err := NewBookingRepo(db).ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, bs)
	assert.Empty(t, bs)
}

func TestBookingRepoSeatsByShow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(seat_count), 0) FROM bookings WHERE show_id = ?")).
		WithArgs(uint64(7)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(12))

	n, err := NewBookingRepo(db).SeatsByShow(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestEventRepoDeleteWithBookings(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings b JOIN shows s")).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))

	assert.ErrorIs(t, NewEventRepo(db).Delete(context.Background(), 2), ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepoDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings b JOIN shows s")).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = ?")).WithArgs(uint64(2)).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewEventRepo(db).Delete(context.Background(), 2), ErrEventNotFound)
}

func TestEventRepoListByCity(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"id", "title", "city", "language", "genre", "duration_minutes", "rating", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(city) = ?")).WithArgs("paris").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "Heat", "Paris", "fr", "crime", 170, 8.3, ts, ts))

	events, err := NewEventRepo(db).List(context.Background(), " Paris ")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Heat", events[0].Title)
}

func TestUserRepoCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("ann@example.com", sqlmock.AnyArg(), model.RoleUser).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewUserRepo(db).Create(context.Background(), " Ann@Example.com", "longenough", model.RoleUser, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "is_active", "created_at", "updated_at"}))

	_, err := NewUserRepo(db).GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTokenRepoValidateRefresh(t *testing.T) {
	cols := []string{"id", "user_id", "expires_at", "revoked_at"}
	future := time.Now().UTC().Add(time.Hour)
	cases := []struct {
		name string
		rows *sqlmock.Rows
		uid  uint64
		err  error
	}{
		{"live", sqlmock.NewRows(cols).AddRow(1, 5, future, nil), 5, nil},
		{"revoked", sqlmock.NewRows(cols).AddRow(1, 5, future, time.Now()), 0, ErrInvalidRefresh},
		{"expired", sqlmock.NewRows(cols).AddRow(1, 5, time.Now().Add(-time.Hour), nil), 0, ErrInvalidRefresh},
		{"unknown", sqlmock.NewRows(cols), 0, ErrInvalidRefresh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash=?")).WithArgs("h").WillReturnRows(tc.rows)

			uid, err := NewTokenRepo(db).ValidateRefresh(context.Background(), "h")
			assert.Equal(t, tc.uid, uid)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
