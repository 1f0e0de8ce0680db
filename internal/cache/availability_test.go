package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

func TestAvailabilityRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewAvailabilityCache(db, 10*time.Second)
	ctx := context.Background()

	a := FromShow(model.Show{ID: 4, TotalSeats: 100, BookedSeats: 95})
	raw, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectSet("avail:show:4", raw, 10*time.Second).SetVal("OK")
	require.NoError(t, c.Set(ctx, a))

	mock.ExpectGet("avail:show:4").SetVal(string(raw))
	got, ok, err := c.Get(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, got.Available)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewAvailabilityCache(db, 0)

	mock.ExpectGet("avail:show:9").RedisNil()
	_, ok, err := c.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewAvailabilityCache(db, time.Second)

	mock.ExpectDel("avail:show:7").SetVal(1)
	require.NoError(t, c.Invalidate(context.Background(), 7))

	mock.ExpectDel("avail:show:7").SetErr(errors.New("connection reset"))
	assert.EqualError(t, c.Invalidate(context.Background(), 7), "connection reset")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFromShowClampsOverbooked(t *testing.T) {
	assert.Equal(t, 0, FromShow(model.Show{TotalSeats: 3, BookedSeats: 3}).Available)
}
