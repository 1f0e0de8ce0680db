package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-show-booking/internal/cache"
	"github.com/iliyamo/cinema-show-booking/internal/model"
	"github.com/iliyamo/cinema-show-booking/internal/repository"
)

type fakeEvents struct {
	mu     sync.Mutex
	events map[uint64]model.Event
	seq    uint64
	delErr error
}

func (f *fakeEvents) Create(_ context.Context, e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e.ID = f.seq
	f.events[e.ID] = *e
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id uint64) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, repository.ErrEventNotFound
	}
	return e, nil
}

func (f *fakeEvents) List(_ context.Context, city string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, e := range f.events {
		if city == "" || strings.EqualFold(e.City, city) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) Update(ctx context.Context, e *model.Event) error {
	if _, err := f.GetByID(ctx, e.ID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = *e
	return nil
}

func (f *fakeEvents) Delete(_ context.Context, id uint64) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return repository.ErrEventNotFound
	}
	delete(f.events, id)
	return nil
}

type fakeShows struct {
	mu     sync.Mutex
	shows  map[uint64]model.Show
	seq    uint64
	delErr error
	reads  int
}

func (f *fakeShows) Create(_ context.Context, s *model.Show) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	s.ID = f.seq
	f.shows[s.ID] = *s
	return nil
}

func (f *fakeShows) GetByID(_ context.Context, id uint64) (model.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	s, ok := f.shows[id]
	if !ok {
		return model.Show{}, repository.ErrShowNotFound
	}
	return s, nil
}

func (f *fakeShows) ListByEvent(_ context.Context, eventID uint64) ([]model.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Show
	for _, s := range f.shows {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeShows) ListUpcoming(_ context.Context, from time.Time, _ int) ([]model.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Show
	for _, s := range f.shows {
		if !s.StartsAt.Before(from) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeShows) Delete(_ context.Context, id uint64) (bool, error) {
	if f.delErr != nil {
		return false, f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shows[id]
	if !ok {
		return false, repository.ErrShowNotFound
	}
	delete(f.shows, id)
	for _, other := range f.shows {
		if other.EventID == s.EventID {
			return false, nil
		}
	}
	return true, nil
}

type fakeAvailability struct {
	mu      sync.Mutex
	entries map[uint64]cache.Availability
	getErr  error
}

func (f *fakeAvailability) Get(_ context.Context, id uint64) (cache.Availability, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return cache.Availability{}, false, f.getErr
	}
	a, ok := f.entries[id]
	return a, ok, nil
}

func (f *fakeAvailability) Set(_ context.Context, a cache.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[a.ShowID] = a
	return nil
}

var fixedNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func newCatalog() (*CatalogHandler, *fakeEvents, *fakeShows, *fakeAvailability) {
	ev := &fakeEvents{events: map[uint64]model.Event{}}
	sh := &fakeShows{shows: map[uint64]model.Show{}}
	av := &fakeAvailability{entries: map[uint64]cache.Availability{}}
	h := NewCatalogHandler(ev, sh, av)
	h.Now = func() time.Time { return fixedNow }
	return h, ev, sh, av
}

func catalogServer(h *CatalogHandler) *echo.Echo {
	e := echo.New()
	e.GET("/v1/events", h.ListEvents)
	e.GET("/v1/events/:id", h.GetEvent)
	e.GET("/v1/events/:id/shows", h.ListShowsByEvent)
	e.GET("/v1/shows", h.ListUpcomingShows)
	e.GET("/v1/shows/:id", h.GetShow)
	e.GET("/v1/shows/:id/availability", h.GetAvailability)
	e.POST("/v1/admin/events", h.CreateEvent)
	e.PUT("/v1/admin/events/:id", h.UpdateEvent)
	e.DELETE("/v1/admin/events/:id", h.DeleteEvent)
	e.POST("/v1/admin/events/:id/shows", h.CreateShow)
	e.DELETE("/v1/admin/shows/:id", h.DeleteShow)
	return e
}

func newReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func serveReq(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	return serveReq(e, newReq(method, path, body))
}

func TestCreateShowDerivesEndTime(t *testing.T) {
	h, ev, sh, _ := newCatalog()
	e := catalogServer(h)

	rec := do(e, http.MethodPost, "/v1/admin/events", `{"title":"Dune","city":"Berlin","duration_minutes":150,"rating":8.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, ev.events, 1)

	rec = do(e, http.MethodPost, "/v1/admin/events/1/shows", `{"venue_name":"Zoo Palast","auditorium_name":"1","starts_at":"2030-02-01T20:00:00Z","total_seats":120}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s := sh.shows[1]
	assert.Equal(t, time.Date(2030, 2, 1, 22, 30, 0, 0, time.UTC), s.EndsAt)
	assert.Equal(t, 120, s.TotalSeats)
	assert.Zero(t, s.BookedSeats)
}

func TestCatalogValidation(t *testing.T) {
	h, ev, _, _ := newCatalog()
	ev.events[1] = model.Event{ID: 1, Title: "Dune", City: "Berlin", DurationMinutes: 150}
	e := catalogServer(h)

	cases := []struct {
		name, method, path, body string
		status                   int
	}{
		{"event without title", http.MethodPost, "/v1/admin/events", `{"city":"Berlin","duration_minutes":90}`, http.StatusBadRequest},
		{"event bad duration", http.MethodPost, "/v1/admin/events", `{"title":"x","city":"Berlin","duration_minutes":0}`, http.StatusBadRequest},
		{"event bad rating", http.MethodPost, "/v1/admin/events", `{"title":"x","city":"Berlin","duration_minutes":90,"rating":11}`, http.StatusBadRequest},
		{"show zero seats", http.MethodPost, "/v1/admin/events/1/shows", `{"venue_name":"v","starts_at":"2030-02-01T20:00:00Z","total_seats":0}`, http.StatusBadRequest},
		{"show in past", http.MethodPost, "/v1/admin/events/1/shows", `{"venue_name":"v","starts_at":"2020-02-01T20:00:00Z","total_seats":10}`, http.StatusBadRequest},
		{"show unknown event", http.MethodPost, "/v1/admin/events/7/shows", `{"venue_name":"v","starts_at":"2030-02-01T20:00:00Z","total_seats":10}`, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/events/abc", "", http.StatusBadRequest},
		{"missing event", http.MethodGet, "/v1/events/9", "", http.StatusNotFound},
		{"update missing", http.MethodPut, "/v1/admin/events/9", `{"title":"x","city":"y","duration_minutes":5}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListEventsByCity(t *testing.T) {
	h, ev, _, _ := newCatalog()
	ev.events[1] = model.Event{ID: 1, Title: "Dune", City: "Berlin", DurationMinutes: 150}
	ev.events[2] = model.Event{ID: 2, Title: "Heat", City: "Paris", DurationMinutes: 170}
	e := catalogServer(h)

	rec := do(e, http.MethodGet, "/v1/events?city=paris", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Heat")
	assert.NotContains(t, rec.Body.String(), "Dune")
}

func TestDeleteShow(t *testing.T) {
	h, ev, sh, _ := newCatalog()
	ev.events[1] = model.Event{ID: 1, Title: "Dune", City: "Berlin", DurationMinutes: 150}
	sh.shows[1] = model.Show{ID: 1, EventID: 1, TotalSeats: 10}
	sh.shows[2] = model.Show{ID: 2, EventID: 1, TotalSeats: 10}
	e := catalogServer(h)

	rec := do(e, http.MethodDelete, "/v1/admin/shows/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1,"event_deleted":false}`, rec.Body.String())

	rec = do(e, http.MethodDelete, "/v1/admin/shows/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2,"event_deleted":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/v1/admin/shows/2", "").Code)

	sh.delErr = repository.ErrConflict
	assert.Equal(t, http.StatusConflict, do(e, http.MethodDelete, "/v1/admin/shows/3", "").Code)
}

func TestDeleteEventWithBookings(t *testing.T) {
	h, ev, _, _ := newCatalog()
	ev.delErr = repository.ErrConflict
	rec := do(catalogServer(h), http.MethodDelete, "/v1/admin/events/1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailabilityReadThrough(t *testing.T) {
	h, _, sh, av := newCatalog()
	sh.shows[4] = model.Show{ID: 4, EventID: 1, TotalSeats: 100, BookedSeats: 40}
	e := catalogServer(h)

	rec := do(e, http.MethodGet, "/v1/shows/4/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"show_id":4,"total_seats":100,"booked_seats":40,"available":60}`, rec.Body.String())
	assert.Equal(t, 60, av.entries[4].Available)

	rec = do(e, http.MethodGet, "/v1/shows/4/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, sh.reads)
}

func TestAvailabilityCacheFailureFallsBack(t *testing.T) {
	h, _, sh, av := newCatalog()
	av.getErr = errors.New("redis down")
	sh.shows[4] = model.Show{ID: 4, EventID: 1, TotalSeats: 10, BookedSeats: 10}

	rec := do(catalogServer(h), http.MethodGet, "/v1/shows/4/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":0`)
}

func TestAvailabilityWithoutCache(t *testing.T) {
	h, _, sh, _ := newCatalog()
	h.Availability = nil
	sh.shows[4] = model.Show{ID: 4, EventID: 1, TotalSeats: 10, BookedSeats: 3}

	rec := do(catalogServer(h), http.MethodGet, "/v1/shows/4/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusNotFound, do(catalogServer(h), http.MethodGet, "/v1/shows/5/availability", "").Code)
}

func TestListUpcomingShows(t *testing.T) {
	h, _, sh, _ := newCatalog()
	sh.shows[1] = model.Show{ID: 1, EventID: 1, TotalSeats: 10, StartsAt: fixedNow.Add(-time.Hour)}
	sh.shows[2] = model.Show{ID: 2, EventID: 1, TotalSeats: 10, StartsAt: fixedNow.Add(time.Hour)}

	rec := do(catalogServer(h), http.MethodGet, "/v1/shows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":2`)
	assert.NotContains(t, rec.Body.String(), `"id":1`)
}
