package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-show-booking/internal/cache"
    "github.com/iliyamo/cinema-show-booking/internal/middleware"
    "github.com/iliyamo/cinema-show-booking/internal/model"
    "github.com/iliyamo/cinema-show-booking/internal/repository"
)

// EventStore is the catalog event persistence used by CatalogHandler.
type EventStore interface {
    Create(ctx context.Context, e *model.Event) error
    GetByID(ctx context.Context, id uint64) (model.Event, error)
    List(ctx context.Context, city string) ([]model.Event, error)
    Update(ctx context.Context, e *model.Event) error
    Delete(ctx context.Context, id uint64) error
}

// ShowStore is the catalog show persistence used by CatalogHandler.
type ShowStore interface {
    Create(ctx context.Context, s *model.Show) error
    GetByID(ctx context.Context, id uint64) (model.Show, error)
    ListByEvent(ctx context.Context, eventID uint64) ([]model.Show, error)
    ListUpcoming(ctx context.Context, from time.Time, limit int) ([]model.Show, error)
    Delete(ctx context.Context, id uint64) (eventDeleted bool, err error)
}

// AvailabilityStore is the read-through cache for show availability.
type AvailabilityStore interface {
    Get(ctx context.Context, showID uint64) (cache.Availability, bool, error)
    Set(ctx context.Context, a cache.Availability) error
}

// CatalogHandler serves events and shows: admin writes and public reads.
type CatalogHandler struct {
    Events       EventStore
    Shows        ShowStore
    Availability AvailabilityStore // optional
    Now          func() time.Time
}

func NewCatalogHandler(events EventStore, shows ShowStore, avail AvailabilityStore) *CatalogHandler {
    return &CatalogHandler{Events: events, Shows: shows, Availability: avail, Now: time.Now}
}

type eventReq struct {
    Title           string  `json:"title"`
    City            string  `json:"city"`
    Language        string  `json:"language"`
    Genre           string  `json:"genre"`
    DurationMinutes int     `json:"duration_minutes"`
    Rating          float64 `json:"rating"`
}

func (r eventReq) validate() string {
    switch {
    case strings.TrimSpace(r.Title) == "":
        return "title required"
    case strings.TrimSpace(r.City) == "":
        return "city required"
    case r.DurationMinutes <= 0:
        return "duration_minutes must be positive"
    case r.Rating < 0 || r.Rating > 10:
        return "rating must be between 0 and 10"
    }
    return ""
}

func (r eventReq) model(id uint64) *model.Event {
    return &model.Event{
        ID:              id,
        Title:           strings.TrimSpace(r.Title),
        City:            strings.TrimSpace(r.City),
        Language:        strings.TrimSpace(r.Language),
        Genre:           strings.TrimSpace(r.Genre),
        DurationMinutes: r.DurationMinutes,
        Rating:          r.Rating,
    }
}

type eventResp struct {
    ID              uint64    `json:"id"`
    Title           string    `json:"title"`
    City            string    `json:"city"`
    Language        string    `json:"language"`
    Genre           string    `json:"genre"`
    DurationMinutes int       `json:"duration_minutes"`
    Rating          float64   `json:"rating"`
    CreatedAt       time.Time `json:"created_at"`
}

func toEventResp(e model.Event) eventResp {
    return eventResp{
        ID: e.ID, Title: e.Title, City: e.City, Language: e.Language, Genre: e.Genre,
        DurationMinutes: e.DurationMinutes, Rating: e.Rating, CreatedAt: e.CreatedAt.UTC(),
    }
}

type showReq struct {
    VenueName      string    `json:"venue_name"`
    AuditoriumName string    `json:"auditorium_name"`
    StartsAt       time.Time `json:"starts_at"`
    TotalSeats     int       `json:"total_seats"`
}

type showResp struct {
    ID             uint64    `json:"id"`
    EventID        uint64    `json:"event_id"`
    VenueName      string    `json:"venue_name"`
    AuditoriumName string    `json:"auditorium_name"`
    StartsAt       time.Time `json:"starts_at"`
    EndsAt         time.Time `json:"ends_at"`
    TotalSeats     int       `json:"total_seats"`
    BookedSeats    int       `json:"booked_seats"`
    Available      int       `json:"available"`
}

func toShowResp(s model.Show) showResp {
    return showResp{
        ID: s.ID, EventID: s.EventID, VenueName: s.VenueName, AuditoriumName: s.AuditoriumName,
        StartsAt: s.StartsAt.UTC(), EndsAt: s.EndsAt.UTC(),
        TotalSeats: s.TotalSeats, BookedSeats: s.BookedSeats, Available: s.Available(),
    }
}

func toShowList(ss []model.Show) []showResp {
    out := make([]showResp, 0, len(ss))
    for _, s := range ss {
        out = append(out, toShowResp(s))
    }
    return out
}

// ----- events -----

// CreateEvent handles POST /v1/admin/events.
func (h *CatalogHandler) CreateEvent(c echo.Context) error {
    var req eventReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if msg := req.validate(); msg != "" {
        return badRequest(c, msg)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    ev := req.model(0)
    if err := h.Events.Create(ctx, ev); err != nil {
        return internalError(c, "create event failed", err)
    }
    return c.JSON(http.StatusCreated, toEventResp(*ev))
}

// UpdateEvent handles PUT /v1/admin/events/:id.
func (h *CatalogHandler) UpdateEvent(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    var req eventReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if msg := req.validate(); msg != "" {
        return badRequest(c, msg)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    ev := req.model(id)
    if err := h.Events.Update(ctx, ev); err != nil {
        return h.catalogError(c, "update event failed", err)
    }
    return c.JSON(http.StatusOK, toEventResp(*ev))
}

// DeleteEvent handles DELETE /v1/admin/events/:id.
func (h *CatalogHandler) DeleteEvent(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Events.Delete(ctx, id); err != nil {
        return h.catalogError(c, "delete event failed", err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ListEvents handles GET /v1/events with an optional ?city= filter.
func (h *CatalogHandler) ListEvents(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    events, err := h.Events.List(ctx, c.QueryParam("city"))
    if err != nil {
        return internalError(c, "list events failed", err)
    }
    out := make([]eventResp, 0, len(events))
    for _, e := range events {
        out = append(out, toEventResp(e))
    }
    return c.JSON(http.StatusOK, out)
}

// GetEvent handles GET /v1/events/:id.
func (h *CatalogHandler) GetEvent(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, id)
    if err != nil {
        return h.catalogError(c, "get event failed", err)
    }
    return c.JSON(http.StatusOK, toEventResp(ev))
}

// ----- shows -----

// CreateShow handles POST /v1/admin/events/:id/shows.  The end time is the
// start time plus the event's duration.
func (h *CatalogHandler) CreateShow(c echo.Context) error {
    eventID, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    var req showReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    switch {
    case strings.TrimSpace(req.VenueName) == "":
        return badRequest(c, "venue_name required")
    case req.TotalSeats <= 0:
        return badRequest(c, "total_seats must be positive")
    case req.StartsAt.IsZero():
        return badRequest(c, "starts_at required")
    case !req.StartsAt.After(h.Now()):
        return badRequest(c, "starts_at must be in the future")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    ev, err := h.Events.GetByID(ctx, eventID)
    if err != nil {
        return h.catalogError(c, "load event failed", err)
    }
    show := &model.Show{
        EventID:        ev.ID,
        VenueName:      strings.TrimSpace(req.VenueName),
        AuditoriumName: strings.TrimSpace(req.AuditoriumName),
        StartsAt:       req.StartsAt.UTC(),
        EndsAt:         req.StartsAt.UTC().Add(time.Duration(ev.DurationMinutes) * time.Minute),
        TotalSeats:     req.TotalSeats,
    }
    if err := h.Shows.Create(ctx, show); err != nil {
        return internalError(c, "create show failed", err)
    }
    return c.JSON(http.StatusCreated, toShowResp(*show))
}

// DeleteShow handles DELETE /v1/admin/shows/:id.
func (h *CatalogHandler) DeleteShow(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    eventDeleted, err := h.Shows.Delete(ctx, id)
    if err != nil {
        return h.catalogError(c, "delete show failed", err)
    }
    if eventDeleted {
        middleware.Logger(c).WithField("show_id", id).Info("last show removed, event deleted")
    }
    return c.JSON(http.StatusOK, echo.Map{"deleted": id, "event_deleted": eventDeleted})
}

// ListShowsByEvent handles GET /v1/events/:id/shows.
func (h *CatalogHandler) ListShowsByEvent(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if _, err := h.Events.GetByID(ctx, id); err != nil {
        return h.catalogError(c, "load event failed", err)
    }
    shows, err := h.Shows.ListByEvent(ctx, id)
    if err != nil {
        return internalError(c, "list shows failed", err)
    }
    return c.JSON(http.StatusOK, toShowList(shows))
}

// ListUpcomingShows handles GET /v1/shows.
func (h *CatalogHandler) ListUpcomingShows(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    shows, err := h.Shows.ListUpcoming(ctx, h.Now(), 100)
    if err != nil {
        return internalError(c, "list shows failed", err)
    }
    return c.JSON(http.StatusOK, toShowList(shows))
}

// GetShow handles GET /v1/shows/:id.
func (h *CatalogHandler) GetShow(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    s, err := h.Shows.GetByID(ctx, id)
    if err != nil {
        return h.catalogError(c, "get show failed", err)
    }
    return c.JSON(http.StatusOK, toShowResp(s))
}

// GetAvailability handles GET /v1/shows/:id/availability.  Answers come from
// the availability cache when present; misses read the show and refill it.
func (h *CatalogHandler) GetAvailability(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return badRequest(c, err.Error())
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()
    log := middleware.Logger(c).WithField("show_id", id)

    if h.Availability != nil {
        a, ok, err := h.Availability.Get(ctx, id)
        if err != nil {
            log.WithError(err).Warn("availability cache read failed")
        } else if ok {
            c.Response().Header().Set(middleware.HeaderCache, "HIT")
            return c.JSON(http.StatusOK, a)
        }
    }

    s, err := h.Shows.GetByID(ctx, id)
    if err != nil {
        return h.catalogError(c, "get show failed", err)
    }
    a := cache.FromShow(s)
    if h.Availability != nil {
        if err := h.Availability.Set(ctx, a); err != nil {
            log.WithError(err).Warn("availability cache write failed")
        }
        c.Response().Header().Set(middleware.HeaderCache, "MISS")
    }
    return c.JSON(http.StatusOK, a)
}

func (h *CatalogHandler) catalogError(c echo.Context, msg string, err error) error {
    switch {
    case errors.Is(err, repository.ErrEventNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
    case errors.Is(err, repository.ErrShowNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "bookings exist"})
    }
    return internalError(c, msg, err)
}
