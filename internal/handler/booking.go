package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/cinema-show-booking/internal/booking"
    "github.com/iliyamo/cinema-show-booking/internal/middleware"
    "github.com/iliyamo/cinema-show-booking/internal/model"
    "github.com/iliyamo/cinema-show-booking/internal/repository"
)

// Reserver is the write side used by BookingHandler.
type Reserver interface {
    Reserve(ctx context.Context, userID, showID uint64, seatCount int) (*model.Booking, error)
}

// BookingLister is the read side used by BookingHandler.
type BookingLister interface {
    ListForUser(ctx context.Context, userID uint64) ([]model.Booking, error)
    ListAll(ctx context.Context) ([]model.Booking, error)
}

// statusClientClosedRequest is written when the caller cancelled the
// request; nobody reads it but the access log.
const statusClientClosedRequest = 499

// ShowLookup and EventLookup load the catalog details embedded in booking
// responses.
type ShowLookup interface {
    GetByID(ctx context.Context, id uint64) (model.Show, error)
}

type EventLookup interface {
    GetByID(ctx context.Context, id uint64) (model.Event, error)
}

// BookingHandler exposes reservations over HTTP.
type BookingHandler struct {
    Engine     Reserver
    Query      BookingLister
    Users      UserLookup
    Shows      ShowLookup  // optional, adds "show" to responses
    Events     EventLookup // optional, adds "event" to responses
    RetryAfter time.Duration // advertised on 503 responses
}

func NewBookingHandler(engine Reserver, query BookingLister, users UserLookup) *BookingHandler {
    return &BookingHandler{Engine: engine, Query: query, Users: users, RetryAfter: time.Second}
}

// WithCatalog makes responses carry the booked show and its event.
func (h *BookingHandler) WithCatalog(shows ShowLookup, events EventLookup) *BookingHandler {
    h.Shows = shows
    h.Events = events
    return h
}

type reserveReq struct {
    ShowID    uint64 `json:"show_id"`
    SeatCount *int   `json:"seat_count"`
}

type bookingResp struct {
    ID        uint64    `json:"id"`
    UserID    uint64    `json:"user_id"`
    ShowID    uint64    `json:"show_id"`
    SeatCount int       `json:"seat_count"`
    CreatedAt time.Time `json:"created_at"`
    Show      *showResp  `json:"show,omitempty"`
    Event     *eventResp `json:"event,omitempty"`
}

// details memoizes catalog reads for one response so a list touching the
// same show many times reads it once.
type details struct {
    h      *BookingHandler
    shows  map[uint64]*showResp
    events map[uint64]*eventResp
}

func (h *BookingHandler) newDetails() *details {
    return &details{h: h, shows: map[uint64]*showResp{}, events: map[uint64]*eventResp{}}
}

func (d *details) show(ctx context.Context, id uint64) (*showResp, error) {
    if d.h.Shows == nil {
        return nil, nil
    }
    if sr, ok := d.shows[id]; ok {
        return sr, nil
    }
    s, err := d.h.Shows.GetByID(ctx, id)
    switch {
    case errors.Is(err, repository.ErrShowNotFound):
        d.shows[id] = nil
        return nil, nil
    case err != nil:
        return nil, err
    }
    sr := toShowResp(s)
    d.shows[id] = &sr
    return &sr, nil
}

func (d *details) event(ctx context.Context, id uint64) (*eventResp, error) {
    if d.h.Events == nil {
        return nil, nil
    }
    if er, ok := d.events[id]; ok {
        return er, nil
    }
    ev, err := d.h.Events.GetByID(ctx, id)
    switch {
    case errors.Is(err, repository.ErrEventNotFound):
        d.events[id] = nil
        return nil, nil
    case err != nil:
        return nil, err
    }
    er := toEventResp(ev)
    d.events[id] = &er
    return &er, nil
}

func (d *details) booking(ctx context.Context, b model.Booking) (bookingResp, error) {
    resp := bookingResp{ID: b.ID, UserID: b.UserID, ShowID: b.ShowID, SeatCount: b.SeatCount, CreatedAt: b.CreatedAt.UTC()}
    sr, err := d.show(ctx, b.ShowID)
    if err != nil || sr == nil {
        return resp, err
    }
    resp.Show = sr
    resp.Event, err = d.event(ctx, sr.EventID)
    return resp, err
}

func (d *details) bookings(ctx context.Context, bs []model.Booking) ([]bookingResp, error) {
    out := make([]bookingResp, 0, len(bs))
    for _, b := range bs {
        r, err := d.booking(ctx, b)
        if err != nil {
            return nil, err
        }
        out = append(out, r)
    }
    return out, nil
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
    var req reserveReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if req.ShowID == 0 {
        return badRequest(c, "show_id required")
    }
    if req.SeatCount == nil {
        return badRequest(c, "seat_count required")
    }

    uid, err := resolveUser(c, h.Users)
    if err != nil {
        return h.reserveError(c, err)
    }
    b, err := h.Engine.Reserve(c.Request().Context(), uid, req.ShowID, *req.SeatCount)
    if err != nil {
        return h.reserveError(c, err)
    }
    resp, err := h.newDetails().booking(c.Request().Context(), *b)
    if err != nil {
        // the booking is committed; answer without the catalog details
        middleware.Logger(c).WithError(err).WithField("booking_id", b.ID).Warn("load booking details failed")
    }
    return c.JSON(http.StatusCreated, resp)
}

// ListMine handles GET /v1/bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
    uid, err := resolveUser(c, h.Users)
    if err != nil {
        return h.reserveError(c, err)
    }
    bs, err := h.Query.ListForUser(c.Request().Context(), uid)
    if err != nil {
        return h.reserveError(c, err)
    }
    out, err := h.newDetails().bookings(c.Request().Context(), bs)
    if err != nil {
        return internalError(c, "list bookings failed", err)
    }
    return c.JSON(http.StatusOK, out)
}

// ListAll handles GET /v1/admin/bookings.
func (h *BookingHandler) ListAll(c echo.Context) error {
    bs, err := h.Query.ListAll(c.Request().Context())
    if err != nil {
        return internalError(c, "list bookings failed", err)
    }
    out, err := h.newDetails().bookings(c.Request().Context(), bs)
    if err != nil {
        return internalError(c, "list bookings failed", err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) reserveError(c echo.Context, err error) error {
    var capErr *booking.CapacityError
    switch {
    case errors.Is(err, booking.ErrUserNotResolved):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not resolved"})
    case errors.Is(err, booking.ErrShowNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
    case errors.As(err, &capErr):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":     "insufficient capacity",
            "requested": capErr.Requested,
            "available": capErr.Available,
        })
    case errors.Is(err, booking.ErrInsufficientCapacity):
        return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient capacity"})
    case errors.Is(err, booking.ErrTransientConflict):
        secs := int(h.RetryAfter / time.Second)
        if secs < 1 {
            secs = 1
        }
        c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "show busy, retry"})
    case errors.Is(err, context.Canceled):
        return c.NoContent(statusClientClosedRequest)
    }
    return internalError(c, "reservation failed", err)
}
