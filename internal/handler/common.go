package handler // handler defines http handlers

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

// dbTimeout bounds the catalog and auth queries of a single request.
const dbTimeout = 5 * time.Second

// UserLookup loads a user record for identity resolution.
type UserLookup interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// resolveUser maps the authenticated principal to a live user.  A missing,
// deleted or deactivated account yields booking.ErrUserNotResolved.
func resolveUser(c echo.Context, users UserLookup) (uint64, error) {
    uid, ok := middleware.UserID(c)
    if !ok {
        return 0, booking.ErrUserNotResolved
    }
    if users == nil {
        return uid, nil
    }
    u, err := users.GetByID(c.Request().Context(), uid)
    switch {
    case errors.Is(err, repository.ErrUserNotFound):
        return 0, booking.ErrUserNotResolved
    case err != nil:
        return 0, err
    case !u.IsActive:
        return 0, booking.ErrUserNotResolved
    }
    return u.ID, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid " + name)
    }
    return id, nil
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// internalError logs err with the request logger and hides it from the client.
func internalError(c echo.Context, msg string, err error) error {
    middleware.Logger(c).WithError(err).Error(msg)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
}
