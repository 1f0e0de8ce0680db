package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// UserID returns the authenticated user ID stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    uid, ok := c.Get(ctxUserID).(uint64)
    return uid, ok && uid != 0
}

// Role returns the authenticated role stored by JWTAuth, or "".
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// userKey identifies the caller for rate limiting; "anon" when no token was
// verified.
func userKey(c echo.Context) string {
    if uid, ok := UserID(c); ok {
        return strconv.FormatUint(uid, 10)
    }
    return "anon"
}
