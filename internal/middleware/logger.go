package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/lithammer/shortuuid/v3"
    "github.com/sirupsen/logrus"
)

// HeaderCorrelationID carries the request correlation ID in both directions.
const HeaderCorrelationID = "X-Correlation-ID"

const ctxLogger = "logger"

// RequestLogger tags every request with a correlation ID, stores a request
// scoped logger in the context and writes one entry when the request ends.
func RequestLogger(base logrus.FieldLogger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            req := c.Request()

            cid := req.Header.Get(HeaderCorrelationID)
            if cid == "" {
                cid = shortuuid.New()
            }
            c.Response().Header().Set(HeaderCorrelationID, cid)

            entry := base.WithFields(logrus.Fields{
                "correlation_id": cid,
                "method":         req.Method,
                "path":           req.URL.Path,
            })
            c.Set(ctxLogger, entry)

            err := next(c)
            if err != nil {
                c.Error(err)
            }

            fields := logrus.Fields{
                "status":      c.Response().Status,
                "route":       c.Path(),
                "duration_ms": time.Since(start).Milliseconds(),
                "remote_ip":   c.RealIP(),
            }
            if uid, ok := UserID(c); ok {
                fields["user_id"] = uid
            }
            e := entry.WithFields(fields)
            switch status := c.Response().Status; {
            case status >= 500:
                e.WithError(err).Error("request failed")
            case status >= 400:
                e.Warn("request rejected")
            default:
                e.Info("request served")
            }
            return nil
        }
    }
}

// Logger returns the request scoped logger, falling back to the standard
// logger outside RequestLogger.
func Logger(c echo.Context) logrus.FieldLogger {
    if l, ok := c.Get(ctxLogger).(logrus.FieldLogger); ok {
        return l
    }
    return logrus.StandardLogger()
}
