package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Timeout adds a request-scoped deadline without swapping Echo's response writer. When
// the deadline fires the context error is returned and the error handler answers 503.
func Timeout(duration time.Duration) echo.MiddlewareFunc {
	if duration <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			parent := c.Request().Context()
			select {
			case <-parent.Done():
				return parent.Err()
			default:
			}

			ctx, cancel := context.WithTimeout(parent, duration)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if ctxErr := ctx.Err(); ctxErr != nil && !c.Response().Committed {
				return ctxErr
			}
			return err
		}
	}
}
