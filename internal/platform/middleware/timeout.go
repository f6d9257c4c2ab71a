package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. The handler runs in
// its own goroutine so a handler that ignores its context cannot hold the
// request past the deadline; the client gets a 504 instead.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan handlerResult, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- handlerResult{panicValue: r}
					}
				}()
				done <- handlerResult{err: next(c)}
			}()

			select {
			case res := <-done:
				if res.panicValue != nil {
					// Re-raise on the request goroutine so Recovery sees it.
					panic(res.panicValue)
				}
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
					return gatewayTimeout()
				}
				return res.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeout()
				}
				// Client went away.
				return ctx.Err()
			}
		}
	}
}

type handlerResult struct {
	err        error
	panicValue any
}

func gatewayTimeout() error {
	return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded time limit")
}
