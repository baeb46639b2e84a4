package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderCorrelationID is echoed back on every response so callers can
// reference a specific evaluation request in support tickets.
const HeaderCorrelationID = "X-Correlation-ID"

const localCorrelationID = "correlation_id"

type correlationCtxKey struct{}

// CorrelationID assigns each request a correlation identifier, honoring one
// supplied by the caller, and threads it through the request user context so
// the evaluation workflow logs can be tied back to the HTTP request.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(localCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(context.WithValue(c.UserContext(), correlationCtxKey{}, id))

		return c.Next()
	}
}

// GetCorrelationID returns the correlation identifier bound to the request,
// or an empty string when the middleware did not run.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(localCorrelationID).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// CorrelationIDFromContext extracts the correlation identifier carried by a
// context derived from an HTTP request.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}
