package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
func RequireAuth(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}

		caller, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", caller.ID.String())
		c.Locals("role", string(caller.Role))
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// MustCaller returns the authenticated principal.
func MustCaller(c *fiber.Ctx) models.Caller {
	return models.Caller{
		ID:   uuid.MustParse(MustUserID(c)),
		Role: models.Role(MustRole(c)),
	}
}

// RequireRole ensures the authenticated user has one of the expected roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		have := models.Role(MustRole(c))
		for _, r := range roles {
			if have == r {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusBadGateway:
		return "BAD_GATEWAY"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler returns a global Fiber error handler with a consistent JSON shape.
// Domain errors keep their own code; anything unclassified is logged and
// reported as a bare 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Domain errors from services
		if ae, ok := apperr.As(err); ok {
			code := apperr.HTTPStatus(ae.Kind)
			if code >= fiber.StatusInternalServerError {
				log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(models.ErrorResponse{
				Code:    ae.Code,
				Error:   true,
				Message: ae.Message,
			})
		}

		// Defaults
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"

		// Fiber errors carry status codes
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			} else {
				msg = utilsStatusMessage(code)
			}
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Code:    httpCodeToString(code),
			Error:   true,
			Message: msg,
		})
	}
}

// utilsStatusMessage falls back to Fiber's default messages per status code.
func utilsStatusMessage(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return fiber.ErrBadRequest.Message
	case fiber.StatusUnauthorized:
		return fiber.ErrUnauthorized.Message
	case fiber.StatusForbidden:
		return fiber.ErrForbidden.Message
	case fiber.StatusNotFound:
		return fiber.ErrNotFound.Message
	case fiber.StatusConflict:
		return fiber.ErrConflict.Message
	default:
		return fiber.ErrInternalServerError.Message
	}
}
