package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NotFound("X", "x"), http.StatusNotFound},
		{"wrapped conflict", errors.Wrap(apperr.Conflict("X", "x"), "ctx"), http.StatusConflict},
		{"gateway", apperr.New(apperr.KindGatewayUnavailable, "X", "x"), http.StatusBadGateway},
		{"fiber", fiber.NewError(fiber.StatusBadRequest, "bad"), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusOf(tc.err))
		})
	}
}

func TestMiddleware_LogsDomainErrorStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(StatusOf(err))
		},
	})
	app.Use(Middleware(zap.New(core)))
	app.Get("/missing", func(c *fiber.Ctx) error { return apperr.NotFound("ORDER_NOT_FOUND", "order not found") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusOK, entries[1].ContextMap()["status"])
}
