package ratings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/internal/testutil"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

func newTestApp(h *Handler, userID uuid.UUID) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	app.Get("/api/v1/lawyers/:id/ratings", h.ListForLawyer)
	app.Post("/api/v1/consultations/:id/rating", testutil.InjectAuth(userID, models.RoleClient), h.Submit)
	return app
}

func TestSubmitHandler(t *testing.T) {
	f, db, _ := newFinalizer(t)
	client := testutil.NewClient(t, db)
	l := testutil.NewLawyer(t, db, "Direito de Família")
	o := finishedOrder(t, db, client.ID, l.ID)
	app := newTestApp(NewHandler(db, f), client.ID)
	path := "/api/v1/consultations/" + o.ID.String() + "/rating"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"stars":5,"comment":"Excelente"}`))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var out SubmitResponse
	testutil.DecodeJSON(t, res, &out)
	assert.Equal(t, models.OrderCompleted, out.OrderStatus)
	assert.Equal(t, 5.0, out.LawyerRating)
	assert.Equal(t, 1, out.TotalReviews)

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"stars":4}`))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	var e models.ErrorResponse
	testutil.DecodeJSON(t, res, &e)
	assert.Equal(t, "ALREADY_RATED", e.Code)
}

func TestListForLawyerHandler(t *testing.T) {
	ctx := context.Background()
	f, db, _ := newFinalizer(t)
	client := testutil.NewClient(t, db)
	me := models.Caller{ID: client.ID, Role: models.RoleClient}
	l := testutil.NewLawyer(t, db, "Direito de Família")

	for _, r := range []struct {
		stars   int
		comment string
	}{
		{5, "Ligue-me no +258 84 765 4321 ou joana@mail.mz"},
		{4, "Bom"},
		{4, ""},
	} {
		_, err := f.Submit(ctx, me, finishedOrder(t, db, client.ID, l.ID).ID, r.stars, r.comment)
		require.NoError(t, err)
	}

	app := newTestApp(NewHandler(db, f), client.ID)
	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers/"+l.ID.String()+"/ratings", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out ListResponse
	testutil.DecodeJSON(t, res, &out)
	assert.EqualValues(t, 3, out.Total)
	require.Len(t, out.Items, 3)
	assert.Equal(t, 4.3, out.Summary.Average)
	assert.Equal(t, 3, out.Summary.TotalReviews)
	assert.Equal(t, map[string]int{"1": 0, "2": 0, "3": 0, "4": 2, "5": 1}, out.Summary.Distribution)

	for _, it := range out.Items {
		assert.Equal(t, "Joana", it.ClientName)
		assert.NotContains(t, it.Comment, "765 4321")
		assert.NotContains(t, it.Comment, "joana@mail.mz")
	}

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers/"+uuid.NewString()+"/ratings", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
