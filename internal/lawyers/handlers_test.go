package lawyers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/internal/testutil"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

func newTestApp(db *gorm.DB, userID uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	app.Use(testutil.InjectAuth(userID, role))

	app.Get("/api/v1/lawyers", h.List)
	app.Patch("/api/v1/lawyers/:id/online-status", h.UpdateOnlineStatus)
	app.Get("/api/v1/lawyers/:id", h.Get)
	app.Post("/api/v1/admin/lawyers", h.Create)
	app.Patch("/api/v1/admin/lawyers/:id/verification", h.UpdateVerification)
	return app
}

func TestList_OnlyVerifiedActive(t *testing.T) {
	db := testutil.OpenDB(t)
	a := testutil.NewLawyer(t, db, "Direito de Família")
	testutil.NewLawyer(t, db, "Direito de Família", testutil.Unverified)
	testutil.NewLawyer(t, db, "Direito de Família", testutil.Inactive)
	testutil.NewLawyer(t, db, "Direito Laboral", testutil.Offline)

	app := newTestApp(db, uuid.New(), models.RoleClient)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers?specialty=Direito%20de%20Fam%C3%ADlia", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var page models.Page[LawyerResponse]
	testutil.DecodeJSON(t, res, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, a.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Total)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers?available=true", nil))
	require.NoError(t, err)
	testutil.DecodeJSON(t, res, &page)
	assert.EqualValues(t, 1, page.Total, "offline lawyer filtered out")
}

func TestUpdateOnlineStatus(t *testing.T) {
	db := testutil.OpenDB(t)
	l := testutil.NewLawyer(t, db, "Direito Civil")
	app := newTestApp(db, l.ID, models.RoleLawyer)

	path := "/api/v1/lawyers/" + l.ID.String() + "/online-status"

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"isOnline":false}`))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := testutil.Reload[models.Lawyer](t, db, l.ID)
	assert.False(t, got.IsOnline)

	// missing field
	req = httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// someone else's profile
	other := testutil.NewLawyer(t, db, "Direito Civil")
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/lawyers/"+other.ID.String()+"/online-status", strings.NewReader(`{"isOnline":false}`))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.True(t, testutil.Reload[models.Lawyer](t, db, other.ID).IsOnline)
}

func TestList_MinRating(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.NewLawyer(t, db, "Direito Civil", testutil.WithRating(3.9))
	top := testutil.NewLawyer(t, db, "Direito Civil", testutil.WithRating(4.5))
	app := newTestApp(db, uuid.New(), models.RoleClient)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers?min_rating=4", nil))
	require.NoError(t, err)

	var page models.Page[LawyerResponse]
	testutil.DecodeJSON(t, res, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, top.ID, page.Items[0].ID)
}

func TestAdminOnboardingAndVerification(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.NewAdmin(t, db)
	app := newTestApp(db, admin.ID, models.RoleAdmin)

	body := `{"fullName":"Dra. Lúcia Nhantumbo","specialty":"Direito Comercial","oamNumber":"oam-98765",
		"professionalEmail":"Lucia@Adv.mz","professionalPhone":"+258 84 555 5555","password":"segredo1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/lawyers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created LawyerResponse
	testutil.DecodeJSON(t, res, &created)
	assert.Equal(t, "OAM-98765", created.OAMNumber)
	assert.EqualValues(t, "pending_verification", created.VerificationStatus)

	// same OAM again
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/lawyers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	req = httptest.NewRequest(http.MethodPatch, "/api/v1/admin/lawyers/"+created.ID.String()+"/verification", strings.NewReader(`{"status":"verified"}`))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := testutil.Reload[models.Lawyer](t, db, created.ID)
	assert.True(t, got.Eligible())

	verify := func(status string) int {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/lawyers/"+created.ID.String()+"/verification", strings.NewReader(`{"status":"`+status+`"}`))
		req.Header.Set("Content-Type", "application/json")
		res, err := app.Test(req)
		require.NoError(t, err)
		return res.StatusCode
	}
	assert.Equal(t, http.StatusBadRequest, verify("pending"))
	assert.Equal(t, http.StatusOK, verify("pending_verification"))
	got = testutil.Reload[models.Lawyer](t, db, created.ID)
	assert.Equal(t, models.VerificationPending, got.VerificationStatus)
	assert.False(t, got.Eligible())
}

func TestCreate_RejectsBadOAM(t *testing.T) {
	db := testutil.OpenDB(t)
	app := newTestApp(db, uuid.New(), models.RoleAdmin)

	body := `{"fullName":"X Y","specialty":"Civil","oamNumber":"12345","professionalEmail":"x@adv.mz","password":"segredo1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/lawyers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	var out models.ValidationErrorResponse
	testutil.DecodeJSON(t, res, &out)
	assert.Contains(t, out.Errors, "oamNumber")
}

func TestGet_NotFound(t *testing.T) {
	db := testutil.OpenDB(t)
	app := newTestApp(db, uuid.New(), models.RoleClient)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/lawyers/"+uuid.NewString(), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	var out models.ErrorResponse
	testutil.DecodeJSON(t, res, &out)
	assert.Equal(t, "LAWYER_NOT_FOUND", out.Code)
}
