// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/database"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// Password is the plain password of every seeded account.
const Password = "secret123"

/* ============================================================================
   Database
   ============================================================================ */

// OpenDB returns a migrated database. TEST_DATABASE_URL selects a real
// Postgres (truncated after the test); otherwise a private in-memory SQLite.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := database.Open("postgres", dsn, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, database.Migrate(db))
		t.Cleanup(func() {
			sql := `
TRUNCATE TABLE
	order_histories,
	ratings,
	payments,
	sessions,
	assignments,
	orders,
	lawyers,
	users
RESTART IDENTITY CASCADE`
			if err := db.Exec(sql).Error; err != nil {
				t.Logf("truncate failed (ignored): %v", err)
			}
			_ = database.Close(db)
		})
		return db
	}

	db, err := database.Open("sqlite", ":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

/* ============================================================================
   Seeds
   ============================================================================ */

var passwordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// NewClient inserts an active client.
func NewClient(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	u := models.User{
		Email:        "client-" + uuid.NewString()[:8] + "@example.mz",
		PasswordHash: passwordHash,
		FullName:     "Joana Macuácua",
		Phone:        "+258 84 123 4567",
		IsActive:     true,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// NewAdmin inserts an active administrator.
func NewAdmin(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	u := models.User{
		Email:        "admin-" + uuid.NewString()[:8] + "@example.mz",
		PasswordHash: passwordHash,
		FullName:     "Admin",
		IsAdmin:      true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

type LawyerOpt func(*models.Lawyer)

func Offline(l *models.Lawyer)    { l.IsOnline = false }
func Inactive(l *models.Lawyer)   { l.IsActive = false }
func Unverified(l *models.Lawyer) { l.VerificationStatus = models.VerificationPending }

func WithRating(r float64) LawyerOpt {
	return func(l *models.Lawyer) { l.Rating = r }
}

// NewLawyer inserts an online, active, verified lawyer unless opts say otherwise.
func NewLawyer(t *testing.T, db *gorm.DB, specialty string, opts ...LawyerOpt) models.Lawyer {
	t.Helper()
	suffix := uuid.NewString()[:8]
	l := models.Lawyer{
		FullName:           "Dr. " + suffix,
		Specialty:          specialty,
		OAMNumber:          "OAM-" + suffix,
		ProfessionalEmail:  suffix + "@adv.mz",
		ProfessionalPhone:  "+258 84 000 0000",
		PasswordHash:       passwordHash,
		IsOnline:           true,
		IsActive:           true,
		VerificationStatus: models.VerificationVerified,
	}
	for _, o := range opts {
		o(&l)
	}
	require.NoError(t, db.Create(&l).Error)
	// zero values are skipped for columns with defaults; force them
	require.NoError(t, db.Model(&l).Updates(map[string]any{
		"is_online":           l.IsOnline,
		"is_active":           l.IsActive,
		"verification_status": l.VerificationStatus,
	}).Error)
	return l
}

// Topic and price used by most fixtures.
var (
	FamilyTopic = models.Topic{ID: "familia", Name: "Direito de Família"}
	Price       = decimal.NewFromInt(500)
)

// NewOrder inserts an order in the given state.
func NewOrder(t *testing.T, db *gorm.DB, clientID uuid.UUID, status models.OrderStatus, pay models.PaymentStatus) models.Order {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := models.Order{
		HumanID:          "FC-" + uuid.NewString()[:6],
		ClientID:         clientID,
		Topic:            datatypes.NewJSONType(FamilyTopic),
		Package:          datatypes.NewJSONType(models.Package{ID: "basic", Name: "Consulta Básica", Type: models.PackageStandard, Price: Price}),
		ConsultationType: models.ConsultationDigital,
		ClientPhone:      "841234567",
		Status:           status,
		PaymentStatus:    pay,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

// Bind inserts the assignment row for an order.
func Bind(t *testing.T, db *gorm.DB, orderID, lawyerID uuid.UUID) models.Assignment {
	t.Helper()
	a := models.Assignment{OrderID: orderID, LawyerID: lawyerID, AssignedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&a).Error)
	return a
}

// NewPayment inserts a ledger row.
func NewPayment(t *testing.T, db *gorm.DB, orderID uuid.UUID, txID string, status models.PayStatus) models.Payment {
	t.Helper()
	p := models.Payment{
		OrderID:       orderID,
		TransactionID: txID,
		ClientName:    "Joana Macuácua",
		PhoneNumber:   "258841234567",
		Amount:        Price,
		Method:        models.MethodMpesa,
		Status:        status,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Reload reads the current row of dest by primary key.
func Reload[T any](t *testing.T, db *gorm.DB, id uuid.UUID) T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, "id = ?", id).Error)
	return v
}

/* ============================================================================
   HTTP
   ============================================================================ */

// InjectAuth puts the auth locals into Fiber context, bypassing JWT.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

// DecodeJSON reads the response body into v.
func DecodeJSON(t *testing.T, res *http.Response, v any) {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}
