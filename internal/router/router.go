package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/internal/config"
	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/lawyers"
	"github.com/aldoetobex/falacomigo-backend/internal/orders"
	"github.com/aldoetobex/falacomigo-backend/internal/payments"
	"github.com/aldoetobex/falacomigo-backend/internal/ratings"
	"github.com/aldoetobex/falacomigo-backend/pkg/logger"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Gateway  payments.Gateway
	Events   events.Publisher
	Throttle payments.PollThrottle // optional
}

// New wires services, handlers and routes into a Fiber app.
func New(d Deps) *fiber.App {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler(d.Log),
		AppName:      "falacomigo-backend",
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins()}))
	app.Use(logger.Middleware(d.Log))

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "database": "down"})
		}
		return c.JSON(fiber.Map{"status": "ok", "database": "up"})
	})

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	requireAuth := auth.RequireAuth(tokens)

	resolver := lawyers.NewResolver(d.DB)
	orderSvc := orders.NewService(d.DB, resolver, d.Events, d.Log, orders.Policy{AutoConfirmPayment: cfg.Payments.AutoConfirm})
	ledger := payments.NewLedger(d.DB, d.Gateway, orderSvc, d.Events, d.Log, payments.Options{
		Throttle:     d.Throttle,
		PollInterval: cfg.Payments.PollInterval,
	})
	finalizer := ratings.NewFinalizer(d.DB, d.Events, d.Log)

	api := app.Group("/api/v1")

	// Auth
	authH := auth.NewHandler(d.DB, tokens)
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Get("/auth/me", requireAuth, authH.Me)

	// Lawyers (public directory + lawyer self-service)
	lawyerH := lawyers.NewHandler(d.DB)
	ratingH := ratings.NewHandler(d.DB, finalizer)
	api.Get("/lawyers", lawyerH.List)
	api.Get("/lawyers/:id", lawyerH.Get)
	api.Get("/lawyers/:id/ratings", ratingH.ListForLawyer)
	api.Patch("/lawyers/:id/online-status", requireAuth, auth.RequireRole(models.RoleLawyer), lawyerH.UpdateOnlineStatus)

	// Admin
	admin := api.Group("/admin", requireAuth, auth.RequireRole(models.RoleAdmin))
	admin.Post("/lawyers", lawyerH.Create)
	admin.Patch("/lawyers/:id/verification", lawyerH.UpdateVerification)

	// Consultations
	orderH := orders.NewHandler(orderSvc)
	cons := api.Group("/consultations", requireAuth)
	cons.Post("/", auth.RequireRole(models.RoleClient), orderH.Create)
	cons.Get("/mine", auth.RequireRole(models.RoleClient), orderH.ListMine)
	cons.Get("/assigned", auth.RequireRole(models.RoleLawyer), orderH.ListAssigned)
	cons.Get("/:id", orderH.Get)
	cons.Post("/:id/assign", auth.RequireRole(models.RoleAdmin), orderH.Assign)
	cons.Post("/:id/start", auth.RequireRole(models.RoleLawyer, models.RoleAdmin), orderH.Start)
	cons.Post("/:id/finish", auth.RequireRole(models.RoleLawyer, models.RoleAdmin), orderH.Finish)
	cons.Post("/:id/cancel", auth.RequireRole(models.RoleClient, models.RoleAdmin), orderH.Cancel)
	cons.Post("/:id/rating", auth.RequireRole(models.RoleClient), ratingH.Submit)

	// Payments
	payH := payments.NewHandler(ledger, d.Log, cfg.DevPaymentSecret)
	api.Post("/payments/mpesa/callback", payH.Callback) // provider, no auth
	api.Post("/payments/mpesa/initiate", requireAuth, auth.RequireRole(models.RoleClient, models.RoleAdmin), payH.Initiate)
	api.Get("/payments/mpesa/:transactionId/status", requireAuth, auth.RequireRole(models.RoleClient, models.RoleAdmin), payH.Status)

	// Only in dev mode with the simulated gateway
	if cfg.IsDev() && cfg.Mpesa.Simulate {
		api.Post("/payments/mpesa/simulate/complete", payH.SimulateComplete) // Protected by X-Dev-Secret
	}

	return app
}
