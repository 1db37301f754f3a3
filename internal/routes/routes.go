// Package routes wires handlers, middleware and services onto the fiber app.
package routes

import (
	"time"

	"disputedesk/internal/handlers"
	"disputedesk/internal/middleware"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/repositories/cache"
	"disputedesk/internal/services/auth"
	"disputedesk/internal/services/dispute"
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/services/notification"
	"disputedesk/internal/services/resolution"
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer needs. DB and Cache may be nil.
type Deps struct {
	Store        repositories.Store
	Users        repositories.UserRepository
	Auth         auth.Service
	Engine       *resolution.Engine
	Disputes     *dispute.Service
	Ledger       ledger.Service
	Bus          notification.Bus
	DB           *gorm.DB
	Cache        *cache.CacheService
	Log          *logrus.Logger
	SecureCookie bool
}

// AppConfig configures the fiber app's cross-cutting middleware.
type AppConfig struct {
	CORSOrigins string
	AccessLog   bool
	LoginLimit  int
}

// NewApp creates the fiber app with CORS, access logging and login rate limiting.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "disputedesk",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return utils.Respond(c, fe.Code, fiber.Map{"error": fe.Message})
			}
			return utils.HandleError(c, err)
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))

	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	if cfg.LoginLimit > 0 {
		app.Use("/api/auth/login", limiter.New(limiter.Config{
			Max:        cfg.LoginLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "too many requests, please try again later",
				})
			},
		}))
	}
	return app
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, deps Deps) {
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Cache)
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.SecureCookie)
	alertHandler := handlers.NewAlertHandler(deps.Engine)
	disputeHandler := handlers.NewDisputeHandler(deps.Disputes)
	auditHandler := handlers.NewAuditHandler(deps.Store)
	walletHandler := handlers.NewWalletHandler(deps.Ledger)
	streamHandler := handlers.NewStreamHandler(deps.Bus, deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Auth, deps.Log)
	authMiddleware := middleware.NewAuthMiddleware(deps.Auth, deps.Log)

	app.Get("/health", healthHandler.HealthCheck)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authMiddleware.Handler, authHandler.Logout)

	protected := api.Group("", authMiddleware.Handler)

	setupAlertRoutes(protected, alertHandler, streamHandler)
	setupDisputeRoutes(protected, disputeHandler)

	protected.Get("/audit/:resourceType/:resourceId", middleware.HasPermission(models.PermissionAuditRead), auditHandler.ListEntries)
	protected.Get("/audit/:resourceType/:resourceId/verify", middleware.HasPermission(models.PermissionAuditRead), auditHandler.Verify)

	protected.Get("/wallets/:userId", middleware.HasPermission(models.PermissionWalletRead), walletHandler.GetWallet)

	admin := protected.Group("/admin")
	admin.Get("/users", middleware.HasPermission(models.PermissionReadAdmin), adminHandler.ListUsers)
	admin.Post("/users", middleware.HasPermission(models.PermissionWriteAdmin), adminHandler.CreateUser)
	admin.Patch("/users/:id/status", middleware.HasPermission(models.PermissionWriteAdmin), adminHandler.UpdateUserStatus)
}

func setupAlertRoutes(router fiber.Router, h *handlers.AlertHandler, stream *handlers.StreamHandler) {
	read := middleware.HasPermission(models.PermissionAlertRead)
	resolve := middleware.HasPermission(models.PermissionAlertResolve)
	ingest := middleware.HasPermission(models.PermissionAlertIngest)

	alerts := router.Group("/alerts")
	alerts.Get("/stream", read, stream.Stream)

	fraud := alerts.Group("/fraud")
	fraud.Post("/", ingest, h.IngestFraudAlert)
	fraud.Get("/", read, h.ListFraudAlerts)
	fraud.Get("/:id", read, h.GetFraudAlert)
	fraud.Post("/:id/acknowledge", resolve, h.AcknowledgeFraudAlert)
	fraud.Post("/:id/quick-action", resolve, h.QuickAction)
	fraud.Post("/:id/defer", resolve, h.DeferFraudAlert)

	pre := alerts.Group("/pre-dispute")
	pre.Post("/", ingest, h.IngestPreDisputeAlert)
	pre.Get("/", read, h.ListPreDisputeAlerts)
	pre.Get("/:id", read, h.GetPreDisputeAlert)
	pre.Post("/:id/view", resolve, h.ViewPreDisputeAlert)
	pre.Post("/:id/resolve", resolve, h.ResolvePreDisputeAlert)
	pre.Post("/:id/escalate", resolve, h.EscalatePreDisputeAlert)
}

func setupDisputeRoutes(router fiber.Router, h *handlers.DisputeHandler) {
	write := middleware.HasPermission(models.PermissionDisputeWrite)

	disputes := router.Group("/disputes")
	disputes.Post("/", write, h.FileDispute)
	disputes.Get("/", middleware.HasPermission(models.PermissionDisputeRead), h.ListDisputes)
	disputes.Get("/:id", middleware.HasPermission(models.PermissionDisputeRead), h.GetDispute)
	disputes.Post("/:id/review", write, h.StartReview)
	disputes.Post("/:id/investigate", write, h.StartInvestigation)
	disputes.Post("/:id/resolve", write, h.Resolve)
	disputes.Post("/:id/reject", write, h.Reject)
	disputes.Post("/:id/refund", middleware.HasPermission(models.PermissionDisputeRefund), h.ProcessRefund)
}
