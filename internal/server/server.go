// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	_ "soundcheck/docs" // swagger docs
	"soundcheck/internal/config"
	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/notifications"
	"soundcheck/internal/repository"
	"soundcheck/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/swagger"
	"github.com/gofiber/template/django/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *session.Store
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	authorRepo  repository.AuthorRepository
	requestRepo repository.RegistrationRequestRepository

	mailer   notifications.Mailer
	notifier *notifications.Notifier
	adminHub *notifications.AdminHub
	hubs     []wireableHub

	registrationService *service.RegistrationService
	userService         *service.UserService
}

// NewServerWithDeps builds the server around an open database and an
// optional Redis client.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	mailer, err := notifications.NewMailer(cfg)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("soundcheck-api"),
		sessions: session.New(session.Config{
			Expiration:     30 * time.Minute,
			CookieHTTPOnly: true,
			CookieSameSite: "Lax",
			CookieSecure:   cfg.IsProduction(),
		}),
		userRepo:    repository.NewUserRepository(db),
		authorRepo:  repository.NewAuthorRepository(db),
		requestRepo: repository.NewRegistrationRequestRepository(db),
		mailer:      mailer,
		notifier:    notifications.NewNotifier(redisClient),
		adminHub:    notifications.NewAdminHub(),
	}
	server.hubs = []wireableHub{server.adminHub}

	server.userService = service.NewUserService(server.userRepo, server.authorRepo)
	server.registrationService = service.NewRegistrationService(
		db,
		server.requestRepo,
		server.userRepo,
		server.authorRepo,
		mailer,
		notifications.NewAdminPublisher(server.notifier, server.adminHub),
		service.RegistrationConfig{
			AdminRecipients: cfg.AdminRecipients(),
			BaseURL:         cfg.BaseURL,
			MailTimeout:     cfg.MailSendTimeout(),
		},
	)

	return server, nil
}

// App builds the Fiber application on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}
	engine := django.NewFileSystem(http.FS(views), ".django")

	app := fiber.New(fiber.Config{
		AppName:   "Soundcheck API",
		BodyLimit: 1 * 1024 * 1024,
		Views:     engine,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before anything that can short-circuit so error
	// responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/refresh", s.AuthRequired(), s.Refresh)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public author application
	registration := api.Group("/registration")
	registration.Post("/author-request", middleware.RateLimit(
		s.redis, 5, time.Hour, "author_request"), s.SubmitAuthorRequest)

	// Admin event feed; registered before the protected group so the
	// console cookie is accepted.
	api.Get("/ws/admin", s.ConsoleAuthRequired(), s.AdminRequired(), s.AdminFeedHandler())

	protected := api.Group("", s.AuthRequired())
	protected.Get("/users/me", s.GetMyProfile)

	// Admin JSON API
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Soundcheck Metrics Dashboard",
	}))
	requests := admin.Group("/registration-requests")
	requests.Get("/", s.ListRegistrationRequests)
	// Specific routes before the generic /:id route
	requests.Get("/stats", s.GetRegistrationStats)
	requests.Post("/:id/approve", s.ApproveRegistrationRequest)
	requests.Post("/:id/reject", s.RejectRegistrationRequest)
	requests.Get("/:id", s.GetRegistrationRequest)

	// Admin console (HTML)
	console := app.Group("/admin", s.ConsoleAuthRequired(), s.AdminRequired())
	console.Get("/registration-requests", s.ConsoleRegistrationRequests)
	console.Post("/registration-requests/:id/approve", s.ConsoleApprove)
	console.Post("/registration-requests/:id/reject", s.ConsoleReject)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis carries rate limits, token revocation and the admin feed.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier.Enabled() {
		for _, h := range s.hubs {
			if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", h.Name()), slog.String("error", err.Error()))
			}
		}
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			middleware.Logger.Warn("error shutting down hub",
				slog.String("hub", h.Name()), slog.String("error", err.Error()))
		}
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Warn("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Warn("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Warn("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
