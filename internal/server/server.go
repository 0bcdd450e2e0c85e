// Package server contains the HTTP handlers for the authorization API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"atrium/internal/clock"
	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/notifications"
	"atrium/internal/otp"
	"atrium/internal/repository"
	"atrium/internal/service"
	"atrium/internal/sms"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("atrium-api")
	})
	return prom
}

// Deps are the already-initialized collaborators a Server is built from.
// OTPStore, Sender, Clock and Random fall back to runtime defaults when nil.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	OTPStore otp.Store
	Sender   sms.Sender
	Clock    clock.Clock
	Random   clock.RandomSource
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	otpStore       otp.Store
	userRepo       repository.UserRepository
	credRepo       repository.CredentialRepository
	requestRepo    repository.AccessRequestRepository
	notifier       *notifications.Notifier
	ledger         *service.CredentialLedger
	otpService     *service.OTPService
	authService    *service.AuthService
	requestService *service.AccessRequestService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// The bootstrap layer establishes DB/Redis; tests inject their own.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}

	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Random == nil {
		deps.Random = clock.CryptoRandom{}
	}
	if deps.OTPStore == nil {
		if deps.Redis != nil {
			deps.OTPStore = otp.NewRedisStore(deps.Redis)
		} else {
			deps.OTPStore = otp.NewMemoryStore()
		}
	}
	if deps.Sender == nil {
		if cfg.SMSGatewayURL != "" {
			deps.Sender = sms.NewHTTPGateway(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderID)
		} else {
			deps.Sender = sms.LogGateway{}
		}
	}

	hasher, err := otp.NewHasher(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("derive otp key: %w", err)
	}

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: httpMetrics(),
		otpStore:       deps.OTPStore,
		userRepo:       repository.NewUserRepository(deps.DB),
		credRepo:       repository.NewCredentialRepository(deps.DB),
		requestRepo:    repository.NewAccessRequestRepository(deps.DB),
	}

	var publisher service.DecisionPublisher
	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
		publisher = s.notifier
	}

	s.ledger = service.NewCredentialLedger(s.credRepo, s.userRepo, deps.Clock, service.LedgerConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})
	s.otpService = service.NewOTPService(deps.OTPStore, deps.Sender, hasher, deps.Clock, deps.Random, service.OTPConfig{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	s.authService = service.NewAuthService(s.otpService, s.ledger, s.userRepo)
	s.requestService = service.NewAccessRequestService(s.requestRepo, s.userRepo, publisher, deps.Clock)

	return s, nil
}

// Ledger exposes the credential ledger for background maintenance.
func (s *Server) Ledger() *service.CredentialLedger {
	return s.ledger
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected browser requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

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

	// Every request passes the gate; routes opt into enforcement below.
	app.Use(middleware.Authenticate(s.ledger))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", middleware.RequireRole(models.RoleAdmin), monitor.New(monitor.Config{
		Title: "Atrium Metrics Dashboard",
	}))

	auth := api.Group("/auth")
	auth.Post("/otp", middleware.RateLimit(s.redis, 10, 15*time.Minute, "otp_issue", middleware.FailOpen), s.RequestOTP)
	auth.Post("/otp/resend", middleware.RateLimit(s.redis, 10, 15*time.Minute, "otp_issue", middleware.FailOpen), s.ResendOTP)
	auth.Post("/otp/verify", middleware.RateLimit(s.redis, 20, 15*time.Minute, "otp_verify", middleware.FailOpen), s.VerifyOTP)
	auth.Post("/logout", middleware.RequireAuth(), s.Logout)
	auth.Get("/me", middleware.RequireAuth(), s.Me)

	api.Post("/projects/:projectId/access-requests", middleware.RequireAuth(),
		middleware.RateLimit(s.redis, 10, time.Minute, "create_access_request", middleware.FailOpen),
		s.CreateAccessRequest)

	reviewers := middleware.RequireRole(models.RoleProjectManager, models.RoleAdmin)
	requests := api.Group("/access-requests")
	// Specific routes before the generic /:id routes.
	requests.Get("/mine", middleware.RequireAuth(), s.GetMyAccessRequests)
	requests.Get("/pending", reviewers, s.GetPendingAccessRequests)
	requests.Get("/unread", reviewers, s.GetUnreadAccessRequests)
	requests.Post("/:id/decision", reviewers, s.DecideAccessRequest)
	requests.Post("/:id/acknowledge", reviewers, s.AcknowledgeAccessRequest)
	requests.Delete("/:id", middleware.RequireAuth(), s.WithdrawAccessRequest)
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
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: the OTP store falls back to memory without it.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
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

// NewApp builds the fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Atrium API",
		BodyLimit: 64 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start runs background maintenance and serves HTTP until the app is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	go s.ledger.RunSweeper(ctx, s.config.CredentialSweepInterval)
	if mem, ok := s.otpStore.(*otp.MemoryStore); ok {
		go sweepChallenges(ctx, mem, time.Minute)
	}
	if s.notifier != nil {
		go func() {
			err := s.notifier.StartPatternSubscriber(ctx, func(channel, payload string) {
				middleware.Logger.Debug("notification published",
					slog.String("channel", channel), slog.Int("bytes", len(payload)))
			})
			if err != nil {
				middleware.Logger.Warn("notification subscriber failed", slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port), slog.String("env", s.config.Env))
	return s.app.Listen(":" + s.config.Port)
}

func sweepChallenges(ctx context.Context, store *otp.MemoryStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Sweep(now); n > 0 {
				middleware.Logger.Debug("otp challenges swept",
					slog.Int("count", n), slog.Int("phones", store.Len()))
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
