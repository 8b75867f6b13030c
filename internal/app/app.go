package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hangouthub/server/internal/module/collaboration"
	"github.com/hangouthub/server/internal/module/hangout"
	"github.com/hangouthub/server/internal/module/notification"
	"github.com/hangouthub/server/internal/module/user"
	"github.com/hangouthub/server/internal/module/webhook"
	"github.com/hangouthub/server/internal/module/workflow"
	"github.com/hangouthub/server/internal/shared/auth"
	"github.com/hangouthub/server/internal/shared/cache"
	"github.com/hangouthub/server/internal/shared/config"
	"github.com/hangouthub/server/internal/shared/database"
	"github.com/hangouthub/server/internal/shared/events"
	"github.com/hangouthub/server/internal/shared/logger"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/metrics"
	"github.com/hangouthub/server/internal/utils/middleware"
)

// App wires the modules together.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	eventBus *events.Bus
	metrics  *metrics.Metrics
	reporter monitoring.Reporter
	engine   *workflow.Engine

	hangoutHandler *hangout.Handler
	collabHandler  *collaboration.Handler
	userHandler    *user.Handler
	webhookHandler *webhook.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config: cfg,
		logger: log,
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := db.AutoMigrate(
		&user.User{},
		&hangout.Hangout{},
		&hangout.Suggestion{},
		&collaboration.Collaborator{},
		&collaboration.Invitation{},
		&workflow.WorkflowRun{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Redis is optional; without it webhook dedup degrades to reprocessing
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, continuing without dedup", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	app.metrics = metrics.New("hangouthub")
	app.reporter = monitoring.NewLogReporter(log, "hangouthub")
	app.eventBus = events.NewBus(log)

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()

	// Re-dispatch runs interrupted by the previous shutdown
	if err := app.engine.RecoverRunning(context.Background()); err != nil {
		log.Warn("workflow recovery failed", zap.Error(err))
	}

	return app, nil
}

// initModules builds repositories, services, workflows and handlers.
func (a *App) initModules() error {
	cfg := a.config

	// Workflow engine
	workflowRepo := workflow.NewRepository(a.db)
	a.engine = workflow.NewEngine(workflowRepo, &workflow.EngineConfig{
		MaxConcurrent: cfg.Workflow.MaxConcurrent,
		DefaultRetry: workflow.RetryPolicy{
			MaxAttempts:        cfg.Workflow.DefaultMaxAttempts,
			InitialInterval:    cfg.Workflow.InitialInterval,
			MaxInterval:        cfg.Workflow.MaxInterval,
			BackoffCoefficient: cfg.Workflow.BackoffCoefficient,
		},
		ActivityTimeout:  cfg.Workflow.ActivityTimeout,
		ExecutionTimeout: cfg.Workflow.ExecutionTimeout,
	}, a.reporter, a.metrics, a.logger)

	// User module
	userRepo := user.NewRepository(a.db)
	userService := user.NewService(userRepo, a.logger)
	a.userHandler = user.NewHandler(userService, a.engine, a.reporter)

	// Hangout module
	hangoutRepo := hangout.NewRepository(a.db)
	hangoutService := hangout.NewService(hangoutRepo, a.logger)
	a.hangoutHandler = hangout.NewHandler(hangoutService, a.reporter)

	// Notification dispatcher behind a circuit breaker
	dispatcher := notification.NewBreakerDispatcher(
		notification.NewLogDispatcher(a.logger),
		cfg.Notification.FailureThreshold,
		cfg.Notification.CircuitTimeout,
	)

	// Collaboration module
	collabRepo := collaboration.NewRepository(a.db)
	collabService := collaboration.NewService(collabRepo, hangoutRepo, a.engine, a.reporter, a.logger)
	a.collabHandler = collaboration.NewHandler(collabService, a.reporter)

	// Workflow definitions
	for _, def := range user.LifecycleWorkflows(userService) {
		if err := a.engine.Register(def); err != nil {
			return fmt.Errorf("register %s workflow: %w", def.Name, err)
		}
	}
	if err := a.engine.Register(user.PushTokenWorkflow(userService)); err != nil {
		return fmt.Errorf("register push-token workflow: %w", err)
	}
	accepted := collaboration.AcceptedWorkflow(collabService, userService, dispatcher, a.eventBus, a.logger)
	if err := a.engine.Register(accepted); err != nil {
		return fmt.Errorf("register invitation-accepted workflow: %w", err)
	}

	a.eventBus.Register(newAnalyticsHandler(a.logger))

	// Webhook ingress
	verifier, err := webhook.NewVerifier(cfg.Webhook.SigningSecret, cfg.Webhook.TimestampTolerance)
	if err != nil {
		return fmt.Errorf("init webhook verifier: %w", err)
	}
	a.webhookHandler = webhook.NewHandler(
		verifier, a.redis, a.engine, a.metrics, a.reporter, a.logger, cfg.Webhook.EventDedupTTL)

	return nil
}

// setupRouter creates and configures the gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	validator := auth.NewValidator(&auth.Config{
		Secret:            a.config.Auth.JWTSecret,
		AccessTokenExpiry: a.config.Auth.AccessTokenExpiry,
	})

	v1 := r.Group("/v1")
	authed := v1.Group("", middleware.RequireAuth(validator))
	public := v1.Group("", middleware.OptionalAuth(validator))

	a.hangoutHandler.RegisterRoutes(authed, public)
	a.collabHandler.RegisterRoutes(authed, public)
	a.userHandler.RegisterRoutes(authed)
	a.webhookHandler.RegisterRoutes(r)

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop shuts the application down, draining in-flight workflows.
func (a *App) Stop() {
	a.engine.Stop()

	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}

	_ = a.logger.Sync()
}
