package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/checkout"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/analytics"
	sharedcache "github.com/storefront/server/internal/shared/cache"
	"github.com/storefront/server/internal/shared/config"
	"github.com/storefront/server/internal/shared/database"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/shared/metrics"
	"github.com/storefront/server/internal/shared/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App represents the application.
type App struct {
	config   *config.Config
	db       *gorm.DB
	redis    redis.UniversalClient
	router   *gin.Engine
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Modules
	cartHandler     *cart.Handler
	orderHandler    *order.Handler
	paymentHandler  *payment.Handler
	checkoutHandler *checkout.Handler

	// Services (for cross-module dependencies)
	cartService     *cart.Service
	orderService    *order.Service
	providers       *payment.ProviderRegistry
	tracker         *analytics.Tracker
	checkoutManager *checkout.Manager

	cancel context.CancelFunc
	done   chan struct{}
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

	if cfg.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.metrics = metrics.New(cfg.Metrics.Namespace, app.registry)
	}

	// Initialize database (optional)
	if cfg.Database.Enabled() {
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		app.db = db
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db, &order.Order{}); err != nil {
				return nil, err
			}
		}
	} else {
		log.Warn("database not configured, orders are kept in memory")
	}

	// Initialize Redis (optional)
	redisClient, err := sharedcache.NewRedisClient(context.Background(), &cfg.Redis)
	if err != nil {
		// Redis is optional, log warning but continue
		log.Warn("redis connection failed, using in-memory stores", zap.Error(err))
	} else if redisClient != nil {
		app.redis = redisClient
	}

	app.router = app.setupRouter()

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}
	app.registerRoutes()

	return app, nil
}

// setupRouter creates and configures the Gin router.
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
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(a.config.CORS.AllowOrigins))

	r.GET("/health", a.health)
	if a.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})))
	}

	return r
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	a.initCartModule()
	a.initOrderModule()

	if err := a.initPaymentModule(); err != nil {
		return fmt.Errorf("init payment module: %w", err)
	}
	if err := a.initCheckoutModule(); err != nil {
		return fmt.Errorf("init checkout module: %w", err)
	}
	return nil
}

// initCartModule initializes the cart module.
func (a *App) initCartModule() {
	var store cart.Store
	if a.redis != nil {
		store = cart.NewRedisStore(a.redis, a.config.Checkout.CartTTL)
	} else {
		store = cart.NewMemoryStore()
	}
	a.cartService = cart.NewService(store, a.logger)
	a.cartHandler = cart.NewHandler(a.cartService, a.logger)
}

// initOrderModule initializes the order module.
func (a *App) initOrderModule() {
	var repo order.Repository
	if a.db != nil {
		repo = order.NewRepository(a.db)
	} else {
		repo = order.NewMemoryRepository()
	}
	a.orderService = order.NewService(repo, a.metrics, a.logger)
	a.orderHandler = order.NewHandler(a.orderService, a.logger)
}

// initPaymentModule initializes the provider registry and analytics.
func (a *App) initPaymentModule() error {
	registry, err := buildProviderRegistry(a.config, a.metrics, a.logger)
	if err != nil {
		return err
	}
	a.providers = registry

	var store analytics.Store
	if a.redis != nil {
		store = analytics.NewRedisStore(a.redis, a.config.Payment.AnalyticsKey)
	} else {
		store = analytics.NewMemoryStore()
	}
	a.tracker = analytics.NewTracker(store, a.metrics, a.logger)

	a.paymentHandler = payment.NewHandler(registry, a.tracker, a.logger)

	a.logger.Info("payment providers registered",
		zap.Strings("providers", registry.List()),
		zap.Bool("sandbox", a.config.Payment.Sandbox),
	)
	return nil
}

// initCheckoutModule initializes checkout sessions.
func (a *App) initCheckoutModule() error {
	pricing, err := checkout.NewPricing(&a.config.Checkout)
	if err != nil {
		return fmt.Errorf("create pricing: %w", err)
	}

	a.checkoutManager = checkout.NewManager(
		checkout.ManagerConfig{
			SessionTTL:          a.config.Checkout.SessionTTL,
			SweepInterval:       a.config.Checkout.SweepInterval,
			Sandbox:             a.config.Payment.Sandbox,
			Currency:            a.config.Payment.DefaultCurrency,
			DefaultProvider:     a.config.Payment.DefaultProvider,
			NotificationBacklog: a.config.Payment.NotificationBacklog,
			Poller: payment.PollerConfig{
				Interval:     a.config.Payment.PollInterval,
				SlowInterval: a.config.Payment.PollSlowInterval,
				SlowAfter:    a.config.Payment.PollSlowAfter,
				MaxAttempts:  a.config.Payment.PollMaxAttempts,
			},
		},
		checkout.Dependencies{
			Registry: a.providers,
			Recorder: a.tracker,
			Pricing:  pricing,
			Carts:    a.cartService,
			Orders:   a.orderService,
			Metrics:  a.metrics,
			Logger:   a.logger,
		},
	)
	a.checkoutHandler = checkout.NewHandler(a.checkoutManager, a.logger)
	return nil
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	var validator *middleware.TokenValidator
	if a.config.Auth.JWTSecret != "" {
		validator = middleware.NewTokenValidator(a.config.Auth.JWTSecret, a.config.Auth.Issuer, a.config.Auth.Audience)
	} else {
		a.logger.Warn("auth secret not configured, every request is a guest")
	}

	// Public routes accept guests and pick up the user when a token is sent.
	v1 := a.router.Group("/api/v1")
	v1.Use(middleware.OptionalAuth(validator))

	// Protected routes (requires auth)
	protectedRouter := a.router.Group("/api/v1")
	protectedRouter.Use(middleware.RequireAuth(validator))

	a.cartHandler.RegisterRoutes(v1)
	a.orderHandler.RegisterRoutes(v1)
	a.paymentHandler.RegisterRoutes(v1)
	var limiter middleware.Limiter
	if a.redis != nil {
		limiter = middleware.NewRedisLimiter(a.redis, "storefront:ratelimit")
	} else {
		limiter = middleware.NewMemoryLimiter()
	}
	checkoutRouter := v1.Group("", middleware.RateLimit(limiter, middleware.RateLimitConfig{
		Limit:   a.config.RateLimit.Requests,
		Window:  a.config.RateLimit.Window,
		KeyFunc: middleware.RateLimitByUser,
	}, a.logger))
	a.checkoutHandler.RegisterRoutes(checkoutRouter)

	a.orderHandler.RegisterProtectedRoutes(protectedRouter)
}

func (a *App) health(c *gin.Context) {
	status := gin.H{"status": "ok", "sandbox": a.config.Payment.Sandbox}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if a.db != nil {
		if err := database.Ping(ctx, a.db); err != nil {
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	c.JSON(code, status)
}

// Start runs background work until Stop is called.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.checkoutManager.Run(ctx)
	}()
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	if a.checkoutManager != nil {
		a.checkoutManager.Shutdown()
	}

	if a.redis != nil {
		_ = sharedcache.Close(a.redis)
	}

	if a.db != nil {
		_ = database.Close(a.db)
	}

	_ = a.logger.Sync()
}
