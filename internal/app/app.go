package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"supportdesk/internal/cache"
	"supportdesk/internal/config"
	"supportdesk/internal/handlers"
	"supportdesk/internal/integration"
	"supportdesk/internal/metrics"
	"supportdesk/internal/middleware"
	"supportdesk/internal/observability"
	"supportdesk/internal/services"
	"supportdesk/pkg/freshchat"
	"supportdesk/pkg/freshdesk"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// Options 可替换的依赖（测试用）
type Options struct {
	// DB 非空时不再连接 Postgres
	DB *gorm.DB
	// Registerer 为空时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
	Logger     *logrus.Logger
}

// App 组装好的服务进程
type App struct {
	cfg     *config.Config
	version string
	logger  *logrus.Logger

	db     *gorm.DB
	redis  *redis.Client
	cache  cache.Provider
	bus    integration.Bus
	worker *integration.Worker
	hub    *services.TimelineHub
	router *gin.Engine

	shutdownTracing observability.ShutdownFunc
}

// New 初始化存储、缓存、集成总线、服务与路由
func New(ctx context.Context, cfg *config.Config, version string, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{cfg: cfg, version: version, logger: log}

	if cfg.Monitoring.Tracing.Enabled {
		shutdown, err := observability.SetupTracing(ctx, cfg.Monitoring.Tracing, version)
		if err != nil {
			log.Warnf("init tracing: %v", err)
		} else {
			a.shutdownTracing = shutdown
		}
	}

	a.db = opts.DB
	if a.db == nil {
		db, err := OpenDatabase(cfg, log)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	if cfg.Database.AutoMigrate {
		if err := Migrate(a.db, log); err != nil {
			return nil, err
		}
	}

	a.cache = cache.NewMemoryProvider()
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(cfg.Redis, log)
		if err != nil {
			log.Warnf("Redis unavailable, falling back to in-memory cache: %v", err)
		} else {
			a.redis = rdb
			a.cache = cache.NewRedisProvider(rdb, log)
		}
	}

	bus, err := integration.NewBus(ctx, cfg.Integration, a.redis, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create integration bus: %w", err)
	}
	a.bus = bus
	a.worker = newWorker(cfg, log)

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a.hub = services.NewTimelineHub(log)
	a.router = a.buildRouter()
	return a, nil
}

func newWorker(cfg *config.Config, log *logrus.Logger) *integration.Worker {
	opts := integration.WorkerOptions{
		ChatBreaker:         integration.NewBreaker("freshchat", cfg.CircuitBreaker),
		DeskBreaker:         integration.NewBreaker("freshdesk", cfg.CircuitBreaker),
		FallbackEmailDomain: cfg.Freshdesk.FallbackEmailDomain,
		HelpThreshold:       cfg.Friction.HelpThreshold,
		Logger:              log,
	}
	if cfg.Freshchat.Enabled {
		fc := freshchat.DefaultConfig()
		fc.BaseURL = cfg.Freshchat.BaseURL
		fc.APIKey = cfg.Freshchat.APIKey
		if cfg.Freshchat.Timeout > 0 {
			fc.Timeout = cfg.Freshchat.Timeout
		}
		fc.MaxRetries = cfg.Freshchat.MaxRetries
		opts.Chat = freshchat.NewClient(fc, log)
	} else {
		log.Info("Freshchat integration disabled")
	}
	if cfg.Freshdesk.Enabled {
		fd := freshdesk.DefaultConfig()
		fd.Domain = cfg.Freshdesk.Domain
		fd.BaseURL = cfg.Freshdesk.BaseURL
		fd.APIKey = cfg.Freshdesk.APIKey
		if cfg.Freshdesk.Timeout > 0 {
			fd.Timeout = cfg.Freshdesk.Timeout
		}
		fd.MaxRetries = cfg.Freshdesk.MaxRetries
		opts.Desk = freshdesk.NewClient(fd, log)
	} else {
		log.Info("Freshdesk integration disabled")
	}
	return integration.NewWorker(opts)
}

func (a *App) buildRouter() *gin.Engine {
	cfg, log := a.cfg, a.logger

	incidences := services.NewIncidenceService(a.db, log)
	incidences.SetNotifier(a.hub)
	resolver := services.NewConversationResolver(incidences, cfg.Resolver, log)
	dedup := services.NewMessageDeduper(a.cache, cfg.Context.WebhookDedupTTL)
	dispatcher := services.NewEventDispatcher(incidences, resolver, dedup, a.bus, log)
	scorer := services.NewFrictionScorer(cfg.Friction)
	contextService := services.NewContextService(a.cache, a.db, cfg.Context, log)
	analytics := services.NewAnalyticsService(a.db, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(cfg.Security.CORS))
	}
	if cfg.Monitoring.Tracing.Enabled {
		name := cfg.Monitoring.Tracing.ServiceName
		if name == "" {
			name = "supportdesk"
		}
		router.Use(otelgin.Middleware(name))
	}
	if cfg.Security.RateLimiting.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.Security.RateLimiting).Middleware())
		log.Info("Rate limiting enabled")
	}

	health := handlers.NewHealthHandler(cfg, a.db, a.redis, a.worker.Breakers(), a.version, log)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	if cfg.Monitoring.Enabled && cfg.Monitoring.MetricsPath != "" {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		handlers.RegisterWebhookRoutes(api, handlers.NewWebhookHandler(dispatcher, log))
		handlers.RegisterIncidenceRoutes(api, handlers.NewIncidenceHandler(incidences, log))
		handlers.RegisterChannelRoutes(api, handlers.NewChannelHandler(services.NewChannelRouter(cfg.Routing)))
		handlers.RegisterFrictionRoutes(api, handlers.NewFrictionHandler(scorer))
		handlers.RegisterContextRoutes(api, handlers.NewContextHandler(contextService, scorer, log))
		handlers.RegisterCallRoutes(api, handlers.NewCallHandler(incidences, log))
		handlers.RegisterMessageRoutes(api, handlers.NewMessageHandler(a.worker, incidences, log))
		handlers.RegisterAnalyticsRoutes(api, handlers.NewAnalyticsHandler(analytics, log))
		handlers.RegisterFreshdeskRoutes(api, handlers.NewFreshdeskHandler(a.worker, incidences, log))

		// 坐席控制台实时时间线
		api.GET("/ws/incidences", a.hub.HandleWebSocket)
	}
	return router
}

// Handler HTTP 入口
func (a *App) Handler() http.Handler {
	return a.router
}

// Run 启动后台任务与 HTTP 服务，直到 ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)

	workerDone := make(chan error, 1)
	go func() { workerDone <- a.worker.Run(ctx, a.bus) }()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      a.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorf("Server forced to shutdown: %v", err)
	}

	cancel()
	if err := <-workerDone; err != nil {
		a.logger.Errorf("Integration worker stopped with error: %v", err)
	}
	a.Close(shutdownCtx)
	a.logger.Info("Server exited")
	return runErr
}

// Close 释放总线、缓存、数据库与追踪资源
func (a *App) Close(ctx context.Context) {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warnf("close integration bus: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warnf("close redis: %v", err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warnf("shutdown tracing: %v", err)
		}
	}
}
