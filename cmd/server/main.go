package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"kanbo/internal/automation"
	autohandlers "kanbo/internal/automation/handlers"
	"kanbo/internal/config"
	"kanbo/internal/events"
	"kanbo/internal/handlers"
	"kanbo/internal/middleware"
	"kanbo/internal/models"
	"kanbo/internal/observability"
	"kanbo/internal/queue"
	"kanbo/internal/services"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	// 允许通过 flags/env 覆盖数据库连接（保持与 migrate 一致的接口）
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagDSN := flagSet.String("dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides other DB flags")
	dbHost := flagSet.String("db-host", getenvDefault("DB_HOST", cfg.Database.Host), "database host")
	dbPort := flagSet.String("db-port", getenvDefault("DB_PORT", fmt.Sprintf("%d", cfg.Database.Port)), "database port")
	dbUser := flagSet.String("db-user", getenvDefault("DB_USER", cfg.Database.User), "database user")
	dbPass := flagSet.String("db-pass", getenvDefault("DB_PASSWORD", cfg.Database.Password), "database password")
	dbName := flagSet.String("db-name", getenvDefault("DB_NAME", cfg.Database.Name), "database name")
	dbSSLMode := flagSet.String("db-sslmode", getenvDefault("DB_SSLMODE", "disable"), "sslmode (disable, require, verify-ca, verify-full)")
	_ = flagSet.Parse(os.Args[1:])

	dsn := *flagDSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			*dbHost, *dbUser, *dbPass, *dbName, *dbPort, *dbSSLMode)
	}

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.Workspace{}, &models.Space{}, &models.List{},
		&models.Stage{}, &models.ListField{}, &models.ListMember{},
		&models.Card{}, &models.CardComment{},
		&models.Automation{}, &models.AutomationStep{}, &models.AutomationLocation{},
		&models.AutomationRun{}, &models.AutomationStepRun{}, &models.AutomationJob{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 自动化引擎装配：注册表 → 处理器 → 派发器 → 队列 → 执行器
	registry := automation.NewRegistry()
	toolbox := automation.NewToolbox(db, appLogger)
	autohandlers.RegisterAll(registry, toolbox)

	bus := events.NewBus(appLogger)
	jobQueue := queue.NewQueue(db, appLogger)

	automationService := services.NewAutomationService(db, appLogger)
	validationService := services.NewValidationService(automationService, registry, appLogger)
	dispatcher := services.NewAutomationDispatcher(db, appLogger, automationService, validationService, registry, jobQueue)
	dispatcher.Register(bus)

	runFeed := services.NewRunFeedHub(appLogger)
	go runFeed.Run()

	executor := automation.NewExecutor(db, appLogger, registry, automationService)
	executor.SetNotifier(runFeed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := queue.NewWorker(jobQueue, executor, appLogger, queue.WorkerOptions{
		Workers:      cfg.Automation.Workers,
		PollInterval: cfg.Automation.PollInterval,
		MaxAttempts:  cfg.Automation.MaxAttempts,
		StaleRunning: cfg.Automation.StaleRunning,
	})
	worker.Start(ctx)

	// 业务服务
	cardService := services.NewCardService(db, appLogger, bus)
	listService := services.NewListService(db, appLogger)
	workspaceService := services.NewWorkspaceService(db, appLogger)

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	healthHandler := handlers.NewHealthHandler(db, jobQueue, runFeed, appLogger)
	r.GET("/health", healthHandler.Health)
	if cfg.Monitoring.Enabled {
		metricsPath := cfg.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, healthHandler.Metrics)
	}

	// API 路由组（全部接口先做鉴权）
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))

	handlers.RegisterWorkspaceRoutes(api, handlers.NewWorkspaceHandler(workspaceService, appLogger))
	handlers.RegisterListRoutes(api, handlers.NewListHandler(listService, appLogger))
	handlers.RegisterCardRoutes(api, handlers.NewCardHandler(cardService, appLogger))

	automationAPI := api.Group("/")
	automationAPI.Use(middleware.RequireRolesAny("admin", "owner"))
	handlers.RegisterAutomationRoutes(automationAPI, handlers.NewAutomationHandler(automationService, validationService, registry, appLogger))

	// 实时运行状态推送
	api.GET("/automation-runs/feed", runFeed.HandleWebSocket)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	go func() {
		appLogger.Infof("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server error: %v", err)
		}
	}()

	// 优雅退出：先停 HTTP，再停 worker
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Server shutdown: %v", err)
	}
	cancel()
	appLogger.Info("Server exited")
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
