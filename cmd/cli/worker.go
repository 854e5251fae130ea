package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kanbo/internal/automation"
	autohandlers "kanbo/internal/automation/handlers"
	"kanbo/internal/config"
	"kanbo/internal/queue"
	"kanbo/internal/services"
)

var flagDSN string

// workerCmd runs the automation job worker without the HTTP server. Useful
// for scaling execution separately from the API tier; the queue table is the
// only coordination point.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the automation job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			logrus.Warnf("init logger: %v", err)
		}
		appLogger := logrus.StandardLogger()

		dsn := flagDSN
		if dsn == "" {
			dsn = os.Getenv("DB_DSN")
		}
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
				cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
		}

		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		registry := automation.NewRegistry()
		toolbox := automation.NewToolbox(db, appLogger)
		autohandlers.RegisterAll(registry, toolbox)

		automationService := services.NewAutomationService(db, appLogger)
		executor := automation.NewExecutor(db, appLogger, registry, automationService)

		jobQueue := queue.NewQueue(db, appLogger)
		worker := queue.NewWorker(jobQueue, executor, appLogger, queue.WorkerOptions{
			Workers:      cfg.Automation.Workers,
			PollInterval: cfg.Automation.PollInterval,
			MaxAttempts:  cfg.Automation.MaxAttempts,
			StaleRunning: cfg.Automation.StaleRunning,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		worker.Start(ctx)
		appLogger.Infof("Automation worker started with %d slots", cfg.Automation.Workers)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLogger.Info("Worker shutting down")
		cancel()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&flagDSN, "dsn", "", "Postgres DSN (overrides config)")
}
