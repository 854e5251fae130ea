package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kanbo/internal/config"
	"kanbo/internal/models"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	err = db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.Space{},
		&models.List{},
		&models.Stage{},
		&models.ListField{},
		&models.ListMember{},
		&models.Card{},
		&models.CardComment{},
		&models.Automation{},
		&models.AutomationStep{},
		&models.AutomationLocation{},
		&models.AutomationRun{},
		&models.AutomationStepRun{},
		&models.AutomationJob{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")

	// 卡片按列表/阶段查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_cards_list_stage ON cards(list_id, stage_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_cards_assignee ON cards(assignee_id)")

	// 派发器按位置找自动化
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_locations_location ON automation_locations(location_type, location_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_locations_automation ON automation_locations(automation_id)")

	// 队列认领：按状态加创建时间扫描
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_jobs_status_created ON automation_jobs(status, created_at)")

	// 运行账本按自动化查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_runs_automation_started ON automation_runs(automation_id, started_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_step_runs_run ON automation_step_runs(run_id, order_index)")

	log.Println("Index creation completed!")
}
