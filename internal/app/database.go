package app

import (
	"context"
	"fmt"
	"strings"

	"supportdesk/internal/config"
	"supportdesk/internal/models"
	"supportdesk/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

// compositeIndexes 解析器与时间线查询依赖的复合索引
var compositeIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_incidences_conversation_created ON incidences(conversation_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_incidences_user_created ON incidences(user_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_incidences_outcome_created ON incidences(outcome, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_incidence_timelines_incidence_created ON incidence_timelines(incidence_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_friction_signals_user_created ON friction_signals(user_id, created_at)",
}

// OpenDatabase 连接 Postgres 并按配置设置连接池；启用追踪时挂载 gorm otel 插件
func OpenDatabase(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if strings.EqualFold(cfg.Log.Level, "debug") {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.ConnString()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			log.Warnf("Failed to enable database tracing: %v", err)
		}
	}
	log.Infof("Connected to database %s on %s:%d", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	return db, nil
}

// Migrate 自动迁移模型并创建附加索引
func Migrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Starting database migration...")
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Creating additional indexes...")
	for _, stmt := range compositeIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	log.Info("Database migration completed")
	return nil
}

// Seed 写入演示数据；已有数据时跳过
func Seed(ctx context.Context, db *gorm.DB, log *logrus.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Incidence{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count incidences: %w", err)
	}
	if count > 0 {
		log.Infof("Skipping seed, %d incidences already exist", count)
		return nil
	}

	svc := services.NewIncidenceService(db, log)
	demo := []services.IncidenceCreateRequest{
		{UserID: "demo-user-1", AppScreen: "checkout", CartValue: 32000, GuestCount: 200, EventType: "WEDDING", FrictionScore: 70},
		{UserID: "demo-user-2", AppScreen: "menu", CartValue: 8000, GuestCount: 40, EventType: "BIRTHDAY", FrictionScore: 35},
		{UserID: "demo-user-3", OrderID: "ORD-1001", AppScreen: "order_tracking", CartValue: 15000, GuestCount: 80},
	}
	// 演示数据预先绑定会话，避免被真实聊天按时间窗口认领
	for i := range demo {
		inc, err := svc.CreateBound(ctx, &demo[i], fmt.Sprintf("demo-conversation-%d", i+1))
		if err != nil {
			return err
		}
		log.Infof("Seeded incidence %s for %s", inc.ID, inc.UserID)
	}
	return nil
}
