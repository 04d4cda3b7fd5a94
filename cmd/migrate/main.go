package main

import (
	"context"
	"os"

	"supportdesk/internal/app"
	"supportdesk/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := config.SetupViper(""); err != nil {
		logrus.Warnf("read config: %v", err)
	}
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	log := logrus.StandardLogger()

	db, err := app.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	log.Info("Starting database migration...")
	if err := app.Migrate(db, log); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 插入演示数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		if err := app.Seed(context.Background(), db, log); err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
	}
	log.Info("Migration process completed!")
}
