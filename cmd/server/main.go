package main

import (
	"context"
	"os/signal"
	"syscall"

	"supportdesk/internal/app"
	"supportdesk/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	if err := config.SetupViper(""); err != nil {
		logrus.Warnf("read config: %v", err)
	}
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, version, app.Options{Logger: appLogger})
	if err != nil {
		appLogger.Fatalf("Failed to initialize: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		appLogger.Fatalf("Server stopped: %v", err)
	}
}
