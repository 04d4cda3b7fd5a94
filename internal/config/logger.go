package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logTimestampFormat = "2006-01-02 15:04:05"

// InitLogger 初始化全局日志
func InitLogger(cfg *Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', using 'info'", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Log.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat,
		})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: logTimestampFormat,
		})
	}

	out, err := logOutput(cfg.Log)
	if err != nil {
		return err
	}
	logrus.SetOutput(out)
	logrus.SetReportCaller(true)

	logrus.Infof("Logger initialized - Level: %s, Format: %s, Output: %s",
		level, cfg.Log.Format, cfg.Log.Output)
	return nil
}

// logOutput 根据配置选择 stdout / 轮转文件 / 两者
func logOutput(lc LogConfig) (io.Writer, error) {
	output := strings.ToLower(lc.Output)
	if output != "file" && output != "both" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
		return nil, err
	}
	rotate := &lumberjack.Logger{
		Filename:   lc.FilePath,
		MaxSize:    lc.MaxSize,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAge,
		Compress:   lc.Compress,
		LocalTime:  true,
	}
	if output == "file" {
		return rotate, nil
	}
	return io.MultiWriter(os.Stdout, rotate), nil
}
