package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/imageflow/config"
)

// initLogger 按配置构建 zap logger。未知级别按 info 处理，
// 构建失败时回退到默认的 production logger。
func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil || level < zapcore.DebugLevel || level > zapcore.ErrorLevel {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableCaller = !cfg.EnableCaller
	zc.DisableStacktrace = true
	zc.Sampling = nil
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	} else {
		zc.OutputPaths = []string{"stdout"}
	}

	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.Development = true
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zc.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
