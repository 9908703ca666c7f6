package pkg

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger = zap.NewNop()

// InitLogger 按日志级别构建 production logger，并替换 zap 全局 logger
func InitLogger(logLevel string) *zap.Logger {
	config := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level.SetLevel(level)
	l, err := config.Build()
	if err != nil {
		l = zap.NewExample()
	}
	Logger = l
	zap.ReplaceGlobals(l)
	return l
}
