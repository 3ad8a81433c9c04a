package logger

import (
	"go.uber.org/zap"
)

// Log is a no-op until Init is called.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync 刷新缓冲的日志
func Sync() {
	_ = Log.Sync()
}
