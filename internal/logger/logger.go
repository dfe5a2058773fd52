package logger

import (
	"log"

	"go.uber.org/zap"
)

var Log *zap.Logger

// InitLogger sets up the global zap logger. Must be called once at startup
// before any other package logs.
func InitLogger() {
	var err error
	Log, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

// Sync flushes any buffered log entries. Call via defer in main.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
