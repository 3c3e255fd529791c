package utils

import (
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

// InitLogger builds the process-wide logger. Development mode is selected
// with LOG_MODE=dev.
func InitLogger() {
	var err error
	if os.Getenv("LOG_MODE") == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
}

func GetLogger() *zap.Logger {
	if logger == nil {
		InitLogger()
	}
	return logger
}
