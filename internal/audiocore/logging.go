package audiocore

import "github.com/tphakala/framebridge/internal/logger"

// GetLogger returns the audiocore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audiocore")
}

// LoggerOr returns log, or the named audiocore submodule logger when log is nil
func LoggerOr(log logger.Logger, module string) logger.Logger {
	if log != nil {
		return log
	}
	return GetLogger().Module(module)
}
