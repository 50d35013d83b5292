package config

import (
	"go.uber.org/zap/zapcore"

	"go.viam.com/multicalib/logging"
)

// InitLoggingSettings sets the global log level from the command line debug flag and the
// config's log_level, whichever is more verbose.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool, cfg *Config) {
	level := logging.INFO
	if cfg != nil {
		level = cfg.Level()
	}
	if cmdLineDebugFlag {
		level = logging.DEBUG
	}
	if level == logging.DEBUG {
		logging.GlobalLogLevel.SetLevel(zapcore.DebugLevel)
	} else {
		logging.GlobalLogLevel.SetLevel(zapcore.InfoLevel)
	}
	logger.SetLevel(level)
	logger.Debugw("log level initialized", "level", level.String())
}
