package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/fa15bridge/pkg/config"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// It respects both --log-level and --verbose flags, with --log-level taking precedence.
// fallback is used when neither flag is set; an empty fallback keeps the logger quiet (error level).
func configureLogger(cmd *cobra.Command, verboseFlagName string, fallback string) (*logrus.Logger, error) {
	logLevel := logrus.ErrorLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool(verboseFlagName)

	switch {
	case logLevelStr != "":
		level, err := parseLogLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
		logLevel = level
	case verbose:
		logLevel = logrus.DebugLevel
	case fallback != "":
		level, err := parseLogLevel(fallback)
		if err != nil {
			return nil, err
		}
		logLevel = level
	}

	cfg := &config.Config{LogLevel: logLevel.String()}
	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())

	return logger, nil
}

func parseLogLevel(s string) (logrus.Level, error) {
	switch s {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", s)
	}
}
