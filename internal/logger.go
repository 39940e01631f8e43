package internal

import (
	"os"

	"github.com/charmbracelet/log"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logLevel = LogLevelInfo
	// filtering happens against logLevel, the backend prints everything it gets
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.DebugLevel,
	})
)

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

var backendLevels = map[LogLevel]log.Level{
	LogLevelError: log.ErrorLevel,
	LogLevelWarn:  log.WarnLevel,
	LogLevelInfo:  log.InfoLevel,
	LogLevelDebug: log.DebugLevel,
}

func logAt(level LogLevel, format string, args ...interface{}) {
	if logLevel >= level {
		logger.Logf(backendLevels[level], format, args...)
	}
}

func logError(format string, args ...interface{}) {
	logAt(LogLevelError, format, args...)
}

func logWarn(format string, args ...interface{}) {
	logAt(LogLevelWarn, format, args...)
}

func logInfo(format string, args ...interface{}) {
	logAt(LogLevelInfo, format, args...)
}

func logDebug(format string, args ...interface{}) {
	logAt(LogLevelDebug, format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logError(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	logWarn(format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logInfo(format, args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	logDebug(format, args...)
}

// componentLog prefixes every line with the owning component
type componentLog struct {
	tag string
}

func newComponentLog(tag string) componentLog {
	return componentLog{tag: tag}
}

func (c componentLog) args(args []interface{}) []interface{} {
	return append([]interface{}{c.tag}, args...)
}

func (c componentLog) errorf(format string, args ...interface{}) {
	logError("[%s] "+format, c.args(args)...)
}

func (c componentLog) warnf(format string, args ...interface{}) {
	logWarn("[%s] "+format, c.args(args)...)
}

func (c componentLog) infof(format string, args ...interface{}) {
	logInfo("[%s] "+format, c.args(args)...)
}

func (c componentLog) debugf(format string, args ...interface{}) {
	logDebug("[%s] "+format, c.args(args)...)
}
