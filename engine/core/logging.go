package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type LogLevel = log.Level

const (
	LevelDebug LogLevel = log.DebugLevel
	LevelInfo  LogLevel = log.InfoLevel
	LevelWarn  LogLevel = log.WarnLevel
	LevelError LogLevel = log.ErrorLevel
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "Prism 🔺 ",
			})
			l.SetLevel(log.InfoLevel)
			// report the caller of LogX, not the wrapper itself
			l.SetCallerOffset(1)
			singleton = &logger{l}
		})
	return singleton
}

// SetLogLevel changes the level of the process logger.
func SetLogLevel(level LogLevel) {
	getLogger().SetLevel(level)
}

// ParseLogLevel accepts debug, info, warn and error (case insensitive).
// An empty string yields the info level.
func ParseLogLevel(s string) (LogLevel, error) {
	if strings.TrimSpace(s) == "" {
		return LevelInfo, nil
	}
	return log.ParseLevel(strings.ToLower(s))
}

// SetLogOutput redirects the process logger, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
