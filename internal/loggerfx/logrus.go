package loggerfx

import (
	"io"
	stdlog "log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ConfigLogLevel          = "log.level"
	ConfigLogFormat         = "log.format"
	ConfigLogFilePath       = "log.file.path"
	ConfigLogFileMaxSizeMB  = "log.file.max_size_mb"
	ConfigLogFileMaxAgeDays = "log.file.max_age_days"
	ConfigLogFileMaxBackups = "log.file.max_backups"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})
}

func Logger() *logrus.Logger {
	return logger
}

// DefaultLoggerAdapter bridges a *logrus.Logger into a stdlib *log.Logger
// for the few dependencies (net/http.Server's ErrorLog) that only accept
// the standard library's logger type.
func DefaultLoggerAdapter(logger *logrus.Logger) *stdlog.Logger {
	return stdlog.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}

func ConfigureLogger(logger *logrus.Logger, v *viper.Viper) {
	logLevel := v.GetString(ConfigLogLevel)
	logFormat := v.GetString(ConfigLogFormat)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	switch logFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		fallthrough
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	if path := v.GetString(ConfigLogFilePath); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    intOr(v.GetInt(ConfigLogFileMaxSizeMB), 100),
			MaxAge:     v.GetInt(ConfigLogFileMaxAgeDays),
			MaxBackups: v.GetInt(ConfigLogFileMaxBackups),
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}
}

func intOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
