// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vibepatch/identity/internal/config"
)

// Setup applies the logging configuration to the global logger. When a log
// file is configured, output goes to both stdout and a size-rotated file.
func Setup(cfg config.LoggingConfig) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(parseLevel(cfg.Level))

	writers := []io.Writer{os.Stdout}
	if file := strings.TrimSpace(cfg.File); file != "" {
		if errMkdir := os.MkdirAll(filepath.Dir(file), 0755); errMkdir != nil {
			log.WithError(errMkdir).Warnf("cannot create log directory for %s, logging to stdout only", file)
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			})
		}
	}
	log.SetOutput(io.MultiWriter(writers...))
}

// parseLevel maps a config level string to a logrus level.
func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "":
		return log.InfoLevel
	default:
		if parsed, errParse := log.ParseLevel(level); errParse == nil {
			return parsed
		}
		return log.InfoLevel
	}
}
