// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup applies cfg to the standard logrus logger. When a log file is configured the
// returned closer releases it; otherwise it is a no-op.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	logger := log.StandardLogger()
	logger.SetLevel(level)
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	}

	var closer io.Closer = nopCloser{}
	out := io.Writer(os.Stdout)
	if file := strings.TrimSpace(cfg.File); file != "" {
		if errMkdir := os.MkdirAll(filepath.Dir(file), 0o755); errMkdir != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
		}
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}
	logger.SetOutput(out)

	gin.DefaultWriter = logger.WriterLevel(log.DebugLevel)
	gin.DefaultErrorWriter = logger.WriterLevel(log.ErrorLevel)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
