package config

import (
	"io"
	"os"
	"strings"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation.
const (
	logMaxSize   = 100 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
)

var logLevels = map[string]int8{
	"debug":   logging.Debug,
	"info":    logging.Info,
	"warning": logging.Warning,
	"error":   logging.Error,
	"fatal":   logging.Fatal,
}

// NewLogger writes to stdout and, when LOG_FILE is set, to a rotated file.
func NewLogger(cfg *Config) logging.Logger {
	level, ok := logLevels[strings.ToLower(cfg.LogLevel)]
	if !ok {
		level = logging.Info
	}

	var w io.Writer = os.Stdout
	if cfg.LogFile != "" {
		fileLog := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		w = io.MultiWriter(os.Stdout, fileLog)
	}
	return logging.New(level, w, false)
}
