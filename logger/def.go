package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// InitProduction builds a JSON logger writing to stderr.
func InitProduction() error {
	return InitWithLevel("info", false)
}

// InitDevelopment builds a console logger, friendlier when running by hand.
func InitDevelopment() error {
	return InitWithLevel("debug", true)
}

// InitWithLevel builds the logger from the config's logging section.
// Both encoders write to stderr; stdout is reserved for the count.
func InitWithLevel(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// Use installs an already built logger, e.g. zaptest.NewLogger in tests.
func Use(l *zap.Logger) {
	setLogger(l)
}

func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	// zap.L()/zap.S() return the same instance afterwards
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log returns a non-nil *zap.Logger. Before init this is zap's global (a no-op).
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns a non-nil *zap.SugaredLogger.
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries.
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
