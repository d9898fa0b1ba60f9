package loader

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the package-level logger, defaulting to a no-op logger
// until SetLogger is called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs l as the package-level logger. Call before any
// Registry activity to avoid the default no-op logger taking effect.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
