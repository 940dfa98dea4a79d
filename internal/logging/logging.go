package logging

import (
	"go.uber.org/zap"
)

// New creates the application logger. Production gets JSON output at info
// level, everything else the human-readable development config.
func New(production bool) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if production {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}

// OrNop returns logger, or a no-op logger when it is nil
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
