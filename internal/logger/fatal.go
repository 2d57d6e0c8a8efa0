package logger

import (
	"log/slog"
	"os"
)

// FatalWithLogger reports an unrecoverable startup failure and exits.
// Only main uses this; components return errors instead.
func FatalWithLogger(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}
