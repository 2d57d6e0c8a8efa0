package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/keirav/manifold/internal/core/domain"
	"github.com/keirav/manifold/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Service}.Sprint(service))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Service}.Sprint(service))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithService(msg string, service string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Service}.Sprint(service))
	sl.logger.Error(styledMsg, args...)
}

// InfoHealthStatus logs a model health transition with status colouring.
func (sl *StyledLogger) InfoHealthStatus(msg string, model string, health domain.ModelHealth, args ...any) {
	var statusColor pterm.Color
	var statusText string

	switch health {
	case domain.HealthHealthy:
		statusColor = sl.Theme.Good
		statusText = "Healthy"
	case domain.HealthDegraded:
		statusColor = sl.Theme.Degraded
		statusText = "Degraded"
	case domain.HealthUnhealthy:
		statusColor = sl.Theme.Danger
		statusText = "Unhealthy"
	default:
		statusColor = sl.Theme.Unknown
		statusText = "Unknown"
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg, pterm.Style{sl.Theme.Model}.Sprint(model), pterm.Style{statusColor}.Sprint(statusText))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithRequestID(requestID string) *StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}
