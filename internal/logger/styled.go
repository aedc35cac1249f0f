package logger

import (
	"fmt"
	"log/slog"

	"github.com/thushan/pxlb/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting for the
// values we log most: upstream proxies, pools and listener binds.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		theme:  theme,
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
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Counts.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithProxy(msg string, proxy string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Proxy.Sprint(proxy))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithPool(msg string, pool string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Pool.Sprint(pool))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithBind(msg string, bind string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Highlight.Sprint(bind))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithProxy(msg string, proxy string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Proxy.Sprint(proxy))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithProxy(msg string, proxy string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Proxy.Sprint(proxy))
	sl.logger.Error(styledMsg, args...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct
// access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
