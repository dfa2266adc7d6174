// Package logging adapts standard library loggers to the types.Logger
// interface.
package logging

import (
	"log/slog"
	"os"

	"github.com/arloliu/relay/types"
)

// SlogLogger implements types.Logger using Go's standard log/slog package.
type SlogLogger struct {
	logger *slog.Logger
}

// Compile-time assertion that SlogLogger implements Logger.
var _ types.Logger = (*SlogLogger)(nil)

// NewSlog wraps an existing slog.Logger.
//
// Example:
//
//	logger := logging.NewSlog(slog.New(slog.NewTextHandler(os.Stderr, nil)))
//	logger.Info("publisher started", "tag", "orders-0")
func NewSlog(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// NewSlogDefault wraps slog.Default().
func NewSlogDefault() *SlogLogger {
	return &SlogLogger{logger: slog.Default()}
}

// Levels map one-to-one onto slog levels; keysAndValues pass through as
// alternating slog attributes.

func (s *SlogLogger) Debug(msg string, keysAndValues ...any) { s.logger.Debug(msg, keysAndValues...) }
func (s *SlogLogger) Info(msg string, keysAndValues ...any)  { s.logger.Info(msg, keysAndValues...) }
func (s *SlogLogger) Warn(msg string, keysAndValues ...any)  { s.logger.Warn(msg, keysAndValues...) }
func (s *SlogLogger) Error(msg string, keysAndValues ...any) { s.logger.Error(msg, keysAndValues...) }

// Fatal logs at Error level (slog has no Fatal level) and calls os.Exit(1).
func (s *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	s.logger.Error(msg, keysAndValues...)
	os.Exit(1) //nolint:revive // Fatal should exit the program
}
