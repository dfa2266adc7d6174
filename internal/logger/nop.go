// Package logger provides logging utilities for the Relay library.
package logger

import "github.com/arloliu/relay/types"

// NopLogger is a no-op logger that discards all log messages.
//
// Useful for tests that don't care about log output and for benchmarks
// where log I/O would distort results.
//
// Example:
//
//	coord := relay.NewCoordinator(cfg, deps, relay.WithLogger(logger.NewNop()))
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a new no-op logger that discards all messages.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Fatal discards the message and, unlike production loggers, never
// terminates the process.
func (*NopLogger) Fatal(string, ...any) {}
