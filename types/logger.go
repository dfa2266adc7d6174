package types

// Logger is the structured logging surface shared by every component.
//
// Any slog-style logger fits: each method takes a message plus alternating
// key-value fields. An adapter for *slog.Logger ships with the library.
type Logger interface {
	// Debug logs a message at DebugLevel with the given key-value fields.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at InfoLevel with the given key-value fields.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at WarnLevel with the given key-value fields.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at ErrorLevel with the given key-value fields.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at FatalLevel and calls os.Exit(1), even if
	// logging at FatalLevel is disabled.
	Fatal(msg string, keysAndValues ...any)
}
