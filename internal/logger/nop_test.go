package logger

import (
	"testing"

	"github.com/arloliu/relay/types"
	"github.com/stretchr/testify/require"
)

func TestNopLogger(t *testing.T) {
	var logger types.Logger = NewNop()

	// Every method, including Fatal, must be a true no-op: no panic, no
	// process exit, any argument shape accepted.
	require.NotPanics(t, func() {
		logger.Debug("drop", "tag", "orders-0")
		logger.Info("drop")
		logger.Warn("drop", "odd")
		logger.Error("drop", nil)
		logger.Fatal("drop", "k1", "v1", "k2", "v2")
	})
}

func TestFormatKeyValues(t *testing.T) {
	require.Equal(t, "", formatKeyValues(nil))
	require.Equal(t, "tag=orders-0 ", formatKeyValues([]any{"tag", "orders-0"}))
	require.Equal(t, "tag=<missing> ", formatKeyValues([]any{"tag"}))
	require.Equal(t, "a=1 b=2 ", formatKeyValues([]any{"a", 1, "b", 2}))
}

func BenchmarkNopLogger(b *testing.B) {
	logger := NewNop()

	for b.Loop() {
		logger.Debug("drop", "seq", 42, "tag", "orders-0")
	}
}
