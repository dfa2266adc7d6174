package testing

import (
	"testing"

	"github.com/arloliu/relay/internal/logger"
	"github.com/arloliu/relay/types"
)

// NewTestLogger returns a Logger that writes through t.Logf, so component
// output lands in the log of the test that owns it. Fatal fails the test.
func NewTestLogger(t *testing.T) types.Logger {
	return logger.NewTest(t)
}
