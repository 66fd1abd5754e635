// Package testing switches the process into settlement test mode when
// imported. Commands started from tests skip server and worker startup, and
// fiscal authorization stays off unless a test sets FISCAL_MODE itself.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const (
	testModeEnv   = "SETTLEMENT_TEST_MODE"
	fiscalModeEnv = "FISCAL_MODE"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
		if os.Getenv(fiscalModeEnv) == "" {
			_ = os.Setenv(fiscalModeEnv, "off")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain lets a package reuse the test-mode setup as its own entry point.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
