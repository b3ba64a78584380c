// Package testing puts the binaries into test mode. Import it for side effects from
// tests that call a main function.
package testing

import (
	"os"
	"sync"

	"github.com/salesops/salesops/internal/app"
)

var once sync.Once

// EnsureTestMode sets the test mode flag and refreshes the cached value.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
		if os.Getenv("COST_SERVICE_URL") == "" {
			_ = os.Setenv("COST_SERVICE_URL", "http://127.0.0.1:0")
		}
		app.RefreshTestMode()
	})
}

func init() {
	EnsureTestMode()
}
