package app

import (
	"os"
	"sync"
)

// TestModeEnv disables migrations, tracing export and job scheduling when set to "1".
const TestModeEnv = "PURCHASING_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	return testMode()
}
