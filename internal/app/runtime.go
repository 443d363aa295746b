package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// testModeEnv makes both binaries exit before touching Postgres or Redis.
const testModeEnv = "AGRI_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() bool {
	enabled, err := strconv.ParseBool(os.Getenv(testModeEnv))
	enabled = err == nil && enabled
	testMode.Store(&enabled)
	return enabled
}
