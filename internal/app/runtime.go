package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "CONTRACTHUB_TEST_MODE"

// testMode is nil until the environment has been read.
var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the job queue. Blank-importing the testing package sets it.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads CONTRACTHUB_TEST_MODE.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
	return on
}
