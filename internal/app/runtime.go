package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv marks a process started by go test. Binaries exit before
// connecting to Postgres or Redis when it is set.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(readTestMode)

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

// InTestMode reports whether the process runs under tests. The environment
// is read on first use.
func InTestMode() bool {
	return testMode()
}
