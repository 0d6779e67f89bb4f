package logging

import (
	"fmt"
	"os"
)

// Startup can fail before the zap logger exists, config loading being the
// usual case. These helpers write straight to the process streams so those
// failures are still visible.

func EarlyErrorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

func EarlyInfof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "INFO: "+format+"\n", args...)
}
