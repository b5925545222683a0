//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// ResumeSignals returns the signals that mean the process was brought back
// to the foreground.
func ResumeSignals() []os.Signal {
	return []os.Signal{syscall.SIGCONT}
}
