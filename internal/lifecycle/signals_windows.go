//go:build windows

package lifecycle

import "os"

// ResumeSignals returns nil: Windows has no job-control signals.
func ResumeSignals() []os.Signal {
	return nil
}
