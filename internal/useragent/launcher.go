package useragent

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Launcher shows target to the user.
type Launcher func(target string) error

// startCommand starts cmd without waiting for it. Replaced in tests.
var startCommand = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// OpenBrowser opens target in the default web browser.
// It supports Linux, macOS, and Windows.
func OpenBrowser(target string) error {
	cmd, err := browserCommand(runtime.GOOS, target)
	if err != nil {
		return err
	}

	// The browser keeps running after the command returns.
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func browserCommand(goos, target string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", target), nil
	case "darwin":
		return exec.Command("open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
