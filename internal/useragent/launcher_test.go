package useragent

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "xdg-open"},
		{"darwin", "open"},
		{"windows", "rundll32"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, "https://example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Args[0])
			assert.Equal(t, "https://example.com", cmd.Args[len(cmd.Args)-1])
		})
	}

	_, err := browserCommand("plan9", "https://example.com")
	assert.Error(t, err)
}

func TestOpenBrowser_StartFailure(t *testing.T) {
	original := startCommand
	defer func() { startCommand = original }()

	var started *exec.Cmd
	startCommand = func(cmd *exec.Cmd) error {
		started = cmd
		return errors.New("no display")
	}

	err := OpenBrowser("https://example.com")
	if started == nil {
		// unsupported platform
		require.Error(t, err)
		return
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open browser")
}
