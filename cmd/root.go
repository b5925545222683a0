package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"authflow/internal/config"
	"authflow/pkg/logging"
	"authflow/pkg/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags
var (
	configPath string
	clientName string
	debug      bool
	quiet      bool

	traceEndpoint string
	metricsFile   string
)

// rootCmd represents the base command for the authflow application.
var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "Authorize against OAuth 2.0 and OpenID Connect providers",
	Long: `authflow runs the OAuth 2.0 authorization code flow for the client
registrations in its configuration file, keeps the resulting tokens fresh,
and hands out access tokens to scripts and other tools.

Examples:
  authflow login                       # Authorize the default client
  authflow status                      # Show the session of every client
  authflow token --client work         # Print a valid access token
  authflow logout                      # Revoke and forget the tokens`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authflow version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	switch oauth.Kind(err) {
	case oauth.KindUserCancelled, oauth.KindAuthorization, oauth.KindAppInterrupted:
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// initLogging configures the process logger from the configuration file and
// the --debug flag. Logs go to stderr so stdout stays usable for tokens.
func initLogging(cmd *cobra.Command, _ []string) error {
	level := logging.LevelWarn
	format := logging.FormatText

	if cfg, err := config.Load(configPath); err == nil {
		if cfg.Logging.Level != "" {
			if parsed, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
				level = parsed
			}
		}
		if cfg.Logging.Format != "" {
			format = logging.Format(cfg.Logging.Format)
		}
	}
	if debug {
		level = logging.LevelDebug
	}

	logging.Init(level, cmd.ErrOrStderr(), format)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/authflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&clientName, "client", "c", "", "client registration to use (default is defaultClient from the config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "export traces to this OTLP/HTTP collector (overrides telemetry.traceEndpoint)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit (overrides telemetry.metricsFile)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
}
