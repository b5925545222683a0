// Package logging configures the process-wide slog logger for the authflow
// CLI and offers subsystem-tagged helpers.
//
// Library packages take a *slog.Logger through a WithLogger option; the CLI
// initializes this package once and hands Logger(subsystem) to them.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Config", "Loaded configuration from %s", configPath)
//	logging.Debug("Login", "Waiting for callback on %s", redirectURL)
//	logging.Error("Session", err, "Failed to persist session")
//
// Every entry carries a "subsystem" attribute. Errors are added as an
// "error" attribute. Token values must never be passed to these helpers.
//
// # Levels
//
// ParseLevel accepts the values used in the configuration file
// (debug, info, warn, error). Messages below the configured level are
// dropped before formatting.
package logging
