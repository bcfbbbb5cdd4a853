// Package logging provides structured logging with per-module log level configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available, except when stdout is itself
//     the journal stream (a systemd service), where only the structured
//     journal handler is used
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"input": "debug",
//		},
//	})
//
// Then hand each component its module logger:
//
//	logger := logging.GetLogger("led")
//	logger.Info("Backlight on", "leds", 2)
//
// Components below cmd accept the narrow Logger interface rather than
// calling GetLogger themselves.
//
// # Viewing Logs
//
//	journalctl -t kbdlight -f
//	journalctl -t kbdlight MODULE=input
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	input = "debug"
//	led = "warn"
package logging
