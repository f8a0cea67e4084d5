package cfg

import (
	"log/slog"
	"os"
)

// LevelTrace is below slog's debug level; used for per-line chatter.
const LevelTrace = slog.LevelDebug - 4

func (c *Cfg) LogLevel() slog.Level {
	switch {
	case c.Trace:
		return LevelTrace
	case c.Debug:
		return slog.LevelDebug
	case c.Verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// SetupLogging installs the process-wide slog handler and logs the startup banner.
func SetupLogging(c *Cfg, program string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: c.LogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting up", "program", program, "version", c.Version)
	slog.Debug("Configuration loaded",
		"config_file", c.ConfigFile,
		"db_driver", c.DBDriver,
		"irc_log_dir", c.IRCLogDir,
		"timezone", c.Location.String())
}
