package internal

import (
	"io"
	"log/slog"
	"time"
)

// NewLogger builds the process-wide slog logger: JSON output in prod for
// log shipping, human-readable text elsewhere. Every record carries a
// service attribute so storefront lines are filterable in shared sinks.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	lv := new(slog.LevelVar) // Info by default
	switch level {
	case "debug":
		lv.Set(slog.LevelDebug)
	case "warn":
		lv.Set(slog.LevelWarn)
	case "error":
		lv.Set(slog.LevelError)
	case "info":
	default:
		slog.Default().Warn("Invalid log level. Using default level: info", slog.String("value", level))
	}

	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lv,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
				}
				return a
			},
		})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	}

	return slog.New(h).With(slog.String("service", "storefront"))
}
