package logger

import (
	"log/slog"
	"os"
)

// New returns the application-wide structured logger. JSON output keeps audit
// log lines machine-parseable.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
