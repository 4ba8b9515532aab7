package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRequest returns a logger with ingestion request context attached.
func WithRequest(ip string, batchSize int) *slog.Logger {
	return slog.With(
		"client_ip", ip,
		"batch_size", batchSize,
	)
}

// WithAggregate returns a logger scoped to one analytics query.
func WithAggregate(queryType string, days int) *slog.Logger {
	return slog.With(
		"query_type", queryType,
		"days", days,
	)
}
