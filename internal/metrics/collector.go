package metrics

import (
	"context"
	"log/slog"
	"time"
)

// CredentialCounter is the slice of the store the collector needs.
type CredentialCounter interface {
	CountCredentials(ctx context.Context) (int64, error)
}

// StartCollector starts a background loop that periodically refreshes gauge
// metrics. It returns when ctx is cancelled.
func StartCollector(ctx context.Context, counter CredentialCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on startup
	Collect(ctx, counter)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Collect(ctx, counter)
		}
	}
}

// Collect refreshes the gauges once.
func Collect(ctx context.Context, counter CredentialCounter) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if count, err := counter.CountCredentials(ctx); err == nil {
		CredentialsTotal.Set(float64(count))
	} else {
		slog.Debug("failed to count credentials for metrics", "error", err)
	}
}
