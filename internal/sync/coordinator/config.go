package coordinator

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/telemetry"
)

const (
	// DownloadTaskName names the contact download scheduler and its persisted status
	DownloadTaskName = "contact-download"
	// UploadTaskName names the contact upload scheduler and its persisted status
	UploadTaskName = "contact-upload"
	// DefaultDownloadInterval is how often contacts are downloaded after a success
	DefaultDownloadInterval = time.Hour
)

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithDownloadInterval sets the period of the contact download task
func WithDownloadInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.downloadInterval = interval
		}
	}
}

// WithClock sets the clock used to time downloads and uploads
func WithClock(clk clock.PassiveClock) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithExecutor sets how downloads and uploads are run off the sequence.
// Defaults to a new goroutine per task.
func WithExecutor(execute func(task func())) Option {
	return func(c *defaultCoordinator) {
		c.execute = execute
	}
}
