package refprof

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config controls the behavior of a Recorder.
type Config struct {
	// Enabled turns recording on. When false every tracking operation is a
	// cheap no-op returning the zero call id, and wrapped references forward
	// operations without any bookkeeping.
	Enabled bool

	// TrackProxies enables proxy lifecycle tracking (registration, access
	// counters, last-access times). When false RegisterProxy returns 0 and
	// the proxy report is empty.
	TrackProxies bool

	// TrackCallSites enables best-effort capture of the caller's source
	// location on each call, and deep-stack snapshots. Capture never fails a
	// call; when the location cannot be determined it is simply empty.
	TrackCallSites bool

	// SlowCallThreshold is the duration at or above which a finished call is
	// added to the slow-call list. Default: 100ms.
	SlowCallThreshold time.Duration

	// DeepStackThreshold is the active nesting depth at or above which a
	// snapshot of the call stack is kept for diagnostics. Default: 5.
	DeepStackThreshold int

	// MetricPrefix is the prefix for all emitted OpenTelemetry metric names.
	// Default: "refprof" (produces refprof.call_duration_ms etc.)
	MetricPrefix string

	// WatchInterval controls how often the live watcher scans for in-flight
	// calls that have exceeded SlowCallThreshold and logs their stacks.
	// Set to 0 (the default) to disable the watcher.
	WatchInterval time.Duration

	// Logger receives live-watcher output. When nil a text handler writing
	// to stderr is used.
	Logger *slog.Logger
}

// Validate checks that the Config has valid values and returns an error if not.
func (c Config) Validate() error {
	if c.MetricPrefix == "" {
		return errors.New("MetricPrefix cannot be empty")
	}
	if c.SlowCallThreshold < 0 {
		return fmt.Errorf("SlowCallThreshold must be >= 0, got %v", c.SlowCallThreshold)
	}
	if c.DeepStackThreshold < 1 {
		return fmt.Errorf("DeepStackThreshold must be >= 1, got %d", c.DeepStackThreshold)
	}
	if c.WatchInterval < 0 {
		return fmt.Errorf("WatchInterval must be >= 0, got %v", c.WatchInterval)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults: recording enabled,
// proxy and call-site tracking on, a 100ms slow-call threshold, a deep-stack
// threshold of 5, and the live watcher off.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		TrackProxies:       true,
		TrackCallSites:     true,
		SlowCallThreshold:  100 * time.Millisecond,
		DeepStackThreshold: 5,
		MetricPrefix:       "refprof",
		WatchInterval:      0,
	}
}
