package refprof

import (
	"sync"
	"time"
)

// Marker is a named, timed code region correlated with recorder counters at
// its boundaries. Markers nest strictly LIFO: only the most-recently-opened
// marker may be closed next. A nil *Marker is the sentinel handle returned
// by a disabled manager; all methods on it are safe no-ops.
type Marker struct {
	Name string

	StartAt time.Time
	EndAt   time.Time // zero while open

	// StartDepth is the deepest active call-stack depth observed when the
	// marker opened.
	StartDepth int

	// Parent is the name of the enclosing marker that was open at start, or
	// "" for a top-level marker. Depth is stored explicitly at creation as
	// parent depth + 1.
	Parent string
	Depth  int

	startRoundTrips int64
	endRoundTrips   int64
	startProxies    int64
	endProxies      int64
}

// Closed reports whether the marker has ended.
func (m *Marker) Closed() bool { return m != nil && !m.EndAt.IsZero() }

// Duration returns the marker's wall time, or 0 while it is still open.
func (m *Marker) Duration() time.Duration {
	if !m.Closed() {
		return 0
	}
	return m.EndAt.Sub(m.StartAt)
}

// RoundTrips returns the number of network round trips that occurred
// strictly between the marker's own start and end, or 0 while open.
func (m *Marker) RoundTrips() int64 {
	if !m.Closed() {
		return 0
	}
	return m.endRoundTrips - m.startRoundTrips
}

// ProxiesCreated returns the number of proxies created strictly between the
// marker's own start and end, or 0 while open.
func (m *Marker) ProxiesCreated() int64 {
	if !m.Closed() {
		return 0
	}
	return m.endProxies - m.startProxies
}

// Markers manages named nestable section markers for one recorder.
type Markers struct {
	rec *Recorder

	mu      sync.Mutex
	enabled bool
	all     []*Marker // creation order, open and closed
	open    []*Marker // LIFO stack of open markers
}

// NewMarkers returns a marker manager correlated against rec's counters.
// The manager starts enabled when the recorder is recording.
func NewMarkers(rec *Recorder) *Markers {
	return &Markers{rec: rec, enabled: rec.Enabled()}
}

// Enable turns marker tracking on.
func (mk *Markers) Enable() {
	mk.mu.Lock()
	mk.enabled = true
	mk.mu.Unlock()
}

// Disable turns marker tracking off. Start returns nil while disabled.
func (mk *Markers) Disable() {
	mk.mu.Lock()
	mk.enabled = false
	mk.mu.Unlock()
}

// Start opens a marker for a named section and returns its handle, or nil
// when the manager is disabled. The enclosing open marker, if any, becomes
// the parent.
func (mk *Markers) Start(name string) *Marker {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if !mk.enabled {
		return nil
	}

	stats := mk.rec.Stats()

	m := &Marker{
		Name:            name,
		StartAt:         time.Now(),
		StartDepth:      stats.CurrentDepth,
		startRoundTrips: stats.TotalRoundTrips,
		startProxies:    stats.ProxiesCreated,
	}
	if n := len(mk.open); n > 0 {
		parent := mk.open[n-1]
		m.Parent = parent.Name
		m.Depth = parent.Depth + 1
	}

	mk.all = append(mk.all, m)
	mk.open = append(mk.open, m)
	return m
}

// End closes the most recently opened marker, capturing the end counter
// snapshot. Closing with no marker open is a no-op.
func (mk *Markers) End() {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if !mk.enabled || len(mk.open) == 0 {
		return
	}

	m := mk.open[len(mk.open)-1]
	mk.open = mk.open[:len(mk.open)-1]

	stats := mk.rec.Stats()
	m.EndAt = time.Now()
	m.endRoundTrips = stats.TotalRoundTrips
	m.endProxies = stats.ProxiesCreated
}

// Section opens a marker and returns the func that closes it, for use with
// defer so the section ends on every exit path:
//
//	defer marks.Section("establish connections")()
func (mk *Markers) Section(name string) func() {
	mk.Start(name)
	return mk.End
}

// Closed returns snapshots of all closed markers in creation order.
func (mk *Markers) Closed() []Marker {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	out := make([]Marker, 0, len(mk.all))
	for _, m := range mk.all {
		if m.Closed() {
			out = append(out, *m)
		}
	}
	return out
}

// Reset clears all markers, open and closed.
func (mk *Markers) Reset() {
	mk.mu.Lock()
	mk.all = nil
	mk.open = nil
	mk.mu.Unlock()
}
