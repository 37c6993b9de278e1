package refprof

import "sync"

// Process-wide default recorder. Created lazily and disabled until Enable is
// called, so instrumented code paths cost almost nothing in unprofiled runs.
var (
	defaultMu    sync.Mutex
	defaultRec   *Recorder
	defaultMarks *Markers
)

func defaults() (*Recorder, *Markers) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRec == nil {
		cfg := DefaultConfig()
		cfg.Enabled = false
		defaultRec, _ = New(cfg)
		defaultMarks = NewMarkers(defaultRec)
	}
	return defaultRec, defaultMarks
}

// Default returns the current process-wide recorder. It records only after
// Enable has been called.
func Default() *Recorder {
	r, _ := defaults()
	return r
}

// DefaultMarkers returns the marker manager bound to the current
// process-wide recorder.
func DefaultMarkers() *Markers {
	_, mk := defaults()
	return mk
}

// Enable installs a fresh recording default recorder built from cfg
// (cfg.Enabled is forced on) and returns it. The previous default, if any,
// is left untouched for callers still holding it.
func Enable(cfg Config) (*Recorder, error) {
	cfg.Enabled = true
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultMu.Lock()
	defaultRec = r
	defaultMarks = NewMarkers(r)
	defaultMu.Unlock()
	return r, nil
}

// Disable stops the default recorder from recording. Accumulated data stays
// readable; Enable installs a fresh recorder.
func Disable() {
	r, mk := defaults()
	r.setEnabled(false)
	mk.Disable()
}

// ResetDefault clears all data accumulated by the default recorder and its
// marker manager, preserving configuration.
func ResetDefault() {
	r, mk := defaults()
	r.Reset()
	mk.Reset()
}

// WithRecorder substitutes a fresh recorder built from cfg for the duration
// of fn and restores the previous default on every exit path, including a
// panic in fn. The temporary recorder is closed after restoration and
// returned for inspection.
func WithRecorder(cfg Config, fn func(*Recorder)) (*Recorder, error) {
	cfg.Enabled = true
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}

	defaultMu.Lock()
	prevRec, prevMarks := defaultRec, defaultMarks
	defaultRec = r
	defaultMarks = NewMarkers(r)
	defaultMu.Unlock()

	defer func() {
		defaultMu.Lock()
		defaultRec = prevRec
		defaultMarks = prevMarks
		defaultMu.Unlock()
		r.Close()
	}()

	fn(r)
	return r, nil
}

// StartSection opens a named section marker on the default manager. Returns
// nil when the default recorder is not enabled; callers need not check.
func StartSection(name string) *Marker {
	return DefaultMarkers().Start(name)
}

// EndSection closes the most recently opened default section marker.
func EndSection() {
	DefaultMarkers().End()
}

// Section opens a default section marker and returns its closer:
//
//	defer refprof.Section("load dataset")()
func Section(name string) func() {
	return DefaultMarkers().Section(name)
}
