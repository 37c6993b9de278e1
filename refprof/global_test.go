package refprof

import (
	"testing"
)

// resetGlobals returns the package-level default to its pristine lazy state.
func resetGlobals() {
	defaultMu.Lock()
	defaultRec = nil
	defaultMarks = nil
	defaultMu.Unlock()
}

func TestDefaultStartsDisabled(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	r := Default()
	if r == nil {
		t.Fatal("Default returned nil")
	}
	if r.Enabled() {
		t.Error("default recorder must be disabled until Enable")
	}

	// instrumented paths are safe no-ops against the disabled default
	s := r.NewScope()
	if id := r.StartCall(s, "noop()", KindCall, false, 0); id != 0 {
		t.Errorf("disabled StartCall id = %d, want 0", id)
	}
	if m := StartSection("noop"); m != nil {
		t.Error("StartSection on disabled default must return nil")
	}
	if got := Default().Stats().TotalCalls; got != 0 {
		t.Errorf("disabled default recorded %d calls", got)
	}
}

func TestEnableInstallsFreshRecorder(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	before := Default()
	cfg := testConfig()
	cfg.Enabled = false // Enable forces this on
	r, err := Enable(cfg)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer r.Close()

	if r == before {
		t.Error("Enable should install a fresh recorder")
	}
	if Default() != r {
		t.Error("Default does not return the enabled recorder")
	}
	if !r.Enabled() {
		t.Error("enabled recorder not recording")
	}

	s := r.NewScope()
	id := r.StartCall(s, "ping()", KindCall, false, 0)
	r.EndCall(id, false, 0, nil)
	if got := Default().Stats().TotalCalls; got != 1 {
		t.Errorf("TotalCalls = %d, want 1", got)
	}

	Disable()
	if r.Enabled() {
		t.Error("Disable did not stop the default recorder")
	}
	// accumulated data stays readable
	if got := Default().Stats().TotalCalls; got != 1 {
		t.Errorf("stats after Disable = %d, want 1", got)
	}
}

func TestEnableInvalidConfig(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	cfg := testConfig()
	cfg.SlowCallThreshold = -1
	if _, err := Enable(cfg); err == nil {
		t.Fatal("Enable accepted an invalid config")
	}
}

func TestResetDefault(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	r, err := Enable(testConfig())
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer r.Close()

	s := r.NewScope()
	id := r.StartCall(s, "ping()", KindCall, false, 0)
	r.EndCall(id, false, 0, nil)
	EndSection() // no-op; nothing open
	StartSection("sec")
	EndSection()

	ResetDefault()
	if got := Default().Stats().TotalCalls; got != 0 {
		t.Errorf("TotalCalls after reset = %d", got)
	}
	if got := len(DefaultMarkers().Closed()); got != 0 {
		t.Errorf("markers after reset = %d", got)
	}
	if !Default().Enabled() {
		t.Error("ResetDefault must preserve the enabled state")
	}
}

func TestWithRecorderRestores(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	before := Default()

	var seen *Recorder
	r, err := WithRecorder(testConfig(), func(tmp *Recorder) {
		seen = tmp
		if Default() != tmp {
			t.Error("temporary recorder not installed as default")
		}
		s := tmp.NewScope()
		id := tmp.StartCall(s, "scoped()", KindCall, false, 0)
		tmp.EndCall(id, false, 0, nil)
	})
	if err != nil {
		t.Fatalf("WithRecorder: %v", err)
	}
	if r != seen {
		t.Error("returned recorder differs from the one passed to fn")
	}
	if Default() != before {
		t.Error("previous default not restored")
	}
	// the temporary's data remains inspectable after restoration
	if got := r.Stats().TotalCalls; got != 1 {
		t.Errorf("temporary TotalCalls = %d, want 1", got)
	}
}

func TestWithRecorderRestoresOnPanic(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	before := Default()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate")
			}
		}()
		WithRecorder(testConfig(), func(*Recorder) { panic("boom") })
	}()

	if Default() != before {
		t.Error("previous default not restored after panic")
	}
}

func TestSectionHelpers(t *testing.T) {
	resetGlobals()
	defer resetGlobals()

	r, err := Enable(testConfig())
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer r.Close()

	done := Section("outer")
	m := StartSection("inner")
	EndSection()
	done()

	if m == nil || !m.Closed() {
		t.Fatal("inner section not closed")
	}
	closed := DefaultMarkers().Closed()
	if len(closed) != 2 || closed[0].Name != "outer" || closed[1].Name != "inner" {
		t.Fatalf("closed sections = %+v", closed)
	}
	if closed[1].Parent != "outer" {
		t.Errorf("inner parent = %q", closed[1].Parent)
	}
}
