package refprof

import (
	"testing"
	"time"
)

func drive(t *testing.T, r *Recorder, s *Scope, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := r.StartCall(s, "op", KindCall, false, 0)
		r.EndCall(id, false, 0, nil)
	}
}

func TestNestedSections(t *testing.T) {
	r := mustNew(t, testConfig())
	s := r.NewScope()
	mk := NewMarkers(r)

	a := mk.Start("A")
	drive(t, r, s, 2)
	b := mk.Start("B")
	drive(t, r, s, 3)
	mk.End() // closes B
	drive(t, r, s, 1)
	mk.End() // closes A

	if !a.Closed() || !b.Closed() {
		t.Fatal("markers not closed")
	}

	closed := mk.Closed()
	if len(closed) != 2 {
		t.Fatalf("closed markers = %d, want 2", len(closed))
	}
	if closed[0].Name != "A" || closed[1].Name != "B" {
		t.Errorf("marker order = [%s %s], want [A B]", closed[0].Name, closed[1].Name)
	}
	if closed[1].Parent != "A" {
		t.Errorf("B.Parent = %q, want A", closed[1].Parent)
	}
	if closed[0].Depth != 0 || closed[1].Depth != 1 {
		t.Errorf("depths = %d,%d, want 0,1", closed[0].Depth, closed[1].Depth)
	}

	// B counts only the 3 calls strictly inside its own window; A counts
	// all 6 within its window.
	if got := closed[1].RoundTrips(); got != 3 {
		t.Errorf("B round trips = %d, want 3", got)
	}
	if got := closed[0].RoundTrips(); got != 6 {
		t.Errorf("A round trips = %d, want 6", got)
	}
}

func TestMarkerProxyDelta(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	r.RegisterProxy(&fakeRemote{class: "Before"}, 0)

	m := mk.Start("phase")
	r.RegisterProxy(&fakeRemote{class: "Inside"}, 0)
	r.RegisterProxy(&fakeRemote{class: "Inside"}, 0)
	mk.End()

	if got := m.ProxiesCreated(); got != 2 {
		t.Errorf("ProxiesCreated = %d, want 2 (pre-marker activity excluded)", got)
	}
}

func TestMarkerLIFO(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	outer := mk.Start("outer")
	inner := mk.Start("inner")

	mk.End()
	if outer.Closed() {
		t.Error("End closed outer before inner")
	}
	if !inner.Closed() {
		t.Error("End did not close the most recent marker")
	}
	mk.End()
	if !outer.Closed() {
		t.Error("outer never closed")
	}

	// extra End with nothing open is a no-op
	mk.End()
}

func TestMarkerOpenReadsAreZero(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	m := mk.Start("open")
	if m.Duration() != 0 || m.RoundTrips() != 0 || m.ProxiesCreated() != 0 {
		t.Error("open marker should report zero derived metrics")
	}
	mk.End()
	if m.Duration() < 0 {
		t.Error("negative duration")
	}
}

func TestDisabledManagerNilHandle(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)
	mk.Disable()

	m := mk.Start("ignored")
	if m != nil {
		t.Fatal("disabled manager must return the nil sentinel handle")
	}

	// every downstream helper must tolerate the sentinel
	if m.Closed() || m.Duration() != 0 || m.RoundTrips() != 0 || m.ProxiesCreated() != 0 {
		t.Error("nil marker methods must be safe no-ops")
	}
	mk.End()
	done := mk.Section("also ignored")
	done()

	if got := len(mk.Closed()); got != 0 {
		t.Errorf("disabled manager recorded %d markers", got)
	}
}

func TestSectionClosesOnPanic(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	func() {
		defer func() { recover() }()
		defer mk.Section("panicky")()
		panic("boom")
	}()

	closed := mk.Closed()
	if len(closed) != 1 || closed[0].Name != "panicky" {
		t.Fatalf("section not closed on panic: %+v", closed)
	}
}

func TestMarkerReset(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	mk.Start("a")
	mk.End()
	mk.Start("still open")
	mk.Reset()

	if got := len(mk.Closed()); got != 0 {
		t.Errorf("markers after reset = %d, want 0", got)
	}
	// the open stack was cleared too
	mk.End()
	m := mk.Start("fresh")
	mk.End()
	if m.Parent != "" {
		t.Errorf("stale parent %q after reset", m.Parent)
	}
}

func TestMarkerTiming(t *testing.T) {
	r := mustNew(t, testConfig())
	mk := NewMarkers(r)

	m := mk.Start("timed")
	time.Sleep(5 * time.Millisecond)
	mk.End()

	if m.Duration() < 5*time.Millisecond {
		t.Errorf("duration = %v, want >= 5ms", m.Duration())
	}
}
