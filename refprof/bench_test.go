package refprof

import (
	"testing"
)

func BenchmarkStartEndCall(b *testing.B) {
	r, err := New(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	s := r.NewScope()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := r.StartCall(s, "bench()", KindCall, false, 0)
		r.EndCall(id, false, 0, nil)
	}
}

func BenchmarkStartEndCallNoCallSites(b *testing.B) {
	cfg := testConfig()
	cfg.TrackCallSites = false
	r, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	s := r.NewScope()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := r.StartCall(s, "bench()", KindCall, false, 0)
		r.EndCall(id, false, 0, nil)
	}
}

func BenchmarkDisabledRecorder(b *testing.B) {
	cfg := testConfig()
	cfg.Enabled = false
	r, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	s := r.NewScope()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := r.StartCall(s, "bench()", KindCall, false, 0)
		r.EndCall(id, false, 0, nil)
	}
}

func BenchmarkInterceptedGet(b *testing.B) {
	r, err := New(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	root := Wrap(&fakeRemote{class: "Service", attrs: map[string]any{"version": "1.0"}}, r)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := root.Get("version"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFormatSummary(b *testing.B) {
	r, err := New(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	s := r.NewScope()
	for i := 0; i < 500; i++ {
		id := r.StartCall(s, "fill()", KindCall, false, 0)
		r.EndCall(id, false, 0, nil)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FormatSummary(r)
	}
}
