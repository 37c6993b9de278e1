// Package refprof instruments calls made through a remote-object-proxy RPC
// client. It wraps opaque remote references and records every attribute get,
// attribute set, and invocation so that an operator can see, after the fact,
// how many network round trips an operation cost, how deeply calls nested,
// which calls were slow, and how many ephemeral proxies were created and used.
//
// # What Is Recorded
//
// Every intercepted operation costs exactly one network round trip and
// produces one call record with timing, nesting, and proxy linkage:
//
//   - getattr / setattr: attribute access on a remote reference
//   - call: invocation of a remote callable
//
// Resolving a zero-argument remote method by name and then calling it
// produces two records (one getattr, one call). This doubling is intentional:
// it is exactly how the underlying protocol spends round trips.
//
// Results that are themselves remote references are registered as proxies
// with creation linkage, access counters, and last-access times.
//
// # Quick Start
//
//	rec, err := refprof.New(refprof.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rec.Close()
//
//	conn := refprof.NewProfiledConn(client, rec) // client is any refprof.Client
//	root, err := conn.Root()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, _ := root.Get("compute")
//	if m, ok := refprof.AsRemote(v); ok {
//	    m.Invoke(40) // one getattr + one call = two round trips
//	}
//
//	fmt.Println(refprof.FormatCallTree(rec, refprof.TreeOptions{}))
//	fmt.Println(refprof.FormatSummary(rec))
//
// A process-wide default recorder is available through Enable, Disable, and
// Default, plus WithRecorder for substituting a fresh recorder for the
// duration of a function call.
//
// # Metrics Emitted
//
// Recorder events are mirrored to OpenTelemetry and can be exported to
// Prometheus (see examples/otel-prometheus-client):
//
//   - call_duration_ms: duration of each intercepted operation, labeled with
//     method and kind
//   - slow_calls_total: calls at or over the configured slow-call threshold
//   - proxies_created_total, proxies_active: proxy lifecycle counters
//
// # Concurrency
//
// One recorder may be shared by many goroutines. Call nesting is attributed
// per Scope (one per profiled connection), so concurrent callers never
// corrupt each other's parent/depth bookkeeping. All recorder state is
// guarded by a single mutex; no recorder operation performs I/O on the hot
// path. Live slow-call watching, when enabled, runs in a background worker.
package refprof
