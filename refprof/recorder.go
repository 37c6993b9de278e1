package refprof

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder is the thread-safe ledger of call events and proxy lifecycles for
// one profiling session. All mutating operations and statistics reads run
// under a single mutex; per-caller nesting state lives in Scopes.
type Recorder struct {
	cfg Config

	// on gates every tracking operation. Seeded from cfg.Enabled; flipped
	// off by the process-wide Disable without tearing down the recorder.
	on atomic.Bool

	met   *meters
	watch *watcher

	mu sync.Mutex

	callSeq  int64
	proxySeq int64

	totalCalls      int64
	totalRoundTrips int64
	proxiesCreated  int64
	activeProxies   int64
	maxDepth        int

	active  map[int64]*CallRecord
	history []*CallRecord
	proxies map[int64]*ProxyRecord
	slow    []*CallRecord
	deep    [][]int64

	scopes []*Scope
}

// Stats is a point-in-time snapshot of recorder counters, taken under the
// same lock that guards mutation.
type Stats struct {
	TotalCalls      int64
	TotalRoundTrips int64
	ProxiesCreated  int64
	ActiveProxies   int64
	CurrentDepth    int
	MaxDepth        int
	SlowCalls       int
	AvgCallDuration time.Duration
	HistorySize     int
}

// New creates a Recorder with the provided configuration. The recorder must
// be closed when done if the live watcher is enabled:
//
//	rec, err := refprof.New(refprof.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
func New(cfg Config) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Recorder{
		cfg:     cfg,
		active:  make(map[int64]*CallRecord),
		proxies: make(map[int64]*ProxyRecord),
	}
	r.on.Store(cfg.Enabled)
	if cfg.Enabled {
		r.met = newMeters(cfg)
		if cfg.WatchInterval > 0 {
			r.watch = startWatcher(r, cfg.WatchInterval, cfg.Logger)
		}
	}
	return r, nil
}

// Close stops the live watcher, if any. The recorder itself holds no other
// resources and remains readable after Close.
func (r *Recorder) Close() {
	if r != nil && r.watch != nil {
		r.watch.stop()
	}
}

// Config returns the recorder's configuration.
func (r *Recorder) Config() Config { return r.cfg }

// Enabled reports whether the recorder is recording.
func (r *Recorder) Enabled() bool { return r != nil && r.on.Load() }

// setEnabled flips recording on or off without tearing down state.
func (r *Recorder) setEnabled(v bool) {
	if r != nil {
		r.on.Store(v)
	}
}

// StartCall begins tracking one intercepted operation and returns its call
// id, or 0 when recording is disabled. The parent is the innermost in-flight
// call of the same scope. Every StartCall must be matched by an EndCall with
// the returned id, on every exit path.
func (r *Recorder) StartCall(s *Scope, method string, kind CallKind, onProxy bool, proxyID int64) int64 {
	if r == nil || !r.on.Load() {
		return 0
	}

	// Resolved outside the lock; never fails the call.
	var site string
	if r.cfg.TrackCallSites {
		site = callSite()
	}
	now := time.Now()

	r.mu.Lock()

	r.callSeq++
	id := r.callSeq
	r.totalCalls++
	r.totalRoundTrips++

	var parent int64
	var depth int
	if s != nil {
		depth = len(s.stack)
		if depth > 0 {
			parent = s.stack[depth-1]
		}
	}
	if depth+1 > r.maxDepth {
		r.maxDepth = depth + 1
	}

	rec := &CallRecord{
		ID:       id,
		Start:    now,
		Method:   method,
		Kind:     kind,
		ParentID: parent,
		OnProxy:  onProxy,
		ProxyID:  proxyID,
		Depth:    depth,
		CallSite: site,
		scope:    s,
	}
	r.active[id] = rec
	if s != nil {
		s.stack = append(s.stack, id)
	}

	if onProxy && proxyID != 0 && r.cfg.TrackProxies {
		if p, ok := r.proxies[proxyID]; ok {
			p.Accesses++
			p.LastAccess = now
			if kind == KindCall {
				p.MethodCalls++
			} else {
				p.AttrAccesses++
			}
		}
	}

	r.mu.Unlock()
	return id
}

// EndCall finishes the call with the given id, recording its duration,
// result-proxy linkage, and error text, and moves it into history. The top
// of the call's scope stack is popped whatever it is, so bookkeeping does
// not leak on misuse. Ending an unknown or zero id is a no-op.
func (r *Recorder) EndCall(id int64, resultIsProxy bool, resultProxyID int64, callErr error) {
	if r == nil || !r.on.Load() || id == 0 {
		return
	}
	now := time.Now()

	r.mu.Lock()

	rec, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	rec.Duration = now.Sub(rec.Start)
	rec.ResultIsProxy = resultIsProxy
	rec.ResultProxyID = resultProxyID
	if callErr != nil {
		rec.Err = callErr.Error()
	}

	isSlow := rec.Duration >= r.cfg.SlowCallThreshold
	if isSlow {
		r.slow = append(r.slow, rec)
	}

	if s := rec.scope; s != nil {
		if r.cfg.TrackCallSites && len(s.stack) >= r.cfg.DeepStackThreshold {
			snap := make([]int64, len(s.stack))
			copy(snap, s.stack)
			r.deep = append(r.deep, snap)
		}
		if n := len(s.stack); n > 0 {
			s.stack = s.stack[:n-1]
		}
	}

	delete(r.active, id)
	r.history = append(r.history, rec)

	method, kind, dur := rec.Method, rec.Kind, rec.Duration
	r.mu.Unlock()

	if r.met != nil {
		r.met.recordCall(method, kind, dur, isSlow)
	}
}

// RegisterProxy starts lifecycle tracking for a remote reference and returns
// its proxy id, or 0 when recording or proxy tracking is disabled.
// createdByCallID links the proxy to the call that produced it; pass 0 for
// proxies registered directly, such as a connection root.
func (r *Recorder) RegisterProxy(rem Remote, createdByCallID int64) int64 {
	if r == nil || !r.on.Load() || !r.cfg.TrackProxies {
		return 0
	}

	class := remoteClass(rem)
	now := time.Now()

	r.mu.Lock()
	r.proxySeq++
	id := r.proxySeq
	r.proxiesCreated++
	r.activeProxies++
	r.proxies[id] = &ProxyRecord{
		ID:              id,
		Created:         now,
		Class:           class,
		CreatedByCallID: createdByCallID,
	}
	r.mu.Unlock()

	if r.met != nil {
		r.met.recordProxyCreated()
	}
	return id
}

// UnregisterProxy removes a proxy record and decrements the active count.
// Unknown or zero ids are ignored.
func (r *Recorder) UnregisterProxy(id int64) {
	if r == nil || !r.on.Load() || id == 0 {
		return
	}
	r.mu.Lock()
	_, ok := r.proxies[id]
	if ok {
		delete(r.proxies, id)
		r.activeProxies--
	}
	r.mu.Unlock()

	if ok && r.met != nil {
		r.met.recordProxyReleased()
	}
}

// Stats returns a snapshot of the recorder's counters.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var avg time.Duration
	if len(r.history) > 0 {
		var sum time.Duration
		var n int
		for _, c := range r.history {
			if c.Duration > 0 {
				sum += c.Duration
				n++
			}
		}
		if n > 0 {
			avg = sum / time.Duration(n)
		}
	}

	current := 0
	for _, s := range r.scopes {
		if len(s.stack) > current {
			current = len(s.stack)
		}
	}

	return Stats{
		TotalCalls:      r.totalCalls,
		TotalRoundTrips: r.totalRoundTrips,
		ProxiesCreated:  r.proxiesCreated,
		ActiveProxies:   r.activeProxies,
		CurrentDepth:    current,
		MaxDepth:        r.maxDepth,
		SlowCalls:       len(r.slow),
		AvgCallDuration: avg,
		HistorySize:     len(r.history),
	}
}

// Reset atomically clears all accumulated data: counters, per-scope active
// stacks, history, the proxy table, and the slow-call and deep-stack lists.
// Configuration (thresholds, feature flags) is preserved.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callSeq = 0
	r.proxySeq = 0
	r.totalCalls = 0
	r.totalRoundTrips = 0
	r.proxiesCreated = 0
	r.activeProxies = 0
	r.maxDepth = 0
	r.active = make(map[int64]*CallRecord)
	r.history = nil
	r.proxies = make(map[int64]*ProxyRecord)
	r.slow = nil
	r.deep = nil
	for _, s := range r.scopes {
		s.stack = nil
	}
}

// History returns a snapshot of all finished calls in completion order.
func (r *Recorder) History() []CallRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, len(r.history))
	for i, c := range r.history {
		out[i] = *c
	}
	return out
}

// SlowCalls returns a snapshot of the accumulated slow-call list in
// detection order.
func (r *Recorder) SlowCalls() []CallRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, len(r.slow))
	for i, c := range r.slow {
		out[i] = *c
	}
	return out
}

// Proxies returns a snapshot of all live proxy records, unordered.
func (r *Recorder) Proxies() []ProxyRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProxyRecord, 0, len(r.proxies))
	for _, p := range r.proxies {
		out = append(out, *p)
	}
	return out
}

// DeepStacks returns snapshots of call-id stacks whose depth reached the
// configured deep-stack threshold.
func (r *Recorder) DeepStacks() [][]int64 {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int64, len(r.deep))
	for i, st := range r.deep {
		snap := make([]int64, len(st))
		copy(snap, st)
		out[i] = snap
	}
	return out
}

// longestActive reports the scope holding the oldest in-flight call and how
// long that call has been running. Used by the live watcher.
func (r *Recorder) longestActive() (*Scope, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Scope
	var bestStart time.Time
	for _, s := range r.scopes {
		if len(s.stack) == 0 {
			continue
		}
		rec, ok := r.active[s.stack[0]]
		if !ok {
			continue
		}
		if best == nil || rec.Start.Before(bestStart) {
			best = s
			bestStart = rec.Start
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, time.Since(bestStart), true
}
