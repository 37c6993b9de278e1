package refprof

// Scope carries the active-call stack for one logical caller. Nesting,
// parent linkage, and depth are attributed per Scope, so goroutines driving
// separate scopes against one shared recorder never corrupt each other's
// bookkeeping. A profiled connection allocates one Scope and shares it with
// every reference wrapped from it.
//
// All fields are guarded by the owning Recorder's mutex.
type Scope struct {
	stack []int64 // ids of in-flight calls, innermost last
}

// NewScope allocates a fresh active-call stack attributed to one logical
// caller. The scope is tracked by the recorder so Reset can clear it.
func (r *Recorder) NewScope() *Scope {
	s := &Scope{}
	if r == nil || !r.on.Load() {
		return s
	}
	r.mu.Lock()
	r.scopes = append(r.scopes, s)
	r.mu.Unlock()
	return s
}

// Depth returns the scope's current active nesting depth.
func (r *Recorder) Depth(s *Scope) int {
	if r == nil || s == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(s.stack)
}

// ActiveStack returns a snapshot of the scope's in-flight calls, outermost
// first. Records are copies; durations are not yet filled.
func (r *Recorder) ActiveStack(s *Scope) []CallRecord {
	if r == nil || s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(s.stack))
	for _, id := range s.stack {
		if rec, ok := r.active[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}
