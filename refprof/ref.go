package refprof

// ProfiledRef wraps exactly one remote reference and reports every Get, Set,
// and Invoke to its recorder before forwarding to the underlying Remote.
// Wrappers are cheap and created fresh on every access; results that are
// themselves remote references come back wrapped, registered, and linked to
// the call that produced them.
//
// ProfiledRef implements Remote, so profiled and unprofiled references are
// interchangeable to application code.
type ProfiledRef struct {
	rem   Remote
	rec   *Recorder
	scope *Scope
	id    int64

	// label names the attribute this reference was resolved from, used as
	// the method name when the reference is invoked.
	label string
}

// Wrap registers rem with the recorder and returns a profiled wrapper around
// it with a fresh Scope. Use this to profile a reference obtained outside a
// ProfiledConn.
func Wrap(rem Remote, rec *Recorder) *ProfiledRef {
	scope := rec.NewScope()
	id := rec.RegisterProxy(rem, 0)
	return &ProfiledRef{rem: rem, rec: rec, scope: scope, id: id, label: "root"}
}

// ProxyID returns the wrapper's proxy id in the recorder, or 0 when proxy
// tracking is disabled.
func (p *ProfiledRef) ProxyID() int64 { return p.id }

// Get reads the named attribute through the underlying reference, recording
// one attribute-get round trip. A result that is itself a remote reference
// is registered and returned wrapped.
func (p *ProfiledRef) Get(name string) (any, error) {
	id := p.rec.StartCall(p.scope, "getattr("+name+")", KindGetAttr, true, p.id)

	v, err := p.rem.Get(name)
	if err != nil {
		p.rec.EndCall(id, false, 0, err)
		return nil, err
	}

	if rem, ok := AsRemote(v); ok {
		rid := p.rec.RegisterProxy(rem, id)
		p.rec.EndCall(id, true, rid, nil)
		return &ProfiledRef{rem: rem, rec: p.rec, scope: p.scope, id: rid, label: name}, nil
	}

	p.rec.EndCall(id, false, 0, nil)
	return v, nil
}

// Set writes the named attribute through the underlying reference, recording
// one attribute-set round trip.
func (p *ProfiledRef) Set(name string, value any) error {
	id := p.rec.StartCall(p.scope, "setattr("+name+")", KindSetAttr, true, p.id)

	err := p.rem.Set(name, value)
	p.rec.EndCall(id, false, 0, err)
	return err
}

// Invoke calls the underlying reference, recording one invocation round
// trip. Note that resolving a remote method with Get and then calling it
// costs two round trips, and is recorded as two calls.
func (p *ProfiledRef) Invoke(args ...any) (any, error) {
	id := p.rec.StartCall(p.scope, p.label, KindCall, true, p.id)

	v, err := p.rem.Invoke(args...)
	if err != nil {
		p.rec.EndCall(id, false, 0, err)
		return nil, err
	}

	if rem, ok := AsRemote(v); ok {
		rid := p.rec.RegisterProxy(rem, id)
		p.rec.EndCall(id, true, rid, nil)
		return &ProfiledRef{rem: rem, rec: p.rec, scope: p.scope, id: rid, label: p.label + "()"}, nil
	}

	p.rec.EndCall(id, false, 0, nil)
	return v, nil
}

// RemoteClass passes through to the underlying reference.
func (p *ProfiledRef) RemoteClass() string { return p.rem.RemoteClass() }

// Release unregisters the wrapper's proxy record. The underlying reference
// stays usable; only lifecycle tracking stops.
func (p *ProfiledRef) Release() {
	p.rec.UnregisterProxy(p.id)
}

var _ Remote = (*ProfiledRef)(nil)
