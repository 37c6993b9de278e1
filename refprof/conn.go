package refprof

import "sync"

// ProfiledConn exposes a profiled root reference bound to one recorder. The
// root proxy is registered exactly once, no matter how many times Root is
// called; every call returns a fresh wrapper bound to the same proxy id.
// Everything except Root passes through to the underlying client untouched.
type ProfiledConn struct {
	client Client
	rec    *Recorder
	scope  *Scope

	mu      sync.Mutex
	rootRem Remote
	rootID  int64
}

// NewProfiledConn wraps client so that every operation performed through its
// root reference is reported to rec. A nil rec binds the connection to the
// process-wide default recorder.
func NewProfiledConn(client Client, rec *Recorder) *ProfiledConn {
	if rec == nil {
		rec = Default()
	}
	return &ProfiledConn{
		client: client,
		rec:    rec,
		scope:  rec.NewScope(),
	}
}

// Root returns a profiled wrapper around the client's root reference. The
// underlying root is fetched and registered on first success only; a failed
// fetch is retried on the next call.
func (c *ProfiledConn) Root() (*ProfiledRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rootRem == nil {
		rem, err := c.client.Root()
		if err != nil {
			return nil, err
		}
		c.rootRem = rem
		c.rootID = c.rec.RegisterProxy(rem, 0)
	}
	return &ProfiledRef{rem: c.rootRem, rec: c.rec, scope: c.scope, id: c.rootID, label: "root"}, nil
}

// Recorder returns the recorder this connection reports to.
func (c *ProfiledConn) Recorder() *Recorder { return c.rec }

// Close closes the underlying client. The close itself is not intercepted.
func (c *ProfiledConn) Close() error {
	return c.client.Close()
}
