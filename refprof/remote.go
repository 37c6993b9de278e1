package refprof

// Remote is the capability this package observes: a local stand-in for a
// value living in another process. Every operation on a Remote costs one
// network round trip. Concrete RPC clients provide this interface through a
// thin adapter (see the grpcref package for one); the profiling layer never
// depends on a concrete RPC implementation.
type Remote interface {
	// Get reads the named attribute. If the remote attribute is itself an
	// object held by reference (including a remote method), the result is
	// again a Remote.
	Get(name string) (any, error)

	// Set writes the named attribute.
	Set(name string, value any) error

	// Invoke calls the remote value as a function.
	Invoke(args ...any) (any, error)

	// RemoteClass returns the best-effort remote class name, or "" when
	// unknown. Implementations must not perform a round trip here.
	RemoteClass() string
}

// Client is the connection-level capability a ProfiledConn wraps: something
// that can hand out a root remote reference and be closed.
type Client interface {
	Root() (Remote, error)
	Close() error
}

// AsRemote reports whether a value produced by a remote operation is itself
// a remote reference.
func AsRemote(v any) (Remote, bool) {
	r, ok := v.(Remote)
	return r, ok
}

func remoteClass(rem Remote) string {
	if rem == nil {
		return "unknown"
	}
	if c := rem.RemoteClass(); c != "" {
		return c
	}
	return "unknown"
}
