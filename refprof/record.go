package refprof

import (
	"fmt"
	"time"
)

// CallKind classifies an intercepted operation on a remote reference.
type CallKind string

const (
	// KindGetAttr is an attribute read.
	KindGetAttr CallKind = "getattr"
	// KindSetAttr is an attribute write.
	KindSetAttr CallKind = "setattr"
	// KindCall is an invocation of a remote callable.
	KindCall CallKind = "call"
)

// CallRecord is the log entry for one intercepted operation. Once the call
// has ended the record is immutable and lives in the recorder's history.
type CallRecord struct {
	// ID is unique and monotonically increasing within a recorder session.
	// The zero id is the sentinel returned when recording is disabled.
	ID int64

	Start  time.Time
	Method string
	Kind   CallKind

	// ParentID is the id of the enclosing in-flight call in the same Scope,
	// or 0 for a root call.
	ParentID int64

	// Duration is filled when the call ends.
	Duration time.Duration

	// OnProxy is true when the operation was performed on a tracked proxy,
	// identified by ProxyID.
	OnProxy bool
	ProxyID int64

	// ResultIsProxy is true when the operation produced a remote reference,
	// registered as ResultProxyID (0 when proxy tracking is disabled).
	ResultIsProxy bool
	ResultProxyID int64

	// Err is the text of the error the operation failed with, if any.
	Err string

	// Depth is the active nesting depth of the call's Scope at start.
	Depth int

	// CallSite is a best-effort "file.go:123 in Func" source location of the
	// application code that triggered the call. Empty when unavailable.
	CallSite string

	// scope owns the active stack this call was pushed on. Guarded by the
	// recorder's mutex, like the stack itself.
	scope *Scope
}

func (c CallRecord) String() string {
	if c.Duration > 0 {
		return fmt.Sprintf("%s (%s) [%s]", c.Method, c.Kind, formatDuration(c.Duration))
	}
	return fmt.Sprintf("%s (%s)", c.Method, c.Kind)
}

// ProxyRecord tracks the lifecycle of one remote-reference proxy. Counts are
// non-negative and non-decreasing until the proxy is unregistered or the
// recorder is reset.
type ProxyRecord struct {
	ID      int64
	Created time.Time

	// Class is the best-effort remote class name.
	Class string

	Accesses     int
	MethodCalls  int
	AttrAccesses int
	LastAccess   time.Time

	// CreatedByCallID links the proxy to the call whose result it was, or 0
	// for proxies registered directly (such as a connection root).
	CreatedByCallID int64
}

func (p ProxyRecord) String() string {
	return fmt.Sprintf("Proxy<%s> id=%d age=%s calls=%d attrs=%d",
		p.Class, p.ID, formatDuration(time.Since(p.Created)), p.MethodCalls, p.AttrAccesses)
}
