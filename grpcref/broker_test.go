package grpcref

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/patrickkidd/rpycbench/refprof"
)

type calculator struct {
	Name    string
	Memory  float64
	history []string
}

func (c *calculator) Add(a, b float64) float64 { return a + b }

func (c *calculator) Store(v float64) { c.Memory = v }

func (c *calculator) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *calculator) Crash() { panic("made to fail") }

func (c *calculator) History() []string { return c.history }

func startBroker(t *testing.T, root any) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterBroker(srv, NewBroker(root))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { cc.Close() })
	return NewClient(cc)
}

func TestRootClass(t *testing.T) {
	c := startBroker(t, &calculator{Name: "calc"})

	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := root.RemoteClass(); got != "*grpcref.calculator" {
		t.Errorf("RemoteClass = %q", got)
	}
}

func TestFieldGet(t *testing.T) {
	c := startBroker(t, &calculator{Name: "calc", Memory: 12.5})
	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	name, err := root.Get("Name")
	if err != nil {
		t.Fatalf("Get(Name): %v", err)
	}
	if name != "calc" {
		t.Errorf("Name = %v", name)
	}

	// JSON numbers decode as float64
	mem, err := root.Get("Memory")
	if err != nil {
		t.Fatalf("Get(Memory): %v", err)
	}
	if mem != float64(12.5) {
		t.Errorf("Memory = %v (%T)", mem, mem)
	}
}

func TestMethodResolveAndInvoke(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	add, err := root.Get("Add")
	if err != nil {
		t.Fatalf("Get(Add): %v", err)
	}
	method, ok := refprof.AsRemote(add)
	if !ok {
		t.Fatalf("method came back by value: %T", add)
	}

	sum, err := method.Invoke(2, 3)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if sum != float64(5) {
		t.Errorf("Add(2, 3) = %v (%T)", sum, sum)
	}
}

func TestSetThenGet(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, err := c.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	if err := root.Set("Memory", 42.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mem, err := root.Get("Memory")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if mem != float64(42) {
		t.Errorf("Memory = %v", mem)
	}
}

func TestRemoteErrorPropagates(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, _ := c.Root()

	div, err := root.Get("Divide")
	if err != nil {
		t.Fatalf("Get(Divide): %v", err)
	}
	method, _ := refprof.AsRemote(div)

	if _, err := method.Invoke(1, 0); err == nil {
		t.Fatal("expected division error")
	} else if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("error = %v", err)
	}

	// success path through the same handle still works
	q, err := method.Invoke(10, 4)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if q != float64(2.5) {
		t.Errorf("Divide(10, 4) = %v", q)
	}
}

func TestRemotePanicBecomesError(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, _ := c.Root()

	crash, err := root.Get("Crash")
	if err != nil {
		t.Fatalf("Get(Crash): %v", err)
	}
	method, _ := refprof.AsRemote(crash)

	_, err = method.Invoke()
	if err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}

	// the server survived
	if _, err := c.Root(); err != nil {
		t.Fatalf("server dead after remote panic: %v", err)
	}
}

func TestUnknownAttribute(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, _ := c.Root()

	_, err := root.Get("NoSuch")
	if err == nil {
		t.Fatal("expected error for unknown attribute")
	}
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}

func TestNonScalarComesBackByReference(t *testing.T) {
	c := startBroker(t, &calculator{history: []string{"1+1"}})
	root, _ := c.Root()

	hist, err := root.Get("History")
	if err != nil {
		t.Fatalf("Get(History): %v", err)
	}
	method, ok := refprof.AsRemote(hist)
	if !ok {
		t.Fatalf("method by value: %T", hist)
	}
	out, err := method.Invoke()
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if _, ok := refprof.AsRemote(out); !ok {
		t.Errorf("slice result should travel by reference, got %T", out)
	}
}

func TestReleaseInvalidatesHandle(t *testing.T) {
	c := startBroker(t, &calculator{})
	root, _ := c.Root()

	add, err := root.Get("Add")
	if err != nil {
		t.Fatalf("Get(Add): %v", err)
	}
	method := add.(*Ref)

	if err := method.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := method.Invoke(1, 2); status.Code(err) != codes.NotFound {
		t.Errorf("released handle code = %v, want NotFound", status.Code(err))
	}
}

func TestProfiledConnOverBroker(t *testing.T) {
	c := startBroker(t, &calculator{Name: "calc"})

	cfg := refprof.DefaultConfig()
	cfg.SlowCallThreshold = time.Second
	rec, err := refprof.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rec.Close()

	conn := refprof.NewProfiledConn(c, rec)
	root, err := conn.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	add, err := root.Get("Add")
	if err != nil {
		t.Fatalf("Get(Add): %v", err)
	}
	sum, err := add.(*refprof.ProfiledRef).Invoke(2, 3)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if sum != float64(5) {
		t.Errorf("Add(2, 3) = %v", sum)
	}

	// one call to resolve the method, one to invoke it
	stats := rec.Stats()
	if stats.TotalCalls != 2 || stats.TotalRoundTrips != 2 {
		t.Errorf("calls=%d roundTrips=%d, want 2/2", stats.TotalCalls, stats.TotalRoundTrips)
	}

	history := rec.History()
	if len(history) != 2 {
		t.Fatalf("history = %d records", len(history))
	}
	if history[0].Method != "getattr(Add)" || history[0].Kind != refprof.KindGetAttr {
		t.Errorf("first record = %s (%s)", history[0].Method, history[0].Kind)
	}
	if history[1].Method != "Add" || history[1].Kind != refprof.KindCall {
		t.Errorf("second record = %s (%s)", history[1].Method, history[1].Kind)
	}
}
