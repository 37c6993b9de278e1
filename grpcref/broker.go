// Package grpcref adapts the refprof remote-reference capability onto gRPC.
//
// The server side exposes a registered Go object graph as an "object broker"
// service: attribute gets, sets, invocations, and handle releases are generic
// unary RPCs carrying JSON payloads. The client side implements
// refprof.Remote and refprof.Client, so a connection can be profiled with
// refprof.NewProfiledConn without the profiling layer knowing gRPC exists.
//
// Primitive results travel by value; everything else (structs, maps, slices,
// and remote methods) stays on the server and comes back as a new handle,
// costing one round trip per subsequent operation, exactly the cost model
// refprof accounts for.
package grpcref

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"github.com/patrickkidd/rpycbench/refprof"
)

const (
	serviceName = "rpycbench.ObjectBroker"

	methodRoot    = "/" + serviceName + "/Root"
	methodGet     = "/" + serviceName + "/Get"
	methodSet     = "/" + serviceName + "/Set"
	methodInvoke  = "/" + serviceName + "/Invoke"
	methodRelease = "/" + serviceName + "/Release"
)

type rootRequest struct{}

type getRequest struct {
	Handle uint64 `json:"handle"`
	Name   string `json:"name"`
}

type setRequest struct {
	Handle uint64          `json:"handle"`
	Name   string          `json:"name"`
	Value  json.RawMessage `json:"value"`
}

type invokeRequest struct {
	Handle uint64            `json:"handle"`
	Args   []json.RawMessage `json:"args"`
}

type releaseRequest struct {
	Handle uint64 `json:"handle"`
}

// valueResponse carries every broker result: either an inline JSON value or
// a handle to a server-held object.
type valueResponse struct {
	ByRef  bool            `json:"by_ref"`
	Handle uint64          `json:"handle,omitempty"`
	Class  string          `json:"class,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Client speaks the broker protocol over one gRPC connection. It implements
// refprof.Client.
type Client struct {
	cc      *grpc.ClientConn
	ownConn bool
}

// Dial connects to a broker server. Like grpc.NewClient, it does no I/O; the
// connection is established lazily.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcref dial: %w", err)
	}
	return &Client{cc: cc, ownConn: true}, nil
}

// NewClient wraps an existing gRPC connection. Close does not close a
// connection the caller owns.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

// Root fetches the broker's root object reference.
func (c *Client) Root() (refprof.Remote, error) {
	var resp valueResponse
	if err := c.invoke(methodRoot, &rootRequest{}, &resp); err != nil {
		return nil, err
	}
	if !resp.ByRef {
		return nil, fmt.Errorf("grpcref: broker returned root by value")
	}
	return &Ref{c: c, handle: resp.Handle, class: resp.Class}, nil
}

// Close closes the underlying connection if this client dialed it.
func (c *Client) Close() error {
	if c.ownConn {
		return c.cc.Close()
	}
	return nil
}

func (c *Client) invoke(method string, req, resp any) error {
	return c.cc.Invoke(context.Background(), method, req, resp, grpc.CallContentSubtype(codecName))
}

// decodeValue maps a broker response onto the refprof value model: a
// by-reference result becomes a Ref (and therefore a refprof.Remote), a
// by-value result is decoded JSON.
func (c *Client) decodeValue(resp *valueResponse) (any, error) {
	if resp.ByRef {
		return &Ref{c: c, handle: resp.Handle, class: resp.Class}, nil
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(resp.Value, &v); err != nil {
		return nil, fmt.Errorf("grpcref: decode result: %w", err)
	}
	return v, nil
}

// Ref is one handle to a server-held object. Every operation is one unary
// RPC, one network round trip. Ref implements refprof.Remote.
type Ref struct {
	c      *Client
	handle uint64
	class  string
}

// Get reads the named attribute of the remote object.
func (r *Ref) Get(name string) (any, error) {
	var resp valueResponse
	if err := r.c.invoke(methodGet, &getRequest{Handle: r.handle, Name: name}, &resp); err != nil {
		return nil, err
	}
	return r.c.decodeValue(&resp)
}

// Set writes the named attribute of the remote object.
func (r *Ref) Set(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("grpcref: encode value: %w", err)
	}
	var resp valueResponse
	return r.c.invoke(methodSet, &setRequest{Handle: r.handle, Name: name, Value: raw}, &resp)
}

// Invoke calls the remote object as a function.
func (r *Ref) Invoke(args ...any) (any, error) {
	req := invokeRequest{Handle: r.handle, Args: make([]json.RawMessage, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("grpcref: encode arg %d: %w", i, err)
		}
		req.Args[i] = raw
	}
	var resp valueResponse
	if err := r.c.invoke(methodInvoke, &req, &resp); err != nil {
		return nil, err
	}
	return r.c.decodeValue(&resp)
}

// RemoteClass returns the remote type name captured when the handle was
// created. No round trip.
func (r *Ref) RemoteClass() string { return r.class }

// Release drops the server-side handle. The Ref must not be used afterwards.
func (r *Ref) Release() error {
	var resp valueResponse
	return r.c.invoke(methodRelease, &releaseRequest{Handle: r.handle}, &resp)
}

var (
	_ refprof.Remote = (*Ref)(nil)
	_ refprof.Client = (*Client)(nil)
)
