package grpcref

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Broker is the server half of the object-broker protocol. It holds a table
// of live object handles rooted at one registered Go value and resolves
// attribute and invocation requests by reflection.
type Broker struct {
	mu      sync.Mutex
	next    uint64
	objects map[uint64]reflect.Value
	root    uint64
}

// NewBroker exposes root (and, transitively, everything reachable from it)
// through the broker protocol. Pass a pointer so attribute sets and
// pointer-receiver methods resolve.
func NewBroker(root any) *Broker {
	b := &Broker{objects: make(map[uint64]reflect.Value)}
	b.root, _ = b.register(reflect.ValueOf(root))
	return b
}

// RegisterBroker registers the broker service on a gRPC server.
func RegisterBroker(s grpc.ServiceRegistrar, b *Broker) {
	s.RegisterService(&brokerServiceDesc, b)
}

func (b *Broker) register(v reflect.Value) (uint64, string) {
	class := remoteClassName(v)
	b.mu.Lock()
	b.next++
	h := b.next
	b.objects[h] = v
	b.mu.Unlock()
	return h, class
}

func (b *Broker) lookup(h uint64) (reflect.Value, error) {
	b.mu.Lock()
	v, ok := b.objects[h]
	b.mu.Unlock()
	if !ok {
		return reflect.Value{}, status.Errorf(codes.NotFound, "unknown handle %d", h)
	}
	return v, nil
}

func remoteClassName(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

// passByValue reports whether a result travels inline. Only JSON scalars do;
// everything else stays server-side behind a handle, preserving the
// one-round-trip-per-operation cost model.
func passByValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Interface:
		return passByValue(v.Elem())
	}
	return false
}

func (b *Broker) encodeResult(v reflect.Value) (*valueResponse, error) {
	if !v.IsValid() {
		return &valueResponse{}, nil
	}
	if passByValue(v) {
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode result: %v", err)
		}
		return &valueResponse{Value: raw}, nil
	}
	h, class := b.register(v)
	return &valueResponse{ByRef: true, Handle: h, Class: class}, nil
}

func (b *Broker) rootRef(ctx context.Context, _ *rootRequest) (*valueResponse, error) {
	v, err := b.lookup(b.root)
	if err != nil {
		return nil, err
	}
	return &valueResponse{ByRef: true, Handle: b.root, Class: remoteClassName(v)}, nil
}

func (b *Broker) get(ctx context.Context, req *getRequest) (*valueResponse, error) {
	obj, err := b.lookup(req.Handle)
	if err != nil {
		return nil, err
	}

	// Methods first: resolving a remote method yields a callable handle.
	if m := obj.MethodByName(req.Name); m.IsValid() {
		h, class := b.register(m)
		return &valueResponse{ByRef: true, Handle: h, Class: class}, nil
	}

	elem := reflect.Indirect(obj)
	switch elem.Kind() {
	case reflect.Struct:
		if f := elem.FieldByName(req.Name); f.IsValid() && f.CanInterface() {
			return b.encodeResult(f)
		}
	case reflect.Map:
		if elem.Type().Key().Kind() == reflect.String {
			if v := elem.MapIndex(reflect.ValueOf(req.Name)); v.IsValid() {
				return b.encodeResult(v)
			}
		}
	}
	return nil, status.Errorf(codes.NotFound, "%s has no attribute %q", remoteClassName(obj), req.Name)
}

func (b *Broker) set(ctx context.Context, req *setRequest) (*valueResponse, error) {
	obj, err := b.lookup(req.Handle)
	if err != nil {
		return nil, err
	}

	elem := reflect.Indirect(obj)
	if elem.Kind() != reflect.Struct {
		return nil, status.Errorf(codes.InvalidArgument, "%s is not settable", remoteClassName(obj))
	}
	f := elem.FieldByName(req.Name)
	if !f.IsValid() || !f.CanSet() {
		return nil, status.Errorf(codes.NotFound, "%s has no settable attribute %q", remoteClassName(obj), req.Name)
	}

	nv := reflect.New(f.Type())
	if err := json.Unmarshal(req.Value, nv.Interface()); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode value for %q: %v", req.Name, err)
	}
	f.Set(nv.Elem())
	return &valueResponse{}, nil
}

func (b *Broker) invoke(ctx context.Context, req *invokeRequest) (resp *valueResponse, err error) {
	obj, lerr := b.lookup(req.Handle)
	if lerr != nil {
		return nil, lerr
	}
	if obj.Kind() != reflect.Func {
		return nil, status.Errorf(codes.InvalidArgument, "%s is not callable", remoteClassName(obj))
	}

	ft := obj.Type()
	if ft.IsVariadic() {
		if len(req.Args) < ft.NumIn()-1 {
			return nil, status.Errorf(codes.InvalidArgument, "want at least %d args, got %d", ft.NumIn()-1, len(req.Args))
		}
	} else if len(req.Args) != ft.NumIn() {
		return nil, status.Errorf(codes.InvalidArgument, "want %d args, got %d", ft.NumIn(), len(req.Args))
	}

	in := make([]reflect.Value, len(req.Args))
	for i, raw := range req.Args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		pv := reflect.New(pt)
		if uerr := json.Unmarshal(raw, pv.Interface()); uerr != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode arg %d: %v", i, uerr)
		}
		in[i] = pv.Elem()
	}

	// A panicking remote method is an operational error for the caller, not
	// a server crash.
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = status.Errorf(codes.Internal, "remote call panicked: %v", p)
		}
	}()
	outs := obj.Call(in)

	// Trailing error return propagates as the RPC error.
	if n := len(outs); n > 0 {
		if last := outs[n-1]; last.Type() == errType {
			outs = outs[:n-1]
			if !last.IsNil() {
				return nil, status.Errorf(codes.Unknown, "%v", last.Interface())
			}
		}
	}

	switch len(outs) {
	case 0:
		return &valueResponse{}, nil
	case 1:
		return b.encodeResult(outs[0])
	default:
		return nil, status.Errorf(codes.Unimplemented, "multiple return values not supported")
	}
}

func (b *Broker) release(ctx context.Context, req *releaseRequest) (*valueResponse, error) {
	b.mu.Lock()
	delete(b.objects, req.Handle)
	b.mu.Unlock()
	return &valueResponse{}, nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// brokerService is the handler contract the service descriptor type-checks
// registrations against.
type brokerService interface {
	rootRef(ctx context.Context, req *rootRequest) (*valueResponse, error)
	get(ctx context.Context, req *getRequest) (*valueResponse, error)
	set(ctx context.Context, req *setRequest) (*valueResponse, error)
	invoke(ctx context.Context, req *invokeRequest) (*valueResponse, error)
	release(ctx context.Context, req *releaseRequest) (*valueResponse, error)
}

var _ brokerService = (*Broker)(nil)

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*brokerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Root", Handler: rootHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Release", Handler: releaseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpcref/server.go",
}

func rootHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rootRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerService).rootRef(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRoot}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(brokerService).rootRef(ctx, req.(*rootRequest))
	})
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(getRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerService).get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGet}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(brokerService).get(ctx, req.(*getRequest))
	})
}

func setHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(setRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerService).set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSet}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(brokerService).set(ctx, req.(*setRequest))
	})
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(invokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerService).invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInvoke}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(brokerService).invoke(ctx, req.(*invokeRequest))
	})
}

func releaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(releaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerService).release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRelease}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(brokerService).release(ctx, req.(*releaseRequest))
	})
}

