// Package transport implements the reliable typed publish/subscribe/
// queryable-get contract spec.md §1 and §6.2 require, over gRPC. The
// original implementation used zenoh; gRPC point-to-point calls satisfy the
// same contract here, addressed by the peer's network address the way the
// teacher's Registrar/Tracer pair addresses workers (master/registrar.go,
// worker/distributed/main.go).
//
// Every call carries a routing key alongside its payload, packed into a
// single wrapperspb.BytesValue (the teacher's generated comms types aren't
// available to imitate directly here, so the ServiceDesc below is
// hand-written to the same shape protoc-gen-go-grpc produces).
package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName    = "steadyum.Transport"
	publishMethod  = "/steadyum.Transport/Publish"
	queryMethod    = "/steadyum.Transport/Query"
)

// TransportServer is implemented by whatever answers inbound Publish and
// Query calls; Node below is the only implementation.
type TransportServer interface {
	Publish(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Query(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// TransportClient is the client-side stub, mirroring the shape of a
// generated comms.XClient (compare comms.NewRegistrationClient in the
// teacher).
type TransportClient interface {
	Publish(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Query(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type transportClient struct {
	cc grpc.ClientConnInterface
}

// NewTransportClient constructs a client stub over an established
// connection, mirroring comms.NewRegistrationClient/NewTraceClient.
func NewTransportClient(cc grpc.ClientConnInterface) TransportClient {
	return &transportClient{cc: cc}
}

func (c *transportClient) Publish(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, publishMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *transportClient) Query(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, queryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Transport_Publish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransportServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: publishMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TransportServer).Publish(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Transport_Query_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransportServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: queryMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TransportServer).Query(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// transportServiceDesc mirrors the grpc.ServiceDesc a protoc-gen-go-grpc run
// would produce for a service with two unary methods.
var transportServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: _Transport_Publish_Handler},
		{MethodName: "Query", Handler: _Transport_Query_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "steadyum/transport.proto",
}

// RegisterTransportServer registers srv on s, mirroring
// comms.RegisterRegistrationServer/RegisterTraceServer.
func RegisterTransportServer(s grpc.ServiceRegistrar, srv TransportServer) {
	s.RegisterService(&transportServiceDesc, srv)
}
