package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.correlator.v1.Correlator"

const (
	methodCorrelateAlert = "/" + ServiceName + "/CorrelateAlert"
	methodRunDiscovery   = "/" + ServiceName + "/RunDiscovery"
	methodHealthCheck    = "/" + ServiceName + "/HealthCheck"
)

// CorrelatorServer is the server API for the Correlator service.
type CorrelatorServer interface {
	CorrelateAlert(context.Context, *CorrelateAlertRequest) (*CorrelateAlertResponse, error)
	RunDiscovery(context.Context, *RunDiscoveryRequest) (*RunDiscoveryResponse, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
}

// UnimplementedCorrelatorServer can be embedded for forward compatibility.
type UnimplementedCorrelatorServer struct{}

func (UnimplementedCorrelatorServer) CorrelateAlert(context.Context, *CorrelateAlertRequest) (*CorrelateAlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CorrelateAlert not implemented")
}

func (UnimplementedCorrelatorServer) RunDiscovery(context.Context, *RunDiscoveryRequest) (*RunDiscoveryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RunDiscovery not implemented")
}

func (UnimplementedCorrelatorServer) HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method HealthCheck not implemented")
}

// RegisterCorrelatorServer registers srv on s.
func RegisterCorrelatorServer(s grpc.ServiceRegistrar, srv CorrelatorServer) {
	s.RegisterService(&CorrelatorServiceDesc, srv)
}

// CorrelatorServiceDesc describes the Correlator service for grpc.Server.
var CorrelatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CorrelatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CorrelateAlert", Handler: correlateAlertHandler},
		{MethodName: "RunDiscovery", Handler: runDiscoveryHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/correlator/v1/correlator.json",
}

func correlateAlertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CorrelateAlertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CorrelatorServer).CorrelateAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCorrelateAlert}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CorrelatorServer).CorrelateAlert(ctx, req.(*CorrelateAlertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func runDiscoveryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunDiscoveryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CorrelatorServer).RunDiscovery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRunDiscovery}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CorrelatorServer).RunDiscovery(ctx, req.(*RunDiscoveryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CorrelatorServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHealthCheck}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CorrelatorServer).HealthCheck(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CorrelatorClient is the client API for the Correlator service.
type CorrelatorClient struct {
	cc grpc.ClientConnInterface
}

// NewCorrelatorClient wraps a connection. Calls always use the JSON codec.
func NewCorrelatorClient(cc grpc.ClientConnInterface) *CorrelatorClient {
	return &CorrelatorClient{cc: cc}
}

func (c *CorrelatorClient) CorrelateAlert(ctx context.Context, in *CorrelateAlertRequest, opts ...grpc.CallOption) (*CorrelateAlertResponse, error) {
	out := new(CorrelateAlertResponse)
	if err := c.cc.Invoke(ctx, methodCorrelateAlert, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CorrelatorClient) RunDiscovery(ctx context.Context, in *RunDiscoveryRequest, opts ...grpc.CallOption) (*RunDiscoveryResponse, error) {
	out := new(RunDiscoveryResponse)
	if err := c.cc.Invoke(ctx, methodRunDiscovery, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CorrelatorClient) HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.cc.Invoke(ctx, methodHealthCheck, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
