package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "vey.pidcore.storage.v1.CAS"

// CASServer is the server API for the CAS gRPC service. Messages are
// protobuf well-known wrappers:
//
//	service CAS {
//	  rpc Put(google.protobuf.BytesValue) returns (google.protobuf.StringValue);
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	  rpc Has(google.protobuf.StringValue) returns (google.protobuf.BoolValue);
//	}
type CASServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

type UnimplementedCASServer struct{}

func (UnimplementedCASServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "Put not implemented")
}

func (UnimplementedCASServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "Get not implemented")
}

func (UnimplementedCASServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "Has not implemented")
}

func RegisterCASServer(s grpc.ServiceRegistrar, srv CASServer) {
	s.RegisterService(&CAS_ServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unary adapts a typed CASServer method to a grpc.MethodHandler.
func unary[In any](name string, newIn func() In, call func(CASServer, context.Context, In) (any, error)) grpc.MethodHandler {
	full := fullMethod(name)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newIn()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(CASServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(In))
		})
	}
}

var CAS_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CASServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Put",
			Handler: unary("Put", func() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) },
				func(s CASServer, ctx context.Context, in *wrapperspb.BytesValue) (any, error) { return s.Put(ctx, in) }),
		},
		{
			MethodName: "Get",
			Handler: unary("Get", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s CASServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) { return s.Get(ctx, in) }),
		},
		{
			MethodName: "Has",
			Handler: unary("Has", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s CASServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) { return s.Has(ctx, in) }),
		},
	},
	Metadata: "vey/pidcore/storage/v1/cas.proto",
}

type CASClient interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type casClient struct{ cc grpc.ClientConnInterface }

func NewCASClient(cc grpc.ClientConnInterface) CASClient { return &casClient{cc: cc} }

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, out *Out, opts []grpc.CallOption) (*Out, error) {
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *casClient) Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke(ctx, c.cc, "Put", in, new(wrapperspb.StringValue), opts)
}

func (c *casClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke(ctx, c.cc, "Get", in, new(wrapperspb.BytesValue), opts)
}

func (c *casClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke(ctx, c.cc, "Has", in, new(wrapperspb.BoolValue), opts)
}
