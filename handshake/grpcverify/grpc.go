package grpcverify

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "vey.handshake.v1.Verifier"

// VerifierServer is the server API for the Verifier gRPC service.
//
//	service Verifier {
//	  rpc Verify(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	}
type VerifierServer interface {
	Verify(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

type UnimplementedVerifierServer struct{}

func (UnimplementedVerifierServer) Verify(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Verify not implemented")
}

func RegisterVerifierServer(s grpc.ServiceRegistrar, srv VerifierServer) {
	s.RegisterService(&Verifier_ServiceDesc, srv)
}

type VerifierClient interface {
	Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type verifierClient struct{ cc grpc.ClientConnInterface }

func NewVerifierClient(cc grpc.ClientConnInterface) VerifierClient { return &verifierClient{cc: cc} }

func (c *verifierClient) Verify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Verify", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Verifier_Verify_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerifierServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Verify"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VerifierServer).Verify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var Verifier_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: _Verifier_Verify_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "handshake.proto",
}
