package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// PolicyServiceName is the fully qualified gRPC service name
const PolicyServiceName = "placement.policy.v1.PolicyService"

// Full method names of PolicyService
const (
	PolicyService_Authorize_FullMethodName      = "/" + PolicyServiceName + "/Authorize"
	PolicyService_ListRules_FullMethodName      = "/" + PolicyServiceName + "/ListRules"
	PolicyService_ListDefaults_FullMethodName   = "/" + PolicyServiceName + "/ListDefaults"
	PolicyService_SetOverride_FullMethodName    = "/" + PolicyServiceName + "/SetOverride"
	PolicyService_DeleteOverride_FullMethodName = "/" + PolicyServiceName + "/DeleteOverride"
	PolicyService_Version_FullMethodName        = "/" + PolicyServiceName + "/Version"
)

// PolicyServiceServer is the server API for PolicyService. Requests and
// responses are google.protobuf.Struct documents.
type PolicyServiceServer interface {
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListDefaults(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetOverride(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteOverride(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Version(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterPolicyServiceServer registers srv with s
func RegisterPolicyServiceServer(s grpc.ServiceRegistrar, srv PolicyServiceServer) {
	s.RegisterService(&PolicyService_ServiceDesc, srv)
}

// unaryHandler adapts a typed server method to a grpc.MethodDesc handler
func unaryHandler[Req proto.Message, Resp proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(PolicyServiceServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PolicyServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }

// PolicyService_ServiceDesc is the grpc.ServiceDesc for PolicyService
var PolicyService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: PolicyServiceName,
	HandlerType: (*PolicyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Authorize",
			Handler:    unaryHandler(PolicyService_Authorize_FullMethodName, newStruct, PolicyServiceServer.Authorize),
		},
		{
			MethodName: "ListRules",
			Handler:    unaryHandler(PolicyService_ListRules_FullMethodName, newEmpty, PolicyServiceServer.ListRules),
		},
		{
			MethodName: "ListDefaults",
			Handler:    unaryHandler(PolicyService_ListDefaults_FullMethodName, newEmpty, PolicyServiceServer.ListDefaults),
		},
		{
			MethodName: "SetOverride",
			Handler:    unaryHandler(PolicyService_SetOverride_FullMethodName, newStruct, PolicyServiceServer.SetOverride),
		},
		{
			MethodName: "DeleteOverride",
			Handler:    unaryHandler(PolicyService_DeleteOverride_FullMethodName, newStruct, PolicyServiceServer.DeleteOverride),
		},
		{
			MethodName: "Version",
			Handler:    unaryHandler(PolicyService_Version_FullMethodName, newEmpty, PolicyServiceServer.Version),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "placement/policy/v1/policy.proto",
}

// PolicyServiceClient is the client API for PolicyService
type PolicyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyServiceClient creates a client over cc
func NewPolicyServiceClient(cc grpc.ClientConnInterface) *PolicyServiceClient {
	return &PolicyServiceClient{cc: cc}
}

func (c *PolicyServiceClient) Authorize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PolicyService_Authorize_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PolicyServiceClient) ListRules(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PolicyService_ListRules_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PolicyServiceClient) ListDefaults(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PolicyService_ListDefaults_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PolicyServiceClient) SetOverride(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PolicyService_SetOverride_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PolicyServiceClient) DeleteOverride(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, PolicyService_DeleteOverride_FullMethodName, in, &emptypb.Empty{}, opts...)
}

func (c *PolicyServiceClient) Version(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PolicyService_Version_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
