package router

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name; clients call its Execute method at
// the full method path "/assay.router.v1.ToolRouter/Execute".
const ServiceName = "assay.router.v1.ToolRouter"

// toolRouterServer is the interface the hand-authored ServiceDesc below
// dispatches to; *Server implements it.
type toolRouterServer interface {
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
}

// executeHandler adapts a unary RPC call to toolRouterServer.Execute. It
// plays the role protoc would normally generate for a unary method: decode
// the request via the codec's dec closure, run any interceptor chain, and
// marshal whatever the handler returns.
func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ExecuteRequest)
	if err := dec(req); err != nil {
		return nil, fmt.Errorf("router: decode request: %w", err)
	}
	if interceptor == nil {
		return srv.(toolRouterServer).Execute(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Execute",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(toolRouterServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-authored equivalent of a protoc-generated
// _ToolRouter_serviceDesc: grpc.Server.RegisterService only needs a
// *grpc.ServiceDesc naming each method and its handler func, it never
// requires the messages to implement proto.Message. Grounded on
// grpc-go's own documented grpc.ServiceDesc/MethodDesc/StreamHandler
// extension points (google.golang.org/grpc), not on any generated stub.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*toolRouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "router.proto",
}

// RegisterToolRouterServer registers srv's Execute method on s under the
// ToolRouter service name, using the codec registered in codec.go.
func RegisterToolRouterServer(s *grpc.Server, srv toolRouterServer) {
	s.RegisterService(&serviceDesc, srv)
}
