package router

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/assay-run/assay/internal/decision"
	"github.com/assay-run/assay/internal/policy"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Policy         PolicyConfig
	Emitter        decision.Emitter // decision events (C12); defaults to decision.NullEmitter
	MaxRecvMsgSize int
	MaxSendMsgSize int
}

// Server is the tool-call interception gRPC front door: every Execute
// call that names a tool is evaluated against the policy engine, emits
// exactly one decision event, and only on allow is dispatched to the
// ToolExecutor. A call without a tool name is rejected with
// InvalidArgument before any decision event is staged.
//
// Adapted from the teacher's pkg/router/server.go, which depended on a
// protoc-generated agentpb package this module never had (see
// DESIGN.md). RegisterToolRouterServer/serviceDesc (service.go) and
// jsonCodec (codec.go) replace that generated stub with grpc-go's own
// ServiceDesc/Codec extension points, so google.golang.org/grpc is still
// genuinely exercised without any fabricated dependency.
type Server struct {
	policy       *RouterPolicyIntegration
	toolExecutor ToolExecutor
	emitter      decision.Emitter
	grpcServer   *grpc.Server
}

// NewServer builds a Server. Without a SetToolExecutor call, denied calls
// still get a deny response, while allowed calls emit their allow decision
// event and then fail with FailedPrecondition ("no tool executor
// configured").
func NewServer(config ServerConfig) *Server {
	emitter := config.Emitter
	if emitter == nil {
		emitter = decision.NullEmitter{}
	}

	opts := []grpc.ServerOption{}
	if config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(config.MaxRecvMsgSize))
	}
	if config.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(config.MaxSendMsgSize))
	}

	s := &Server{
		policy:     NewRouterPolicyIntegration(config.Policy),
		emitter:    emitter,
		grpcServer: grpc.NewServer(opts...),
	}
	RegisterToolRouterServer(s.grpcServer, s)
	return s
}

// NewServerWithEngine builds a Server sharing an existing policy engine,
// the shape internal/controller's PackReconciler also loads policies
// into.
func NewServerWithEngine(engine *policy.Engine, emitter decision.Emitter, executor ToolExecutor) *Server {
	if emitter == nil {
		emitter = decision.NullEmitter{}
	}
	s := &Server{
		policy:       NewRouterPolicyIntegrationWithEngine(engine),
		toolExecutor: executor,
		emitter:      emitter,
		grpcServer:   grpc.NewServer(),
	}
	RegisterToolRouterServer(s.grpcServer, s)
	return s
}

// SetToolExecutor installs the executor dispatched to on allow.
func (s *Server) SetToolExecutor(executor ToolExecutor) { s.toolExecutor = executor }

// LoadPolicy installs a compiled policy for agentType.
func (s *Server) LoadPolicy(agentType string, p *policy.Policy) {
	s.policy.LoadPolicy(agentType, p)
}

// Serve blocks, accepting connections on lis until GracefulStop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop stops accepting new RPCs and waits for pending ones to finish.
func (s *Server) GracefulStop() { s.grpcServer.GracefulStop() }

// Execute implements toolRouterServer: evaluate policy, emit a decision
// event for the attempt, and dispatch to the tool executor on allow.
func (s *Server) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	if req.ToolName == "" {
		return nil, status.Error(codes.InvalidArgument, "router: toolName is required")
	}

	toolCallID := req.RequestID
	if toolCallID == "" {
		toolCallID = req.Agent.SessionID
	}
	guard := decision.NewGuard(s.emitter, "router", toolCallID, req.ToolName)
	defer guard.Close()
	if req.RequestID != "" {
		guard.SetRequestID(req.RequestID)
	}

	result, err := s.policy.Evaluate(ctx, req.Agent, req.ToolName, req.Parameters)
	if err != nil {
		guard.EmitError("E_INTERNAL", err.Error())
		return nil, status.Errorf(codes.Internal, "router: policy evaluation failed: %v", err)
	}

	if result.Decision == policy.Deny {
		guard.EmitDeny(result.Code, result.Reason)
		return &ExecuteResponse{
			Allowed:  false,
			Decision: result.Decision.String(),
			Code:     result.Code,
			Reason:   result.Reason,
		}, nil
	}

	reasonCode := result.Code
	if reasonCode == "" {
		reasonCode = "E_ALLOWED"
	}
	guard.EmitAllow(reasonCode)

	if s.toolExecutor == nil {
		return nil, status.Error(codes.FailedPrecondition, "router: no tool executor configured")
	}

	out, err := s.toolExecutor.Execute(ctx, *req)
	if err != nil {
		return &ExecuteResponse{
			Allowed:  true,
			Decision: result.Decision.String(),
			Code:     result.Code,
			Error:    err.Error(),
		}, nil
	}

	return &ExecuteResponse{
		Allowed:  true,
		Decision: result.Decision.String(),
		Code:     result.Code,
		Result:   out,
	}, nil
}

// String renders a short status line for logging/health endpoints.
func (s *Server) String() string {
	return fmt.Sprintf("router.Server{mode=%s, policies=%d}", s.policy.Mode(), len(s.policy.Engine().ListPolicies()))
}
