package router

import (
	"context"

	"github.com/assay-run/assay/internal/policy"
)

// ExecuteRequest is the tool-call interception RPC's request message.
// Adapted from the teacher's pkg/router/handler.go ExecuteRequest, which
// carried a separate RequestMetadata struct duplicating agent-identity
// fields the engine already defines on policy.AgentContext; this reuses
// AgentContext directly instead of re-declaring AgentType/SandboxID/etc.
type ExecuteRequest struct {
	// RequestID is the caller-supplied JSON-RPC style request id,
	// threaded onto the decision event (C12) so an allow/deny can be
	// correlated back to the originating call.
	RequestID string `json:"requestId,omitempty"`

	Agent      policy.AgentContext    `json:"agent"`
	ToolName   string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ExecuteResponse is the tool-call interception RPC's response message.
type ExecuteResponse struct {
	Allowed  bool        `json:"allowed"`
	Decision string      `json:"decision"`
	Code     string      `json:"code,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ToolExecutor performs the actual tool invocation once policy has
// allowed it. Implementations dispatch into the sandboxed runtime; the
// router never executes tool logic itself.
type ToolExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) (interface{}, error)
}
