// Package decision implements the decision event model and emitter guard
// (C12): every tool-call attempt produces exactly one CloudEvents-shaped
// assay.tool.decision event. Grounded on
// original_source/crates/assay-core/src/mcp/decision.rs.
package decision

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal decision for a tool call.
type Outcome string

const (
	Allow Outcome = "allow"
	Deny  Outcome = "deny"
	Error Outcome = "error"
)

// Reason code constants, stable string prefixes per spec.md §7: P_ (policy),
// M_ (mandate), S_ (system), T_ (timeout/exec).
const (
	PPolicyDeny      = "P_POLICY_DENY"
	PToolDenied      = "P_TOOL_DENIED"
	PToolNotAllowed  = "P_TOOL_NOT_ALLOWED"
	PArgSchema       = "P_ARG_SCHEMA"
	PRateLimit       = "P_RATE_LIMIT"
	PToolDrift       = "P_TOOL_DRIFT"
	PMandateRequired = "P_MANDATE_REQUIRED"
	PMandateValid    = "P_MANDATE_VALID"

	MExpired               = "M_EXPIRED"
	MNotYetValid           = "M_NOT_YET_VALID"
	MNonceReplay           = "M_NONCE_REPLAY"
	MAlreadyUsed           = "M_ALREADY_USED"
	MMaxUsesExceeded       = "M_MAX_USES_EXCEEDED"
	MToolNotInScope        = "M_TOOL_NOT_IN_SCOPE"
	MKindMismatch          = "M_KIND_MISMATCH"
	MAudienceMismatch      = "M_AUDIENCE_MISMATCH"
	MIssuerNotTrusted      = "M_ISSUER_NOT_TRUSTED"
	MTransactionRefMismatch = "M_TRANSACTION_REF_MISMATCH"
	MNotFound              = "M_NOT_FOUND"

	SDBError       = "S_DB_ERROR"
	SInternalError = "S_INTERNAL_ERROR"

	TTimeout   = "T_TIMEOUT"
	TExecError = "T_EXEC_ERROR"
)

// Data is the CloudEvents `data` payload for a decision event.
type Data struct {
	Tool                string      `json:"tool"`
	Decision            Outcome     `json:"decision"`
	ReasonCode          string      `json:"reason_code"`
	Reason              *string     `json:"reason,omitempty"`
	ToolCallID          string      `json:"tool_call_id"`
	RequestID           interface{} `json:"request_id,omitempty"`
	MandateID           *string     `json:"mandate_id,omitempty"`
	UseID               *string     `json:"use_id,omitempty"`
	UseCount            *uint32     `json:"use_count,omitempty"`
	MandateScopeMatch   *bool       `json:"mandate_scope_match,omitempty"`
	MandateKindMatch    *bool       `json:"mandate_kind_match,omitempty"`
	TransactionRefMatch *bool       `json:"transaction_ref_match,omitempty"`
	AuthzLatencyMS      *uint64     `json:"authz_latency_ms,omitempty"`
	StoreLatencyMS      *uint64     `json:"store_latency_ms,omitempty"`
}

// Event is a CloudEvents 1.0 envelope of type assay.tool.decision.
type Event struct {
	SpecVersion string `json:"specversion"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	Time        string `json:"time"`
	Data        Data   `json:"data"`
}

// NewEvent constructs an event defaulted to Error/S_INTERNAL_ERROR, the
// state a dropped-without-emit guard leaves behind.
func NewEvent(source, toolCallID, tool string) *Event {
	reason := "decision not finalized (guard closed without emit)"
	return &Event{
		SpecVersion: "1.0",
		ID:          "evt_decision_" + uuid.NewString(),
		Type:        "assay.tool.decision",
		Source:      source,
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		Data: Data{
			Tool:       tool,
			Decision:   Error,
			ReasonCode: SInternalError,
			Reason:     &reason,
			ToolCallID: toolCallID,
		},
	}
}

func strPtr(s string) *string { return &s }

// SetAllow finalizes the event as Allow.
func (e *Event) SetAllow(reasonCode string) {
	e.Data.Decision = Allow
	e.Data.ReasonCode = reasonCode
	e.Data.Reason = nil
}

// SetDeny finalizes the event as Deny.
func (e *Event) SetDeny(reasonCode string, reason string) {
	e.Data.Decision = Deny
	e.Data.ReasonCode = reasonCode
	if reason != "" {
		e.Data.Reason = strPtr(reason)
	}
}

// SetError finalizes the event as Error.
func (e *Event) SetError(reasonCode string, reason string) {
	e.Data.Decision = Error
	e.Data.ReasonCode = reasonCode
	if reason != "" {
		e.Data.Reason = strPtr(reason)
	}
}

// SetRequestID attaches the JSON-RPC request id.
func (e *Event) SetRequestID(id interface{}) { e.Data.RequestID = id }

// SetMandateInfo attaches mandate consumption linkage.
func (e *Event) SetMandateInfo(mandateID, useID string, useCount uint32) {
	if mandateID != "" {
		e.Data.MandateID = strPtr(mandateID)
	}
	if useID != "" {
		e.Data.UseID = strPtr(useID)
	}
	e.Data.UseCount = &useCount
}

// SetMandateMatches attaches mandate match flags.
func (e *Event) SetMandateMatches(scopeMatch, kindMatch, txRefMatch *bool) {
	e.Data.MandateScopeMatch = scopeMatch
	e.Data.MandateKindMatch = kindMatch
	e.Data.TransactionRefMatch = txRefMatch
}

// SetLatencies attaches the authorization/store latency breakdown.
func (e *Event) SetLatencies(authzMS, storeMS uint64) {
	e.Data.AuthzLatencyMS = &authzMS
	e.Data.StoreLatencyMS = &storeMS
}
