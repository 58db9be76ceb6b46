package policy

import (
	"sync"

	"golang.org/x/time/rate"
)

// State tracks the per-session counters evaluate()'s rate-limit step needs.
// Unlike the teacher's DecisionCache, this cannot cache the decision itself
// keyed on (agentType, toolName): the decision depends on the call's
// arguments (schema validation) and must mutate state on every call, not
// just on a cache miss. What carries over is the limiter idiom, retargeted
// at the thing that actually needs limiting: total call counts.
//
// x/time/rate.NewLimiter(0, max) gives a limiter with no refill and a
// burst of max, so Allow() returns true exactly max times total and false
// forever after -- the "at most N calls, ever" semantics
// GlobalLimits.max_requests_total/max_tool_calls_total specify, backed by
// a real token-bucket limiter rather than a bare counter compare.
type State struct {
	mu sync.Mutex

	requestsLimiter *rate.Limiter
	toolCallLimiter *rate.Limiter

	requestsTotal  uint64
	toolCallsTotal uint64
}

// NewState builds session state from a policy's optional limits. A nil
// Limits, or a nil field within it, means that dimension is unbounded.
func NewState(limits *Limits) *State {
	s := &State{}
	if limits == nil {
		return s
	}
	if limits.MaxRequestsTotal != nil {
		s.requestsLimiter = rate.NewLimiter(0, clampBurst(*limits.MaxRequestsTotal))
	}
	if limits.MaxToolCallsTotal != nil {
		s.toolCallLimiter = rate.NewLimiter(0, clampBurst(*limits.MaxToolCallsTotal))
	}
	return s
}

func clampBurst(n uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if n > uint64(maxInt) {
		return maxInt
	}
	return int(n)
}

// allow charges one request and, separately, one tool call against their
// respective limiters. It returns false if either limit is exhausted; the
// counters always advance so CallCounts reflects every attempt, allowed or
// not.
func (s *State) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestsTotal++
	s.toolCallsTotal++

	ok := true
	if s.requestsLimiter != nil && !s.requestsLimiter.Allow() {
		ok = false
	}
	if s.toolCallLimiter != nil && !s.toolCallLimiter.Allow() {
		ok = false
	}
	return ok
}

// CallCounts returns the total requests and tool calls observed so far,
// regardless of whether they were allowed.
func (s *State) CallCounts() (requests, toolCalls uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestsTotal, s.toolCallsTotal
}
