package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/planlens/planlens/signal"
)

// Handler processes a signal delivered to a consumer. Handlers run inline on
// the dispatching goroutine; a returned error (or panic) is converted to a
// HANDLER_ERROR dead letter and never propagates to the producer.
type Handler interface {
	Handle(ctx context.Context, sig *signal.Signal) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sig *signal.Signal) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, sig *signal.Signal) error {
	return f(ctx, sig)
}

// Match reason codes reported by CanHandle.
const (
	MatchOK            = "OK"
	MatchScopeMismatch = "SCOPE_MISMATCH"
)

// Consumer is a subscription: the scopes a pipeline phase is interested in,
// the capabilities it possesses, and the handler invoked on a match. Scopes
// are OR semantics: the consumer is eligible if any scope matches.
type Consumer struct {
	ID           string
	Scopes       []signal.Scope
	Capabilities []string
	Handler      Handler
}

// validate checks the registration is well-formed. Malformed registrations
// are programmer errors and fail fast.
func (c Consumer) validate() error {
	if c.ID == "" {
		return fmt.Errorf("consumer id is required")
	}
	if len(c.Scopes) == 0 {
		return fmt.Errorf("consumer %q: at least one scope is required", c.ID)
	}
	for _, sc := range c.Scopes {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("consumer %q: %w", c.ID, err)
		}
	}
	if c.Handler == nil {
		return fmt.Errorf("consumer %q: handler is required", c.ID)
	}
	return nil
}

// CanHandle reports whether this consumer accepts the signal: the signal's
// scope must match one of the subscribed scopes, and the signal's required
// capabilities must all be possessed. Pure and side-effect free; the reason
// code is SCOPE_MISMATCH, MISSING_CAPABILITIES:{...} with the missing set,
// or OK.
func (c Consumer) CanHandle(sig *signal.Signal) (bool, string) {
	scopeMatch := false
	for _, sc := range c.Scopes {
		if sig.Scope.Matches(sc) {
			scopeMatch = true
			break
		}
	}
	if !scopeMatch {
		return false, MatchScopeMismatch
	}

	have := make(map[string]bool, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		have[cap] = true
	}

	var missing []string
	for _, req := range sig.CapabilitiesRequired {
		if !have[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return false, fmt.Sprintf("MISSING_CAPABILITIES:{%s}", strings.Join(missing, ","))
	}

	return true, MatchOK
}

// ConsumerInfo is a point-in-time view of a registered consumer: its
// subscription plus the registry-owned enabled flag and counters.
type ConsumerInfo struct {
	ID           string         `json:"consumer_id"`
	Scopes       []signal.Scope `json:"scopes"`
	Capabilities []string       `json:"capabilities"`
	Enabled      bool           `json:"enabled"`
	Processed    int64          `json:"processed"`
	Errors       int64          `json:"errors"`
}

// consumerEntry is the registry's record of a consumer. The enabled flag and
// counters are owned by the orchestrator and mutated only under its mutex.
type consumerEntry struct {
	consumer  Consumer
	enabled   bool
	processed int64
	errors    int64
}
