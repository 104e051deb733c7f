package model

import (
	"errors"
	"fmt"

	"github.com/yourorg/bridge-route-ea/internal/types"
)

// ErrOutsideLimits marks a request whose amount falls outside a provider's
// transferable range. Connectors detect it before the network call; the
// aggregator reports the provider as skipped rather than failed.
var ErrOutsideLimits = errors.New("amount outside provider limits")

// ProviderError wraps any connector-local failure: network errors, malformed
// responses, unsupported routes slipping past the capability check. It never
// propagates past the aggregator; it becomes a failed provider status.
type ProviderError struct {
	Provider types.Provider
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a connector-local failure
func NewProviderError(provider types.Provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// ValidationError marks a route that failed the aggregator's sanity checks.
// The route is dropped and logged; the call itself proceeds.
type ValidationError struct {
	RouteID  string
	Provider types.Provider
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("route %s from %s rejected: %s", e.RouteID, e.Provider, e.Reason)
}

// ConfigurationError indicates caller misuse: invalid strategy weights, bad
// request params, or an empty candidate set where one is required. These are
// surfaced to the caller, never swallowed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
