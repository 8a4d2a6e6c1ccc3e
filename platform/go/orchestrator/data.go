package orchestrator

import (
	"context"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
)

// DataFunc is a gateway operation.
type DataFunc func(ctx context.Context, scope *scopeddb.Scope) (any, error)

// CallOption adjusts a Call built by a helper.
type CallOption func(*Call)

// WithRateLimit overrides the limiter cap for the call. Zero keeps the default.
func WithRateLimit(limit int) CallOption {
	return func(c *Call) { c.RateLimit = limit }
}

// Data runs fn against scope through Execute so gateway reads and writes get
// the same correlation, rate limiting and result shape as function calls.
func (o *Orchestrator) Data(ctx context.Context, name string, scope *scopeddb.Scope, fn DataFunc, opts ...CallOption) Result {
	tenantID := scope.TenantID()
	call := Call{
		Name:     name,
		TenantID: &tenantID,
		Do: func(ctx context.Context, _ Request) (any, error) {
			return fn(ctx, scope)
		},
	}
	for _, opt := range opts {
		opt(&call)
	}
	return o.Execute(ctx, call)
}
