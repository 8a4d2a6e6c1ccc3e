// Package scopeddb constrains generic collection operations to one tenant.
// Every call re-validates tenant access, injects the tenant_id predicate and
// records an audit event; callers never see rows of another tenant.
package scopeddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// Operation names used in audit events and metrics.
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpCount  = "count"
)

// AccessValidator is the subset of *security.Validator the gateway needs.
type AccessValidator interface {
	ValidateTenantAccess(ctx context.Context, tenantID uuid.UUID, userID *string) security.TenantAccessResult
	RecordEvent(ctx context.Context, event security.Event)
}

// Config wires a Gateway. Exempt defaults to DefaultExempt.
type Config struct {
	Store     Store
	Validator AccessValidator
	Exempt    ExemptSet
	Schemas   *Schemas
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Gateway hands out tenant-bound scopes over a Store.
type Gateway struct {
	store     Store
	validator AccessValidator
	exempt    ExemptSet
	schemas   *Schemas
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewGateway builds a Gateway.
func NewGateway(cfg Config) *Gateway {
	if cfg.Store == nil {
		panic("scopeddb: store is required")
	}
	if cfg.Validator == nil {
		panic("scopeddb: validator is required")
	}
	exempt := cfg.Exempt
	if exempt == nil {
		exempt = DefaultExempt()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		store:     cfg.Store,
		validator: cfg.Validator,
		exempt:    exempt,
		schemas:   cfg.Schemas,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// Exempt reports whether collection is a shared, tenant-exempt collection.
func (g *Gateway) Exempt(collection string) bool {
	return g.exempt.Contains(collection)
}

// For returns the scope of tenantID. Access is checked on every operation, not here.
func (g *Gateway) For(tenantID uuid.UUID) *Scope {
	return &Scope{gateway: g, tenantID: tenantID}
}

// Scope is a Gateway bound to one tenant.
type Scope struct {
	gateway  *Gateway
	tenantID uuid.UUID
}

// TenantID returns the bound tenant.
func (s *Scope) TenantID() uuid.UUID { return s.tenantID }

// From returns the named collection within the scope.
func (s *Scope) From(collection string) *Collection {
	return &Collection{scope: s, name: collection}
}

// Collection is a named collection restricted to the scope's tenant.
type Collection struct {
	scope *Scope
	name  string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Select reads rows of the tenant. Exempt collections are read unfiltered.
func (c *Collection) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := c.checkShape(q.Filters); err != nil {
		return nil, err
	}
	for _, col := range q.Columns {
		if !ValidIdentifier(col) {
			return nil, invalid("columns", fmt.Sprintf("invalid column %q", col))
		}
	}
	if q.OrderBy != "" && !ValidIdentifier(q.OrderBy) {
		return nil, invalid("orderBy", fmt.Sprintf("invalid column %q", q.OrderBy))
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, invalid("limit", "limit and offset must not be negative")
	}

	access, err := c.authorize(ctx, OpSelect)
	if err != nil {
		return nil, err
	}

	if !c.exempt() {
		q.Filters = withTenant(q.Filters, c.scope.tenantID.String())
	}
	rows, err := c.scope.gateway.store.Select(ctx, c.name, q)
	c.audit(ctx, access, OpSelect, len(rows), err)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c.name, err)
	}
	return rows, nil
}

// Count returns the number of tenant rows matching filters.
func (c *Collection) Count(ctx context.Context, filters ...Filter) (int64, error) {
	if err := c.checkShape(filters); err != nil {
		return 0, err
	}
	access, err := c.authorize(ctx, OpCount)
	if err != nil {
		return 0, err
	}

	if !c.exempt() {
		filters = withTenant(filters, c.scope.tenantID.String())
	}
	n, err := c.scope.gateway.store.Count(ctx, c.name, filters)
	c.audit(ctx, access, OpCount, int(n), err)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

// Insert stores rows stamped with the scope's tenant id. A caller supplied
// tenant_id is overwritten.
func (c *Collection) Insert(ctx context.Context, rows ...Row) ([]Row, error) {
	if err := c.checkWritable(nil, false); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, invalid("body", "at least one row is required")
	}

	stamped := make([]Row, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			return nil, invalid("body", "row must not be empty")
		}
		if err := checkColumns(r); err != nil {
			return nil, err
		}
		if err := c.scope.gateway.schemas.Validate(c.name, r, false); err != nil {
			return nil, err
		}
		row := r.Clone()
		row[TenantColumn] = c.scope.tenantID.String()
		stamped = append(stamped, row)
	}

	access, err := c.authorize(ctx, OpInsert)
	if err != nil {
		return nil, err
	}

	out, err := c.scope.gateway.store.Insert(ctx, c.name, stamped)
	c.audit(ctx, access, OpInsert, len(out), err)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", c.name, err)
	}
	return out, nil
}

// Update sets values on tenant rows matching filters. At least one filter
// other than tenant_id is required, and tenant_id cannot be changed.
func (c *Collection) Update(ctx context.Context, values Row, filters ...Filter) (int64, error) {
	if err := c.checkWritable(filters, true); err != nil {
		return 0, err
	}

	changes := values.Clone()
	delete(changes, TenantColumn)
	if len(changes) == 0 {
		return 0, invalid("body", "no fields to update")
	}
	if err := checkColumns(changes); err != nil {
		return 0, err
	}
	if err := c.scope.gateway.schemas.Validate(c.name, changes, true); err != nil {
		return 0, err
	}

	access, err := c.authorize(ctx, OpUpdate)
	if err != nil {
		return 0, err
	}

	n, err := c.scope.gateway.store.Update(ctx, c.name, changes, withTenant(filters, c.scope.tenantID.String()))
	c.audit(ctx, access, OpUpdate, int(n), err)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	return n, nil
}

// Delete removes tenant rows matching filters. At least one filter other
// than tenant_id is required.
func (c *Collection) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	if err := c.checkWritable(filters, true); err != nil {
		return 0, err
	}

	access, err := c.authorize(ctx, OpDelete)
	if err != nil {
		return 0, err
	}

	n, err := c.scope.gateway.store.Delete(ctx, c.name, withTenant(filters, c.scope.tenantID.String()))
	c.audit(ctx, access, OpDelete, int(n), err)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Collection) exempt() bool {
	return c.scope.gateway.exempt.Contains(c.name)
}

func (c *Collection) checkShape(filters []Filter) error {
	if !ValidIdentifier(c.name) {
		return invalid("collection", fmt.Sprintf("invalid collection name %q", c.name))
	}
	for _, f := range filters {
		if !ValidIdentifier(f.Column) {
			return invalid("filters", fmt.Sprintf("invalid column %q", f.Column))
		}
	}
	return nil
}

func (c *Collection) checkWritable(filters []Filter, needPredicate bool) error {
	if err := c.checkShape(filters); err != nil {
		return err
	}
	if c.exempt() {
		return fmt.Errorf("%s: %w", c.name, ErrReadOnlyCollection)
	}
	if !needPredicate {
		return nil
	}
	for _, f := range filters {
		if f.Column != TenantColumn {
			return nil
		}
	}
	return invalid("filters", "a filter other than tenant_id is required")
}

func checkColumns(r Row) error {
	for col := range r {
		if !ValidIdentifier(col) {
			return invalid(col, "invalid column name")
		}
	}
	return nil
}

func (c *Collection) authorize(ctx context.Context, op string) (security.TenantAccessResult, error) {
	g := c.scope.gateway
	res := g.validator.ValidateTenantAccess(ctx, c.scope.tenantID, nil)
	if res.IsValid {
		return res, nil
	}

	tenantID := c.scope.tenantID
	event := security.Event{
		Type:     security.EventDataAccessDenied,
		TenantID: &tenantID,
		Metadata: map[string]any{
			"operation":  op,
			"collection": c.name,
			"reason":     res.Reason,
		},
	}
	if res.UserID != "" {
		uid := res.UserID
		event.UserID = &uid
	}
	g.validator.RecordEvent(ctx, event)
	g.metrics.ObserveGateway(c.name, op, "denied")

	return res, res.Err()
}

func (c *Collection) audit(ctx context.Context, access security.TenantAccessResult, op string, rows int, opErr error) {
	g := c.scope.gateway
	outcome := "success"
	if opErr != nil {
		outcome = "error"
		if errors.Is(opErr, context.Canceled) {
			outcome = "cancelled"
		}
		g.logger.Warn("scoped data operation failed",
			zap.String("tenant_id", c.scope.tenantID.String()),
			zap.String("collection", c.name),
			zap.String("operation", op),
			zap.Error(opErr),
		)
	}
	g.metrics.ObserveGateway(c.name, op, outcome)

	tenantID := c.scope.tenantID
	uid := access.UserID
	g.validator.RecordEvent(ctx, security.Event{
		Type:     security.EventDataAccess,
		UserID:   &uid,
		TenantID: &tenantID,
		Metadata: map[string]any{
			"operation":  op,
			"collection": c.name,
			"outcome":    outcome,
			"rows":       rows,
		},
	})
}
