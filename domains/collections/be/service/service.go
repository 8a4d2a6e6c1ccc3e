package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/orchestrator"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

const (
	// DefaultPageSize is applied when List is called without a limit.
	DefaultPageSize = 50
	maxPageSize     = 500
)

// Domain sentinel errors.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrFeatureDisabled   = errors.New("feature disabled for tenant")
	ErrLimitExceeded     = errors.New("usage limit exceeded")
	ErrNotFound          = errors.New("record not found")
	ErrFunctionsDisabled = errors.New("serverless functions are not configured")
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the request is malformed.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Fields: FieldErrors{"id": {"must be a uuid"}}}
	}
	return nil
}

// LimitError carries the cap that an insert would exceed.
type LimitError struct {
	Collection string
	Limit      tenant.Limit
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit of %d reached (current %d)", e.Collection, e.Limit.Max, e.Limit.Current)
}

// Is reports ErrLimitExceeded as a match.
func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// CallError wraps a failed orchestrated Result that carries no typed error.
type CallError struct {
	Result orchestrator.Result
}

func (e *CallError) Error() string { return e.Result.Error }

// ListOptions pages a List call.
type ListOptions struct {
	Limit  int
	Offset int
}

// TenantLoader is implemented by *tenant.Resolver.
type TenantLoader interface {
	Resolve(ctx context.Context, lookup tenant.Lookup) (tenant.Resolution, error)
}

// Executor is implemented by *orchestrator.Orchestrator.
type Executor interface {
	Data(ctx context.Context, name string, scope *scopeddb.Scope, fn orchestrator.DataFunc, opts ...orchestrator.CallOption) orchestrator.Result
}

// Invoker is implemented by *orchestrator.FunctionInvoker.
type Invoker interface {
	Invoke(ctx context.Context, name string, tenantID *uuid.UUID, payload map[string]any) orchestrator.Result
}

// SuperAdminChecker is implemented by *security.Validator.
type SuperAdminChecker interface {
	IsSuperAdmin(ctx context.Context, userID string) bool
}

// Config wires a Service. Functions is optional.
type Config struct {
	Gateway   *scopeddb.Gateway
	Tenants   TenantLoader
	Executor  Executor
	Admins    SuperAdminChecker
	Functions Invoker
}

// Service serves tenant business collections through the scoped gateway.
type Service struct {
	gw        *scopeddb.Gateway
	tenants   TenantLoader
	exec      Executor
	admins    SuperAdminChecker
	functions Invoker
}

// New constructs a Service.
func New(cfg Config) *Service {
	if cfg.Gateway == nil {
		panic("scoped gateway is required")
	}
	if cfg.Tenants == nil {
		panic("tenant loader is required")
	}
	if cfg.Executor == nil {
		panic("executor is required")
	}
	if cfg.Admins == nil {
		panic("super admin checker is required")
	}
	return &Service{
		gw:        cfg.Gateway,
		tenants:   cfg.Tenants,
		exec:      cfg.Executor,
		admins:    cfg.Admins,
		functions: cfg.Functions,
	}
}

// List returns one page of records, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, collection string, opts ListOptions) ([]scopeddb.Row, error) {
	t, def, err := s.prepare(ctx, tenantID, collection)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	data, err := s.run(ctx, t, "list:"+def.Name, func(ctx context.Context, scope *scopeddb.Scope) (any, error) {
		return scope.From(def.Name).Select(ctx, scopeddb.Query{OrderBy: "created_at", Desc: true, Limit: limit, Offset: offset})
	})
	if err != nil {
		return nil, err
	}
	return data.([]scopeddb.Row), nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, collection, id string) (scopeddb.Row, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	t, def, err := s.prepare(ctx, tenantID, collection)
	if err != nil {
		return nil, err
	}
	data, err := s.run(ctx, t, "get:"+def.Name, func(ctx context.Context, scope *scopeddb.Scope) (any, error) {
		return selectOne(ctx, scope.From(def.Name), id)
	})
	if err != nil {
		return nil, err
	}
	return data.(scopeddb.Row), nil
}

// Create inserts row. The tenant must be accessible and below its cap for
// the collection unless the caller is a super admin.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, collection string, row scopeddb.Row) (scopeddb.Row, error) {
	t, def, err := s.prepareWrite(ctx, tenantID, collection)
	if err != nil {
		return nil, err
	}
	bypass := s.superAdmin(ctx)

	data, err := s.run(ctx, t, "create:"+def.Name, func(ctx context.Context, scope *scopeddb.Scope) (any, error) {
		coll := scope.From(def.Name)
		limit := def.Limit(t.Limits)
		if !bypass && limit.Max > 0 {
			current, err := coll.Count(ctx)
			if err != nil {
				return nil, err
			}
			limit.Current = current
			if limit.Reached(1) {
				return nil, &LimitError{Collection: def.Name, Limit: limit}
			}
		}
		rows, err := coll.Insert(ctx, row)
		if err != nil {
			return nil, err
		}
		return rows[0], nil
	})
	if err != nil {
		return nil, err
	}
	return data.(scopeddb.Row), nil
}

// Update applies values to the record and returns it.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, collection, id string, values scopeddb.Row) (scopeddb.Row, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	t, def, err := s.prepareWrite(ctx, tenantID, collection)
	if err != nil {
		return nil, err
	}
	data, err := s.run(ctx, t, "update:"+def.Name, func(ctx context.Context, scope *scopeddb.Scope) (any, error) {
		coll := scope.From(def.Name)
		n, err := coll.Update(ctx, values, scopeddb.Eq("id", id))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return selectOne(ctx, coll, id)
	})
	if err != nil {
		return nil, err
	}
	return data.(scopeddb.Row), nil
}

// Delete removes the record.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, collection, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	t, def, err := s.prepareWrite(ctx, tenantID, collection)
	if err != nil {
		return err
	}
	_, err = s.run(ctx, t, "delete:"+def.Name, func(ctx context.Context, scope *scopeddb.Scope) (any, error) {
		n, err := scope.From(def.Name).Delete(ctx, scopeddb.Eq("id", id))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

// Invoke calls a serverless function on behalf of the tenant.
func (s *Service) Invoke(ctx context.Context, tenantID uuid.UUID, name string, payload map[string]any) (any, error) {
	if s.functions == nil {
		return nil, ErrFunctionsDisabled
	}
	if _, err := s.loadTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	res := s.functions.Invoke(ctx, name, &tenantID, payload)
	if !res.Success {
		return nil, resultError(res)
	}
	return res.Data, nil
}

func (s *Service) prepare(ctx context.Context, tenantID uuid.UUID, collection string) (tenant.Tenant, Definition, error) {
	def, ok := Lookup(collection)
	if !ok {
		return tenant.Tenant{}, Definition{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	t, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return tenant.Tenant{}, Definition{}, err
	}
	if !t.Features.Enabled(def.Feature) {
		return tenant.Tenant{}, Definition{}, fmt.Errorf("%w: %s", ErrFeatureDisabled, def.Feature)
	}
	return t, def, nil
}

func (s *Service) prepareWrite(ctx context.Context, tenantID uuid.UUID, collection string) (tenant.Tenant, Definition, error) {
	t, def, err := s.prepare(ctx, tenantID, collection)
	if err != nil {
		return t, def, err
	}
	if !t.Accessible() {
		id := t.ID
		return t, def, &security.AccessDeniedError{TenantID: &id, Reason: security.ReasonTenantInactive}
	}
	return t, def, nil
}

func (s *Service) loadTenant(ctx context.Context, tenantID uuid.UUID) (tenant.Tenant, error) {
	res, err := s.tenants.Resolve(ctx, tenant.Lookup{TenantID: &tenantID})
	if err != nil {
		return tenant.Tenant{}, err
	}
	if res.Tenant == nil {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return *res.Tenant, nil
}

func (s *Service) superAdmin(ctx context.Context) bool {
	creds, ok := platformauth.UserFromContext(ctx)
	if !ok || creds == nil || creds.Id == "" {
		return false
	}
	return s.admins.IsSuperAdmin(ctx, creds.Id)
}

func (s *Service) run(ctx context.Context, t tenant.Tenant, name string, fn orchestrator.DataFunc) (any, error) {
	res := s.exec.Data(ctx, name, s.gw.For(t.ID), fn, orchestrator.WithRateLimit(t.Security.RateLimitPerMinute))
	if !res.Success {
		return nil, resultError(res)
	}
	return res.Data, nil
}

func selectOne(ctx context.Context, coll *scopeddb.Collection, id string) (scopeddb.Row, error) {
	rows, err := coll.Select(ctx, scopeddb.Query{Filters: []scopeddb.Filter{scopeddb.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// resultError recovers the typed error of a failed Result so callers can
// match it with errors.Is and errors.As.
func resultError(res orchestrator.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return &CallError{Result: res}
}
