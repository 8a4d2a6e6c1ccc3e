// Package orchestrator executes outbound calls with tenant headers,
// per-tenant rate limiting, bounded retries and a single auth refresh.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

// Outbound header names.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderAPIVersion    = "X-API-Version"
	HeaderAuthorization = "Authorization"
)

const (
	DefaultAPIVersion = "2024-01"
	DefaultRetries    = 3
	DefaultTimeout    = 30 * time.Second
)

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindRateLimited  ErrorKind = "rate_limited"
	KindAuthRequired ErrorKind = "auth_required"
	KindAccessDenied ErrorKind = "access_denied"
	KindValidation   ErrorKind = "validation"
	KindTransient    ErrorKind = "transient"
	KindCancelled    ErrorKind = "cancelled"
	KindFailed       ErrorKind = "failed"
)

// EventRecorder receives audit events. Implemented by *security.Validator.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event security.Event)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config wires an Orchestrator. Zero values select the package defaults.
type Config struct {
	Limiter  Limiter
	Tokens   auth.TokenSource
	Recorder EventRecorder
	Clock    clock.Clock
	Jitter   func() float64
	Sleep    SleepFunc
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// Retries is the transient retry budget per call; nil selects
	// DefaultRetries and zero disables retries.
	Retries    *int
	BaseDelay  time.Duration
	Timeout    time.Duration
	APIVersion string

	// OnAuthFailure is invoked when a call ends needing a fresh sign-in.
	OnAuthFailure func(ctx context.Context, callName string)
}

// Orchestrator runs Calls.
type Orchestrator struct {
	limiter    Limiter
	tokens     auth.TokenSource
	recorder   EventRecorder
	clock      clock.Clock
	backoff    Backoff
	sleep      SleepFunc
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retries    int
	timeout    time.Duration
	apiVersion string
	onAuth     func(ctx context.Context, callName string)
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewMemoryLimiter(clk, 0, 0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := DefaultRetries
	if cfg.Retries != nil {
		retries = max(*cfg.Retries, 0)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	o := &Orchestrator{
		limiter:    limiter,
		tokens:     cfg.Tokens,
		recorder:   cfg.Recorder,
		clock:      clk,
		backoff:    Backoff{Base: cfg.BaseDelay, Jitter: cfg.Jitter},
		sleep:      cfg.Sleep,
		logger:     logger,
		metrics:    cfg.Metrics,
		retries:    retries,
		timeout:    timeout,
		apiVersion: version,
		onAuth:     cfg.OnAuthFailure,
	}
	if o.sleep == nil {
		o.sleep = o.clockSleep
	}
	return o
}

// Request is what a call attempt receives: the outbound headers and credential.
type Request struct {
	CorrelationID string
	TenantID      string
	Token         string
	Headers       http.Header
}

// Call describes one logical outbound operation.
type Call struct {
	Name     string
	TenantID *uuid.UUID
	// SuppressTenant omits the X-Tenant-ID header.
	SuppressTenant bool
	// RateLimit overrides the limiter cap for this tenant when positive.
	RateLimit int
	Retries   *int
	Timeout   time.Duration
	Do        func(ctx context.Context, req Request) (any, error)
}

// Timing is reported on successful calls.
type Timing struct {
	Start    time.Time
	Duration time.Duration
}

// Result is the uniform outcome of Execute.
type Result struct {
	Success       bool
	Data          any
	Error         string
	Err           error
	Kind          ErrorKind
	CorrelationID string
	Attempts      int
	AuthRequired  bool
	RetryAfter    time.Duration
	Timing        *Timing
}

// Execute runs call. It never panics on call errors; every outcome is in the Result.
func (o *Orchestrator) Execute(ctx context.Context, call Call) Result {
	start := o.clock.Now()
	correlationID := uuid.NewString()
	res := Result{CorrelationID: correlationID}
	logger := o.logger.With(zap.String("call", call.Name), zap.String("correlation_id", correlationID))

	if call.Do == nil {
		return o.fail(res, KindValidation, errors.New("call has no operation"))
	}

	key := GlobalKey
	tenantHeader := ""
	if call.TenantID != nil {
		key = call.TenantID.String()
		if !call.SuppressTenant {
			tenantHeader = key
		}
	}

	decision, err := o.limiter.Allow(ctx, key, call.RateLimit)
	if err != nil {
		logger.Warn("rate limiter unavailable, allowing call", zap.Error(err))
	} else if !decision.Allowed {
		o.metrics.ObserveRateLimited(call.Name)
		o.record(ctx, security.EventRateLimitExceeded, call.TenantID, map[string]any{
			"call":           call.Name,
			"limit":          decision.Limit,
			"retry_after_ms": decision.RetryAfter.Milliseconds(),
			"correlation_id": correlationID,
		})
		res.RetryAfter = decision.RetryAfter
		res = o.fail(res, KindRateLimited, &RateLimitError{Key: key, Limit: decision.Limit, RetryAfter: decision.RetryAfter})
		o.metrics.ObserveCall(call.Name, string(res.Kind), o.clock.Since(start))
		return res
	}

	req := Request{CorrelationID: correlationID, TenantID: tenantHeader}
	if o.tokens != nil {
		if token, err := o.tokens.Token(ctx); err == nil {
			req.Token = token
		} else if !errors.Is(err, auth.ErrNoSession) {
			logger.Warn("read session token", zap.Error(err))
		}
	}

	retries := o.retries
	if call.Retries != nil && *call.Retries >= 0 {
		retries = *call.Retries
	}
	timeout := o.timeout
	if call.Timeout > 0 {
		timeout = call.Timeout
	}

	data, err := o.run(ctx, logger, call, &req, retries, timeout, &res)
	if err != nil {
		kind := classify(err)
		if kind == KindAuthRequired {
			res.AuthRequired = true
			if o.onAuth != nil {
				o.onAuth(ctx, call.Name)
			}
		}
		res = o.fail(res, kind, err)
		logger.Info("outbound call failed", zap.String("kind", string(kind)), zap.Int("attempts", res.Attempts), zap.Error(err))
		o.metrics.ObserveCall(call.Name, string(kind), o.clock.Since(start))
		return res
	}

	elapsed := o.clock.Since(start)
	res.Success = true
	res.Data = data
	res.Timing = &Timing{Start: start, Duration: elapsed}
	o.metrics.ObserveCall(call.Name, "success", elapsed)
	return res
}

// run is the attempt loop. Transient failures back off and retry up to
// retries times; an auth failure triggers one refresh and one further
// attempt outside the retry budget.
func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, call Call, req *Request, retries int, timeout time.Duration, res *Result) (any, error) {
	retried := 0
	refreshed := false

	for {
		res.Attempts++
		data, err := o.attempt(ctx, call, *req, timeout)
		if err == nil {
			return data, nil
		}

		switch {
		case IsAuthFailure(err):
			if refreshed || o.tokens == nil {
				return nil, markAuth(err)
			}
			refreshed = true
			token, rerr := o.tokens.Refresh(ctx)
			if rerr != nil {
				logger.Warn("session refresh failed", zap.Error(rerr))
				o.record(ctx, security.EventAuthRefreshFailed, call.TenantID, map[string]any{
					"call":           call.Name,
					"error":          rerr.Error(),
					"correlation_id": req.CorrelationID,
				})
				return nil, markAuth(err)
			}
			req.Token = token
			continue

		case refreshed:
			return nil, err

		case IsTransient(err) && retried < retries && ctx.Err() == nil:
			delay := o.backoff.Delay(retried)
			retried++
			o.metrics.ObserveRetry(call.Name)
			logger.Debug("retrying outbound call",
				zap.Int("attempt", res.Attempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if serr := o.sleep(ctx, delay); serr != nil {
				return nil, fmt.Errorf("%w (retry aborted: %v)", err, serr)
			}
			continue

		default:
			return nil, err
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, call Call, req Request, timeout time.Duration) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req.Headers = o.headers(req)
	return call.Do(attemptCtx, req)
}

func (o *Orchestrator) headers(req Request) http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderCorrelationID, req.CorrelationID)
	h.Set(HeaderAPIVersion, o.apiVersion)
	if req.TenantID != "" {
		h.Set(HeaderTenantID, req.TenantID)
	}
	if req.Token != "" {
		h.Set(HeaderAuthorization, auth.BearerHeader(req.Token))
	}
	return h
}

func (o *Orchestrator) fail(res Result, kind ErrorKind, err error) Result {
	res.Success = false
	res.Kind = kind
	res.Err = err
	res.Error = err.Error()
	return res
}

func (o *Orchestrator) record(ctx context.Context, typ security.EventType, tenantID *uuid.UUID, metadata map[string]any) {
	if o.recorder == nil {
		return
	}
	event := security.Event{Type: typ, TenantID: tenantID, Metadata: metadata}
	if creds, ok := auth.UserFromContext(ctx); ok {
		uid := creds.Id
		event.UserID = &uid
	}
	o.recorder.RecordEvent(ctx, event)
}

func (o *Orchestrator) clockSleep(ctx context.Context, d time.Duration) error {
	t := o.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type authError struct{ err error }

func (e *authError) Error() string { return "authentication required: " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func markAuth(err error) error { return &authError{err: err} }

func classify(err error) ErrorKind {
	var (
		authErr  *authError
		validErr *scopeddb.ValidationError
		limitErr *RateLimitError
	)
	switch {
	case errors.As(err, &authErr):
		return KindAuthRequired
	case errors.Is(err, security.ErrAccessDenied):
		return KindAccessDenied
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &limitErr):
		return KindRateLimited
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case IsTransient(err):
		return KindTransient
	default:
		return KindFailed
	}
}
