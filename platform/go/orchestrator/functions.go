package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
)

const maxFunctionResponse = 4 << 20

var functionNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// FunctionsConfig configures a FunctionInvoker.
type FunctionsConfig struct {
	BaseURL  string
	Client   *http.Client
	Recorder EventRecorder
}

// FunctionInvoker calls serverless functions at {BaseURL}/functions/v1/{name}.
type FunctionInvoker struct {
	orch     *Orchestrator
	baseURL  string
	client   *http.Client
	recorder EventRecorder
}

// NewFunctionInvoker builds a FunctionInvoker on top of orch.
func NewFunctionInvoker(orch *Orchestrator, cfg FunctionsConfig) *FunctionInvoker {
	if orch == nil {
		panic("orchestrator: orchestrator is required")
	}
	if cfg.BaseURL == "" {
		panic("orchestrator: functions base url is required")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &FunctionInvoker{
		orch:     orch,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		client:   client,
		recorder: cfg.Recorder,
	}
}

// Invoke posts payload to the named function. The tenant id is added to the
// body and headers when tenantID is set.
func (f *FunctionInvoker) Invoke(ctx context.Context, name string, tenantID *uuid.UUID, payload map[string]any) Result {
	if !functionNamePattern.MatchString(name) {
		return f.orch.fail(Result{}, KindValidation, fmt.Errorf("invalid function name %q", name))
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if tenantID != nil {
		body["tenant_id"] = tenantID.String()
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return f.orch.fail(Result{}, KindValidation, fmt.Errorf("encode function payload: %w", err))
	}

	res := f.orch.Execute(ctx, Call{
		Name:     "function:" + name,
		TenantID: tenantID,
		Do: func(ctx context.Context, req Request) (any, error) {
			return f.post(ctx, name, req, encoded)
		},
	})

	f.orch.record(ctx, security.EventFunctionInvoked, tenantID, map[string]any{
		"function":       name,
		"success":        res.Success,
		"kind":           string(res.Kind),
		"attempts":       res.Attempts,
		"correlation_id": res.CorrelationID,
	})
	return res
}

func (f *FunctionInvoker) post(ctx context.Context, name string, req Request, body []byte) (any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/functions/v1/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build function request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFunctionResponse))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", name, err)
	}
	return data, nil
}
