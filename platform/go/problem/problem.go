// Package problem renders RFC 7807 problem documents and JSON bodies for the
// HTTP handlers of every domain.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ContentType is the media type of problem documents.
const ContentType = "application/problem+json"

// Problem type URIs shared by all domains.
const (
	TypeValidation    = "https://palmyra.pro/problems/validation-error"
	TypeUnauthorized  = "https://palmyra.pro/problems/unauthorized"
	TypeForbidden     = "https://palmyra.pro/problems/forbidden"
	TypeNotFound      = "https://palmyra.pro/problems/not-found"
	TypeConflict      = "https://palmyra.pro/problems/conflict"
	TypeLimitExceeded = "https://palmyra.pro/problems/limit-exceeded"
	TypeRateLimited   = "https://palmyra.pro/problems/rate-limited"
	TypeUpstream      = "https://palmyra.pro/problems/upstream-error"
	TypeInternal      = "https://palmyra.pro/problems/internal-error"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// Details is an RFC 7807 problem document.
type Details struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// New builds a problem document. Field messages are copied.
func New(status int, title, detail, problemType string, fields map[string][]string) Details {
	p := Details{Type: problemType, Title: title, Status: status, Detail: detail}
	if len(fields) > 0 {
		p.Errors = make(map[string][]string, len(fields))
		for field, messages := range fields {
			p.Errors[field] = append([]string(nil), messages...)
		}
	}
	return p
}

// Fields converts single-message field errors.
func Fields(in map[string]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = []string{v}
	}
	return out
}

// Write sends p with its status code.
func Write(w http.ResponseWriter, r *http.Request, p Details) {
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON sends v as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ErrInvalidBody wraps JSON decoding failures.
var ErrInvalidBody = errors.New("invalid request body")

// DecodeJSON strictly decodes the request body into v. Unknown fields are rejected.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: body is required", ErrInvalidBody)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: body is required", ErrInvalidBody)
		}
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// InvalidBody is the problem returned for undecodable requests.
func InvalidBody(err error) Details {
	return New(http.StatusBadRequest, "Invalid request body", err.Error(), TypeValidation, nil)
}
