package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

const testContract = `
openapi: 3.0.3
info: {title: test, version: "1"}
servers:
  - url: https://api.example.com/api/v1
components:
  securitySchemes:
    bearerAuth: {type: http, scheme: bearer}
paths:
  /farmers:
    post:
      security: [{bearerAuth: []}]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name: {type: string, minLength: 1}
      responses:
        "201": {description: created}
`

func TestValidateAuthenticationViaSwagger(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	input := &openapi3filter.AuthenticationInput{
		SecuritySchemeName:     BearerScheme,
		RequestValidationInput: &openapi3filter.RequestValidationInput{Request: req},
	}
	require.Error(t, ValidateAuthenticationViaSwagger(context.Background(), input))

	input.RequestValidationInput.Request = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{Id: "u1"}))
	require.NoError(t, ValidateAuthenticationViaSwagger(context.Background(), input))

	require.NoError(t, ValidateAuthenticationViaSwagger(context.Background(), nil))
}

func TestNewSpecValidator(t *testing.T) {
	t.Parallel()

	spec, err := openapi3.NewLoader().LoadFromData([]byte(testContract))
	require.NoError(t, err)

	h := NewSpecValidator(spec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(body string, authed bool) int {
		req := httptest.NewRequest(http.MethodPost, "/farmers", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if authed {
			req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{Id: "u1"}))
		}
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}

	require.Equal(t, http.StatusCreated, send(`{"name":"Ama"}`, true))
	require.Equal(t, http.StatusBadRequest, send(`{"name":""}`, true))
	require.NotEqual(t, http.StatusCreated, send(`{"name":"Ama"}`, false))
}
