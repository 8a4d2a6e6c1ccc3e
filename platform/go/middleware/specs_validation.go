package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
)

// BearerScheme is the security scheme name used by the API contracts.
const BearerScheme = "bearerAuth"

var (
	errNoRequest       = errors.New("no request in validation input")
	errMissingIdentity = errors.New("authenticated user required")
)

// ValidateAuthenticationViaSwagger satisfies operations that declare bearerAuth.
// The JWT middleware has already verified the token, so the check only
// requires credentials on the request context.
func ValidateAuthenticationViaSwagger(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != BearerScheme {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errNoRequest
	}
	if _, ok := platformauth.UserFromContext(r.Context()); !ok {
		return errMissingIdentity
	}
	return nil
}

// NewSpecValidator builds request validation middleware for spec. Servers
// declared in the document are cleared so routes match when mounted under a prefix.
func NewSpecValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	if spec == nil {
		panic("spec validator: openapi document is required")
	}
	spec.Servers = nil

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: ValidateAuthenticationViaSwagger,
		},
	})
}
