package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
)

const bearerScheme = "bearerAuth"

var errCredentialsRequired = errors.New("a valid bearer token is required")

// AuthenticateFromContext satisfies operations secured with bearerAuth when the
// JWT middleware has already placed verified credentials on the request.
// Operations that also accept anonymous callers never reach this for the
// empty requirement.
func AuthenticateFromContext(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != bearerScheme {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errors.New("no request in validation input")
	}
	if _, ok := platformauth.CredentialsFromContext(r.Context()); !ok {
		return errCredentialsRequired
	}
	return nil
}

// RequestValidator rejects requests that do not match the OpenAPI document with a problem
// document. It must run after the JWT middleware.
func RequestValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	if spec == nil {
		panic("request validator requires an OpenAPI document")
	}
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: AuthenticateFromContext,
		},
		ErrorHandler: writeValidationProblem,
	})
}

func writeValidationProblem(w http.ResponseWriter, message string, status int) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	problem.WriteDetails(w, problem.Details{
		Type:   problem.TypeForStatus(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}
