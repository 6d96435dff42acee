package app

import (
	"context"
	"strings"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/ports"
)

// Initial-context keys set by transports and read by the guard middlewares.
const (
	// AuthorizationKey carries the raw Authorization header value.
	AuthorizationKey = "authorization"
	// ClientIPKey carries the caller's address.
	ClientIPKey = "client_ip"
	// PrincipalKey carries the ports.Principal set by Auth.
	PrincipalKey = "user"
)

// Auth failure reasons reported to GuardMetrics.
const (
	AuthReasonMissing   = "missing"
	AuthReasonInvalid   = "invalid"
	AuthReasonForbidden = "forbidden"
)

// AuthConfig configures the Auth middleware.
type AuthConfig struct {
	Tokens ports.TokenService
	// Roles, when set, restricts access to principals holding one of them.
	Roles []string
	// Optional lets unauthenticated calls through without a principal.
	// A token that is present but invalid is still rejected.
	Optional bool
	Metrics  ports.GuardMetrics
}

// Auth returns a middleware that verifies the bearer token in the initial
// context and passes the principal down under PrincipalKey. Failures are
// UNAUTHORIZED, or FORBIDDEN when the role does not match; they are
// defined errors when the procedure declares those codes.
func Auth(cfg AuthConfig) procedure.Middleware {
	m := cfg.Metrics
	if m == nil {
		m = ports.NopMetrics{}
	}

	return procedure.MiddlewareFunc(func(ctx context.Context, input any, opts procedure.MiddlewareOptions) (procedure.Result, error) {
		token, ok := bearerToken(opts.Context.String(AuthorizationKey))
		if !ok {
			if cfg.Optional {
				return opts.Next(ctx, nil)
			}
			m.AuthFailed(AuthReasonMissing)
			return procedure.Result{}, opts.Errors.New(rpcerror.CodeUnauthorized, rpcerror.ConstructorOptions{
				Message: "Missing bearer token",
			})
		}

		principal, err := cfg.Tokens.Verify(token)
		if err != nil {
			m.AuthFailed(AuthReasonInvalid)
			return procedure.Result{}, opts.Errors.New(rpcerror.CodeUnauthorized, rpcerror.ConstructorOptions{
				Message: "Invalid bearer token",
				Cause:   err,
			})
		}

		if len(cfg.Roles) > 0 && !hasRole(principal.Role, cfg.Roles) {
			m.AuthFailed(AuthReasonForbidden)
			return procedure.Result{}, opts.Errors.New(rpcerror.CodeForbidden, rpcerror.ConstructorOptions{
				Message: "Role " + principal.Role + " may not call this procedure",
			})
		}

		return opts.Next(ctx, procedure.Context{PrincipalKey: principal})
	})
}

// PrincipalFrom returns the principal Auth stored in c.
func PrincipalFrom(c procedure.Context) (ports.Principal, bool) {
	p, ok := c.Value(PrincipalKey).(ports.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
