package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/procgate/adapters/auth"
	"github.com/artpar/procgate/adapters/clock"
	"github.com/artpar/procgate/adapters/memory"
	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/ports"
)

type guardMetrics struct {
	limited []string
	failed  []string
}

func (m *guardMetrics) RateLimited(path string)  { m.limited = append(m.limited, path) }
func (m *guardMetrics) AuthFailed(reason string) { m.failed = append(m.failed, reason) }

func whoami(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	p, ok := app.PrincipalFrom(opts.Context)
	if !ok {
		return "anonymous", nil
	}
	return p.Subject, nil
}

func TestAuth(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tokens := auth.NewTokenService("secret", time.Hour, c)
	admin, _, _ := tokens.Issue(ports.Principal{Subject: "ada", Role: "admin"})
	viewer, _, _ := tokens.Issue(ports.Principal{Subject: "bob", Role: "viewer"})

	metrics := &guardMetrics{}
	p := procedure.New().
		Errors(rpcerror.ErrorMap{rpcerror.CodeUnauthorized: {}}).
		Use(app.Auth(app.AuthConfig{Tokens: tokens, Roles: []string{"admin"}, Metrics: metrics})).
		Handler(whoami)

	tests := []struct {
		name        string
		header      string
		want        any
		wantCode    rpcerror.Code
		wantDefined bool
		wantReason  string
	}{
		{name: "admin", header: "Bearer " + admin, want: "ada"},
		{name: "scheme is case-insensitive", header: "bearer " + admin, want: "ada"},
		{name: "missing", header: "", wantCode: rpcerror.CodeUnauthorized, wantDefined: true, wantReason: app.AuthReasonMissing},
		{name: "wrong scheme", header: "Basic " + admin, wantCode: rpcerror.CodeUnauthorized, wantDefined: true, wantReason: app.AuthReasonMissing},
		{name: "invalid", header: "Bearer nope", wantCode: rpcerror.CodeUnauthorized, wantDefined: true, wantReason: app.AuthReasonInvalid},
		{name: "wrong role", header: "Bearer " + viewer, wantCode: rpcerror.CodeForbidden, wantReason: app.AuthReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.failed = nil
			out, err := procedure.Call(context.Background(), p, nil, procedure.ExecuteOptions{
				Context: procedure.Context{app.AuthorizationKey: tt.header},
				Path:    []string{"whoami"},
			})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out != tt.want {
					t.Errorf("out = %v, want %v", out, tt.want)
				}
				return
			}

			var e *rpcerror.Error
			if !errors.As(err, &e) || e.Code != tt.wantCode {
				t.Fatalf("err = %v, want %s", err, tt.wantCode)
			}
			if e.Defined != tt.wantDefined {
				t.Errorf("Defined = %v, want %v", e.Defined, tt.wantDefined)
			}
			if len(metrics.failed) != 1 || metrics.failed[0] != tt.wantReason {
				t.Errorf("auth failures = %v, want [%s]", metrics.failed, tt.wantReason)
			}
		})
	}
}

func TestAuth_Optional(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour, clock.Real{})
	p := procedure.New().
		Use(app.Auth(app.AuthConfig{Tokens: tokens, Optional: true})).
		Handler(whoami)

	out, err := procedure.Call(context.Background(), p, nil, procedure.ExecuteOptions{})
	if err != nil || out != "anonymous" {
		t.Errorf("anonymous call = %v, %v", out, err)
	}

	_, err = procedure.Call(context.Background(), p, nil, procedure.ExecuteOptions{
		Context: procedure.Context{app.AuthorizationKey: "Bearer forged"},
	})
	if !rpcerror.IsCode(err, rpcerror.CodeUnauthorized) {
		t.Errorf("forged token = %v, want UNAUTHORIZED", err)
	}
}

func TestRateLimit(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := memory.NewLimiter(memory.LimiterConfig{RequestsPerSecond: 0.5, Burst: 1}, c)
	defer limiter.Close()

	metrics := &guardMetrics{}
	p := procedure.New().
		Use(app.RateLimit(app.RateLimitConfig{Limiter: limiter, Metrics: metrics})).
		Handler(whoami)

	call := func(ip string) error {
		_, err := procedure.Call(context.Background(), p, nil, procedure.ExecuteOptions{
			Context: procedure.Context{app.ClientIPKey: ip},
			Path:    []string{"planet", "list"},
		})
		return err
	}

	if err := call("10.0.0.1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	err := call("10.0.0.1")
	var e *rpcerror.Error
	if !errors.As(err, &e) || e.Code != rpcerror.CodeTooManyRequests || e.Status != 429 {
		t.Fatalf("second call = %v, want TOO_MANY_REQUESTS", err)
	}
	if e.Defined {
		t.Error("undeclared TOO_MANY_REQUESTS should not be defined")
	}
	if got := e.Data.(map[string]any)["retryAfter"]; got != 2 {
		t.Errorf("retryAfter = %v, want 2", got)
	}
	if len(metrics.limited) != 1 || metrics.limited[0] != "planet.list" {
		t.Errorf("rate limited = %v", metrics.limited)
	}

	if err := call("10.0.0.2"); err != nil {
		t.Errorf("other caller limited: %v", err)
	}
	c.Advance(2 * time.Second)
	if err := call("10.0.0.1"); err != nil {
		t.Errorf("call after refill: %v", err)
	}
}

func TestCallerKey(t *testing.T) {
	tests := []struct {
		name string
		ctx  procedure.Context
		want string
	}{
		{"principal wins", procedure.Context{app.PrincipalKey: ports.Principal{Subject: "ada"}, app.ClientIPKey: "1.2.3.4"}, "user:ada"},
		{"client ip", procedure.Context{app.ClientIPKey: "1.2.3.4"}, "ip:1.2.3.4"},
		{"anonymous", procedure.Context{}, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := app.CallerKey(tt.ctx); got != tt.want {
				t.Errorf("CallerKey = %s, want %s", got, tt.want)
			}
		})
	}
}
