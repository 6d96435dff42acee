package app

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/ports"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter ports.Limiter
	// Key identifies the caller. Defaults to CallerKey.
	Key     func(c procedure.Context) string
	Metrics ports.GuardMetrics
}

// RateLimit returns a middleware that rejects calls exceeding the limiter
// with TOO_MANY_REQUESTS. Buckets are per caller and procedure path. The
// error data carries the suggested wait as {"retryAfter": seconds}.
func RateLimit(cfg RateLimitConfig) procedure.Middleware {
	key := cfg.Key
	if key == nil {
		key = CallerKey
	}
	m := cfg.Metrics
	if m == nil {
		m = ports.NopMetrics{}
	}

	return procedure.MiddlewareFunc(func(ctx context.Context, input any, opts procedure.MiddlewareOptions) (procedure.Result, error) {
		path := strings.Join(opts.Path, ".")
		ok, wait := cfg.Limiter.Allow(key(opts.Context) + "|" + path)
		if ok {
			return opts.Next(ctx, nil)
		}

		m.RateLimited(path)
		return procedure.Result{}, opts.Errors.New(rpcerror.CodeTooManyRequests, rpcerror.ConstructorOptions{
			Message: "Rate limit exceeded",
			Data:    map[string]any{"retryAfter": retrySeconds(wait)},
		})
	})
}

// CallerKey identifies the caller by principal subject, then client IP.
func CallerKey(c procedure.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return "user:" + p.Subject
	}
	if ip := c.String(ClientIPKey); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
