// Package tracing instruments dispatches and procedure calls with
// OpenTelemetry spans.
package tracing

import (
	"context"
	"strings"

	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of procgate spans.
const TracerName = "github.com/artpar/procgate"

// Attribute keys.
const (
	AttrProcedure = attribute.Key("procgate.procedure")
	AttrErrorKind = attribute.Key("procgate.error.kind")
	AttrErrorCode = attribute.Key("procgate.error.code")
	AttrRequestID = attribute.Key("procgate.request_id")
	AttrMethod    = attribute.Key("http.request.method")
	AttrPath      = attribute.Key("url.path")
	AttrStatus    = attribute.Key("http.response.status_code")
)

func tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(TracerName)
}

// Interceptor starts a server span around every dispatch. The span is
// renamed to the procedure path once a procedure matches.
func Interceptor(tp trace.TracerProvider) app.Interceptor {
	t := tracer(tp)

	return func(ctx context.Context, req app.Request, next app.HandleFunc) app.Response {
		ctx, span := t.Start(ctx, req.Method+" "+req.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				AttrMethod.String(req.Method),
				AttrPath.String(req.Path),
			),
		)
		defer span.End()

		if rid := req.Context.String(app.RequestIDKey); rid != "" {
			span.SetAttributes(AttrRequestID.String(rid))
		}

		res := next(ctx, req)

		if res.Match != nil {
			name := strings.Join(res.Match.Path, ".")
			span.SetName(name)
			span.SetAttributes(AttrProcedure.String(name))
		}
		switch {
		case !res.Matched:
			span.SetAttributes(AttrStatus.Int(404))
			span.SetStatus(codes.Unset, "no procedure matched")
		case res.Err != nil:
			recordError(span, res.Err)
		default:
			span.SetStatus(codes.Ok, "")
		}
		return res
	}
}

// Middleware returns a procedure middleware that wraps the rest of the
// chain in an internal span. It covers calls that bypass the dispatcher's
// interceptors, such as JSON-RPC and in-process calls.
func Middleware(tp trace.TracerProvider) procedure.Middleware {
	t := tracer(tp)

	return procedure.MiddlewareFunc(func(ctx context.Context, input any, opts procedure.MiddlewareOptions) (procedure.Result, error) {
		name := strings.Join(opts.Path, ".")
		ctx, span := t.Start(ctx, "procedure "+name,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(AttrProcedure.String(name)),
		)
		defer span.End()

		res, err := opts.Next(ctx, nil)
		if err != nil {
			recordError(span, rpcerror.From(err))
			return res, err
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	})
}

// recordError marks the span failed for server errors only; client errors
// are annotated but leave the span status unset.
func recordError(span trace.Span, e *rpcerror.Error) {
	span.SetAttributes(
		AttrErrorKind.String(string(rpcerror.KindOf(e))),
		AttrErrorCode.String(string(e.Code)),
		AttrStatus.Int(e.Status),
	)
	if e.Status >= 500 {
		span.RecordError(e)
		span.SetStatus(codes.Error, e.Message)
	}
}
