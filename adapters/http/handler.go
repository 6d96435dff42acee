// Package http exposes the dispatcher over plain HTTP.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes limits request bodies read by RPCHandler.
const DefaultMaxBodyBytes = 10 << 20

// ContextFunc builds the initial procedure context for a request.
type ContextFunc func(r *http.Request) procedure.Context

// RPCHandler serves procedure calls. Requests no procedure claims get a
// NOT_FOUND envelope.
type RPCHandler struct {
	dispatcher  *app.Dispatcher
	contextFunc ContextFunc
	maxBody     int64
	logger      zerolog.Logger
}

// NewRPCHandler creates a handler over d. contextFunc may be nil.
func NewRPCHandler(d *app.Dispatcher, contextFunc ContextFunc, logger zerolog.Logger) *RPCHandler {
	return &RPCHandler{
		dispatcher:  d,
		contextFunc: contextFunc,
		maxBody:     DefaultMaxBodyBytes,
		logger:      logger.With().Str("service", "http").Logger(),
	}
}

// ServeHTTP dispatches the request and writes the output or error envelope.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	initial := procedure.Context{}
	if h.contextFunc != nil {
		initial = initial.Merge(h.contextFunc(r))
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		if _, ok := initial[app.RequestIDKey]; !ok {
			initial[app.RequestIDKey] = rid
		}
	}

	res := h.dispatcher.Dispatch(ctx, app.Request{
		Method:  r.Method,
		Path:    r.URL.EscapedPath(),
		Context: initial,
		Decode: func(ctx context.Context, m *app.Match) (any, error) {
			input, err := h.readInput(r)
			if err != nil {
				return nil, err
			}
			return mergeParams(input, m.Params), nil
		},
	})

	if !res.Matched {
		writeError(w, rpcerror.Make(rpcerror.CodeNotFound, "No procedure matched "+r.Method+" "+r.URL.Path))
		return
	}
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}

	status := http.StatusOK
	if res.Match != nil && res.Match.Procedure != nil {
		if s := res.Match.Procedure.Route().SuccessStatus; s != 0 {
			status = s
		}
	}
	if err := writeJSON(w, status, res.Output); err != nil {
		h.logger.Error().Err(err).Strs("procedure", res.Match.Path).Msg("failed to write response")
	}
}

// readInput reads the call input. GET and HEAD carry it in the query
// string: either a JSON "input" parameter or the flat query map.
func (h *RPCHandler) readInput(r *http.Request) (any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return queryInput(r)
	}
	if r.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > h.maxBody {
		return nil, rpcerror.Make(rpcerror.CodePayloadTooLarge, "Request body exceeds the size limit")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return input, nil
}

func queryInput(r *http.Request) (any, error) {
	q := r.URL.Query()
	if raw := q.Get("input"); raw != "" {
		var input any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, fmt.Errorf("decode input parameter: %w", err)
		}
		return input, nil
	}
	if len(q) == 0 {
		return nil, nil
	}

	input := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			input[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		input[k] = list
	}
	return input, nil
}

// mergeParams overlays path params onto an object input. Params win over
// body fields with the same name; non-object inputs are left alone.
func mergeParams(input any, params map[string]string) any {
	if len(params) == 0 {
		return input
	}
	var merged map[string]any
	switch v := input.(type) {
	case nil:
		merged = make(map[string]any, len(params))
	case map[string]any:
		merged = make(map[string]any, len(v)+len(params))
		for k, val := range v {
			merged[k] = val
		}
	default:
		return input
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

// writeError writes the normalized error envelope with the error's status.
func writeError(w http.ResponseWriter, e *rpcerror.Error) {
	if e.Code == rpcerror.CodeTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter(e.Data)))
	}
	_ = writeJSON(w, e.Status, e)
}

// retryAfter reads whole seconds from a {"retryAfter": n} error payload,
// defaulting to 1.
func retryAfter(data any) int {
	m, ok := data.(map[string]any)
	if !ok {
		return 1
	}
	switch n := m["retryAfter"].(type) {
	case int:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 {
			return int(math.Ceil(n))
		}
	}
	return 1
}
