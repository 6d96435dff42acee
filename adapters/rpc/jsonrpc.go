// Package rpc exposes procedures as JSON-RPC 2.0 methods. A method name is
// the procedure's dotted router path, e.g. "planet.find".
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MaxBodyBytes limits a JSON-RPC request body.
const MaxBodyBytes int64 = 1 << 20 // 1 MiB

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeProcedureError carries any other procedure error; the envelope is
	// in Error.Data.
	CodeProcedureError = -32000
)

// Request is a JSON-RPC 2.0 request. A request without an ID is a
// notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON writes result, null included, on every success and omits it
// on errors.
func (r Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *Error          `json:"error"`
		}{r.JSONRPC, id, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{r.JSONRPC, id, r.Result})
}

// ContextFunc builds the initial procedure context for an HTTP request.
type ContextFunc func(r *http.Request) procedure.Context

// Server handles JSON-RPC payloads through a dispatcher.
type Server struct {
	dispatcher  *app.Dispatcher
	contextFunc ContextFunc
	logger      zerolog.Logger
}

// NewServer creates a JSON-RPC server. contextFunc may be nil.
func NewServer(d *app.Dispatcher, contextFunc ContextFunc, logger zerolog.Logger) *Server {
	return &Server{
		dispatcher:  d,
		contextFunc: contextFunc,
		logger:      logger.With().Str("service", "jsonrpc").Logger(),
	}
}

// ServeHTTP accepts a single request or a batch in a POST body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	initial := procedure.Context{}
	if s.contextFunc != nil {
		initial = initial.Merge(s.contextFunc(r))
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		if _, ok := initial[app.RequestIDKey]; !ok {
			initial[app.RequestIDKey] = rid
		}
	}

	reply := s.HandleMessage(r.Context(), initial, payload)
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(reply)
}

// HandleMessage processes one payload and returns the encoded reply, or nil
// when the payload held only notifications.
func (s *Server) HandleMessage(ctx context.Context, initial procedure.Context, payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return s.handleBatch(ctx, initial, trimmed)
	}

	resp, ok := s.handleSingle(ctx, initial, trimmed)
	if !ok {
		return nil
	}
	return encode(resp)
}

func (s *Server) handleBatch(ctx context.Context, initial procedure.Context, payload []byte) []byte {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return encode(errorResponse(nil, CodeParseError, "parse error", nil))
	}
	if len(items) == 0 {
		return encode(errorResponse(nil, CodeInvalidRequest, "invalid request", nil))
	}

	out := make([]Response, 0, len(items))
	for _, item := range items {
		if resp, ok := s.handleSingle(ctx, initial, item); ok {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return encode(out)
}

// handleSingle runs one request. ok is false for notifications.
func (s *Server) handleSingle(ctx context.Context, initial procedure.Context, payload []byte) (Response, bool) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return errorResponse(nil, CodeParseError, "parse error", nil), true
		}
		return errorResponse(nil, CodeInvalidRequest, "invalid request", nil), true
	}
	if _, err := dec.Token(); err != io.EOF {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", nil), true
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", nil), true
	}
	notification := len(req.ID) == 0

	path, ok := methodPath(req.Method)
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "method not found", nil), !notification
	}

	input, err := decodeParams(req.Params)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params", nil), !notification
	}

	out, err := s.dispatcher.Call(ctx, path, input, initial)
	if err != nil {
		s.logger.Debug().Str("method", req.Method).Str("rpc_id", string(req.ID)).Err(err).Msg("rpc failed")
		return Response{JSONRPC: "2.0", ID: req.ID, Error: mapError(err)}, !notification
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: out}, !notification
}

// methodPath splits a dotted method name into a router path.
func methodPath(method string) ([]string, bool) {
	path := strings.Split(method, ".")
	for _, seg := range path {
		if seg == "" {
			return nil, false
		}
	}
	return path, true
}

// decodeParams turns params into a procedure input. A one-element array is
// unwrapped so positional callers can pass the input object directly.
func decodeParams(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var params any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	switch v := params.(type) {
	case map[string]any:
		return v, nil
	case []any:
		switch len(v) {
		case 0:
			return nil, nil
		case 1:
			return v[0], nil
		}
		return v, nil
	}
	return nil, errors.New("params must be an object or an array")
}

// mapError converts a procedure error into a JSON-RPC error object.
func mapError(err error) *Error {
	e := rpcerror.From(err)

	switch rpcerror.KindOf(e) {
	case rpcerror.KindInputValidation:
		return &Error{Code: CodeInvalidParams, Message: "invalid params", Data: e}
	case rpcerror.KindConfiguration, rpcerror.KindOutputValidation:
		return &Error{Code: CodeInternalError, Message: "internal error", Data: e}
	}
	if e.Code == rpcerror.CodeNotFound && errors.Is(e, router.ErrNotFound) {
		return &Error{Code: CodeMethodNotFound, Message: "method not found"}
	}
	if !e.Defined && e.Code == rpcerror.CodeInternalServerError {
		return &Error{Code: CodeInternalError, Message: "internal error", Data: e}
	}
	return &Error{Code: CodeProcedureError, Message: e.Message, Data: e}
}

func errorResponse(id json.RawMessage, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(errorResponse(nil, CodeInternalError, "internal error", nil))
	}
	return b
}
