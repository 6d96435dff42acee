// Package ws carries JSON-RPC over websocket connections. Each text frame
// is one JSON-RPC payload; replies are written in request order.
package ws

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/artpar/procgate/adapters/rpc"
	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config controls connection limits and keepalive.
type Config struct {
	MaxMessageSize  int64
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default websocket settings.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:  rpc.MaxBodyBytes,
		ReadTimeout:     60 * time.Second,
		PingInterval:    25 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Handler upgrades requests and serves JSON-RPC on the connection.
type Handler struct {
	rpc         *rpc.Server
	contextFunc rpc.ContextFunc
	config      Config
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

// NewHandler creates a websocket handler. The initial procedure context of
// every call on a connection is built once from the upgrade request.
func NewHandler(server *rpc.Server, contextFunc rpc.ContextFunc, cfg Config, logger zerolog.Logger) *Handler {
	def := DefaultConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout * 9 / 10
	}
	return &Handler{
		rpc:         server,
		contextFunc: contextFunc,
		config:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: logger.With().Str("service", "websocket").Logger(),
	}
}

// ServeHTTP upgrades the connection and blocks until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	initial := procedure.Context{}
	if h.contextFunc != nil {
		initial = initial.Merge(h.contextFunc(r))
	}
	connID := middleware.GetReqID(r.Context())

	s := &session{
		conn:    conn,
		handler: h,
		initial: initial,
		connID:  connID,
		done:    make(chan struct{}),
	}
	s.serve(r)
}

type session struct {
	conn    *websocket.Conn
	handler *Handler
	initial procedure.Context
	connID  string

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	calls     int
}

func (s *session) serve(r *http.Request) {
	defer s.close()

	cfg := s.handler.config
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	go s.keepalive()

	// Calls outlive the upgrade request's deadline but not the connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.handler.logger.Warn().Err(err).Str("conn_id", s.connID).Msg("websocket read error")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if msgType != websocket.TextMessage {
			s.writeClose(websocket.CloseUnsupportedData, "text frames only")
			return
		}

		s.calls++
		callCtx := s.initial
		if s.connID != "" {
			callCtx = callCtx.Merge(procedure.Context{
				app.RequestIDKey: s.connID + "-" + strconv.Itoa(s.calls),
			})
		}

		reply := s.handler.rpc.HandleMessage(ctx, callCtx, msg)
		if reply == nil {
			continue
		}
		if err := s.write(websocket.TextMessage, reply); err != nil {
			s.handler.logger.Debug().Err(err).Str("conn_id", s.connID).Msg("websocket write failed")
			return
		}
	}
}

func (s *session) keepalive() {
	ticker := time.NewTicker(s.handler.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) write(msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(msgType, data)
}

func (s *session) writeClose(code int, text string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second),
	)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeClose(websocket.CloseNormalClosure, "")
		_ = s.conn.Close()
		s.handler.logger.Debug().Str("conn_id", s.connID).Int("calls", s.calls).Msg("websocket closed")
	})
}
