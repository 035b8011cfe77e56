// Package rpc exposes the ledger over JSON-RPC 2.0 on HTTP and streams
// committed events over a websocket.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/events"
	"crowdsale-ledger/internal/observability"
	"crowdsale-ledger/internal/processor"
	"crowdsale-ledger/internal/storage"
	"crowdsale-ledger/internal/token"
)

// MaxRequestBytes bounds the size of a request body.
const MaxRequestBytes = 1 << 20

// Config holds the collaborators of a Server. Journal, Hub and Health are
// optional.
type Config struct {
	Processor  *processor.Processor
	Controller *crowdsale.Controller
	Bank       *token.Bank
	Journal    storage.JournalStore
	Hub        *events.Hub
	Health     func(context.Context) error
	Logger     *zap.Logger

	// DevFaucet enables the airdrop and mint methods. They are unsigned:
	// mintTo trusts the authority named in its params, so any caller can
	// mint any mint. Never enable it on a shared node.
	DevFaucet bool
	// Backend is reported by /status.
	Backend string
	// WS configures the event stream connections.
	WS WSConfig
}

// WSConfig configures websocket subscriber connections.
type WSConfig struct {
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// PongWait is how long to wait for a pong before dropping the peer.
	PongWait time.Duration
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default websocket settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server serves the JSON-RPC and websocket endpoints.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	methods  map[string]methodFunc
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	requests uint64
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WS == (WSConfig{}) {
		cfg.WS = DefaultWSConfig()
	}
	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger.Named("rpc"),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.methods = s.registerMethods()
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/", s.handleRPC)
	r.Get("/ws", s.handleWS)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", observability.Handler())
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: newError(CodeParseError, "ParseError", err.Error())})
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: newError(CodeParseError, "ParseError", err.Error())})
			return
		}
		if len(batch) == 0 {
			writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: newError(CodeInvalidRequest, "InvalidRequest", "empty batch")})
			return
		}
		out := make([]Response, len(batch))
		for i := range batch {
			out[i] = s.dispatch(r.Context(), &batch[i])
		}
		writeJSON(w, out)
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeJSON(w, Response{JSONRPC: Version, ID: nullID, Error: newError(CodeParseError, "ParseError", err.Error())})
		return
	}
	writeJSON(w, s.dispatch(r.Context(), &req))
}

var nullID = json.RawMessage("null")

// dispatch runs one request and never fails: every outcome is a Response.
func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	start := time.Now()
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	resp := Response{JSONRPC: Version, ID: id}

	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = newError(CodeInvalidRequest, "InvalidRequest", "jsonrpc must be \"2.0\" and method must be set")
		observability.RecordRPCRequest("invalid", "InvalidRequest", time.Since(start).Seconds())
		return resp
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		resp.Error = newError(CodeMethodNotFound, "MethodNotFound", "method not found: "+req.Method)
		observability.RecordRPCRequest("unknown", "MethodNotFound", time.Since(start).Seconds())
		return resp
	}

	result, err := fn(ctx, req.Params)
	if err == nil {
		resp.Result, err = json.Marshal(result)
	}
	status := "ok"
	if err != nil {
		resp.Result = nil
		resp.Error = errorFor(err)
		status = "error"
		if resp.Error.Data != nil {
			status = resp.Error.Data.Name
		}
		if resp.Error.Code == CodeInternal {
			s.logger.Error("request failed", zap.String("method", req.Method), zap.Error(err))
		} else {
			s.logger.Debug("request rejected", zap.String("method", req.Method), zap.String("error", status))
		}
	}
	observability.RecordRPCRequest(req.Method, status, time.Since(start).Seconds())
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.cfg.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy: " + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	ProgramID     string `json:"program_id"`
	Backend       string `json:"backend"`
	DevFaucet     bool   `json:"dev_faucet"`
	Journal       bool   `json:"journal"`
	WSSubscribers int    `json:"ws_subscribers"`
	Requests      uint64 `json:"requests"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	requests := s.requests
	s.mu.Unlock()

	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		ProgramID: s.cfg.Controller.Deriver().ProgramID().String(),
		Backend:   s.cfg.Backend,
		DevFaucet: s.cfg.DevFaucet,
		Journal:   s.cfg.Journal != nil,
		Requests:  requests,
	}
	if s.cfg.Hub != nil {
		resp.WSSubscribers = s.cfg.Hub.Len()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
