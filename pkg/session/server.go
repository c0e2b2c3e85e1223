// Package session serves one chain over JSON-RPC 2.0, on plain HTTP and on
// a websocket that can stream state updates to subscribers.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ikchain/pkg/chain"
	"ikchain/pkg/errors"
	"ikchain/pkg/log"
	"ikchain/pkg/metrics"
)

// Server exposes a chain.State to remote clients. All access to the state
// is serialised by one mutex.
type Server struct {
	id uuid.UUID

	state   *chain.State
	stateMu sync.Mutex
	version atomic.Uint64

	metrics *metrics.SolverMetrics
	logger  *log.Logger

	// HTTP server
	httpServer *http.Server
	addr       string

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// Update subscriptions
	subscribers map[int64]struct{}
	subMu       sync.RWMutex
	interval    time.Duration

	// Server state
	startTime     time.Time
	broadcastOnce sync.Once
	done          chan struct{}
	stopOnce      sync.Once
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., "127.0.0.1:7130")
	Addr string

	// BroadcastInterval is how often subscribers are checked for changes.
	BroadcastInterval time.Duration

	// Chain is the state served. It must not be used elsewhere while the
	// server runs.
	Chain *chain.State

	// Metrics, when set, is served on /metrics.
	Metrics *metrics.SolverMetrics
}

// New creates a session server for cfg.Chain.
func New(cfg Config) (*Server, error) {
	if cfg.Chain == nil {
		return nil, errors.RuntimeError("session: chain state is required")
	}
	interval := cfg.BroadcastInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	s := &Server{
		id:          uuid.New(),
		state:       cfg.Chain,
		metrics:     cfg.Metrics,
		logger:      log.GetLogger("session"),
		addr:        cfg.Addr,
		wsClients:   make(map[int64]*WSClient),
		subscribers: make(map[int64]struct{}),
		interval:    interval,
		startTime:   time.Now(),
		done:        make(chan struct{}),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s, nil
}

// ID returns the session id.
func (s *Server) ID() string {
	return s.id.String()
}

// Handler returns the HTTP handler of the session and starts the update
// broadcast loop.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/chain/state", s.handleChainState)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	s.broadcastOnce.Do(func() {
		go s.statusBroadcastLoop()
	})
	return s.corsMiddleware(mux)
}

// Start serves on the configured address until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithFields(log.Fields{
		"addr":       s.addr,
		"session_id": s.ID(),
	}).Info("session server starting")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.ErrRuntime, "session server failed")
	}
	return nil
}

// Stop closes every websocket client and the HTTP server.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	// Each closed client leaves through removeClient once its read pump
	// sees the connection go.
	s.wsClientMu.RLock()
	clients := make([]*WSClient, 0, len(s.wsClients))
	for _, client := range s.wsClients {
		clients = append(clients, client)
	}
	s.wsClientMu.RUnlock()
	for _, client := range clients {
		client.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// rpcCode maps an error onto a JSON-RPC error code.
func rpcCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrSessionMethod):
		return codeMethodNotFound
	case errors.Is(err, errors.ErrSessionParams), errors.Is(err, errors.ErrChainInvalid):
		return codeInvalidParams
	default:
		return codeServerError
	}
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONRPCError(w, nil, codeParseError, "Parse error")
		return
	}

	result, err := s.dispatchMethod(r.Context(), req.Method, req.Params, nil)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, rpcCode(err), err.Error())
		return
	}
	s.writeJSONRPCResult(w, req.ID, result)
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(ctx context.Context, method string, params map[string]any, client *WSClient) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
		if err != nil && s.metrics != nil {
			s.metrics.ObserveError(err)
		}
	}()

	switch method {
	case "server.info":
		return s.methodServerInfo(), nil
	case "chain.state":
		return s.methodChainState(), nil
	case "chain.set_ground_truth":
		return s.methodSetGroundTruth(params)
	case "chain.nudge":
		return s.methodNudge(params)
	case "chain.solve":
		return s.methodSolve(ctx)
	case "chain.subscribe":
		return s.methodSubscribe(client)
	default:
		return nil, errors.New(errors.ErrSessionMethod, fmt.Sprintf("method not found: %s", method))
	}
}

// Method implementations

func (s *Server) methodServerInfo() map[string]any {
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()

	s.stateMu.Lock()
	status := s.state.Status()
	s.stateMu.Unlock()

	return map[string]any{
		"session_id": s.ID(),
		"chain":      status,
		"uptime":     time.Since(s.startTime).Seconds(),
		"clients":    clients,
	}
}

func (s *Server) methodChainState() chain.Snapshot {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.Snapshot()
}

func (s *Server) methodSetGroundTruth(params map[string]any) (any, error) {
	angles, err := floatList(params, "angles")
	if err != nil {
		return nil, err
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.state.SetGroundTruth(angles); err != nil {
		return nil, err
	}
	s.version.Add(1)
	return s.state.Snapshot(), nil
}

func (s *Server) methodNudge(params map[string]any) (any, error) {
	raw, ok := params["direction"].(string)
	if !ok {
		return nil, errors.New(errors.ErrSessionParams, "direction must be a string")
	}
	dir, err := chain.ParseDirection(raw)
	if err != nil {
		return nil, err
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.Nudge(dir)
	s.version.Add(1)
	return s.state.Snapshot(), nil
}

func (s *Server) methodSolve(ctx context.Context) (any, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	summary, err := s.state.TriggerSolve(ctx)
	if err != nil {
		return nil, err
	}
	s.version.Add(1)
	return summary, nil
}

func (s *Server) methodSubscribe(client *WSClient) (any, error) {
	if client == nil {
		return nil, errors.New(errors.ErrSessionMethod, "chain.subscribe requires a websocket connection")
	}
	s.subMu.Lock()
	s.subscribers[client.id] = struct{}{}
	s.subMu.Unlock()
	return s.methodChainState(), nil
}

// floatList reads a JSON array of numbers from params.
func floatList(params map[string]any, key string) ([]float64, error) {
	raw, ok := params[key].([]any)
	if !ok {
		return nil, errors.New(errors.ErrSessionParams, fmt.Sprintf("%s must be an array of numbers", key))
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.New(errors.ErrSessionParams, fmt.Sprintf("%s[%d] is not a number", key, i))
		}
		out[i] = f
	}
	return out, nil
}

// REST handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": s.methodServerInfo()})
}

func (s *Server) handleChainState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]any{"result": s.methodChainState()})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("response write failed")
	}
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	s.writeJSON(w, jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	s.writeJSON(w, jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}
