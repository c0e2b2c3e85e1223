package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ikchain/pkg/log"
)

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

// newWSClient creates a new WebSocket client.
func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client. Messages to a slow client are
// dropped once its queue is full.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.WithField("client", c.id).Warn("dropping message, queue full")
	}
}

// Close closes the client connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithError(err).Warn("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, codeParseError, "Parse error")
		return
	}

	result, err := c.server.dispatchMethod(context.Background(), req.Method, req.Params, c)
	if err != nil {
		c.sendError(req.ID, rpcCode(err), err.Error())
		return
	}
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// sendError sends a JSON-RPC error response.
func (c *WSClient) sendError(id any, code int, message string) {
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// handleWebSocket handles WebSocket upgrade and connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	if s.metrics != nil {
		s.metrics.SessionClients.Inc()
	}
	s.logger.WithField("client", client.id).Info("websocket client connected")

	go client.writePump()
	client.Send(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_session_ready",
		"params":  []any{s.ID()},
	})

	client.readPump() // Blocks until connection closes
}

// removeClient removes a client and its subscription.
func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	_, known := s.wsClients[client.id]
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.subMu.Lock()
	delete(s.subscribers, client.id)
	s.subMu.Unlock()

	if known && s.metrics != nil {
		s.metrics.SessionClients.Dec()
	}
	s.logger.WithField("client", client.id).Info("websocket client disconnected")
}

// statusBroadcastLoop pushes the chain state to subscribers whenever it
// changed since the previous tick.
func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-ticker.C:
			if v := s.version.Load(); v != sent {
				sent = v
				s.broadcastChainUpdate()
			}
		case <-s.done:
			return
		}
	}
}

// broadcastChainUpdate sends the current snapshot to every subscriber.
func (s *Server) broadcastChainUpdate() {
	s.subMu.RLock()
	ids := make([]int64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	s.subMu.RUnlock()
	if len(ids) == 0 {
		return
	}

	eventtime := time.Since(s.startTime).Seconds()
	notification := map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_chain_update",
		"params":  []any{s.methodChainState(), eventtime},
	}

	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, id := range ids {
		if client, ok := s.wsClients[id]; ok {
			client.Send(notification)
		}
	}
	s.logger.WithFields(log.Fields{"subscribers": len(ids)}).Debug("chain update broadcast")
}
