package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConnection represents a WebSocket connection
type WSConnection struct {
	ctx     context.Context
	conn    *websocket.Conn
	handler *Handler
	sendCh  chan *Message
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	log     *zap.Logger
}

// NewWSConnection creates a new WebSocket connection handler
func NewWSConnection(ctx context.Context, conn *websocket.Conn, handler *Handler, log *zap.Logger) *WSConnection {
	return &WSConnection{
		ctx:     ctx,
		conn:    conn,
		handler: handler,
		sendCh:  make(chan *Message, 100),
		closeCh: make(chan struct{}),
		log:     log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Start begins processing the WebSocket connection
func (ws *WSConnection) Start() {
	go ws.readPump()
	go ws.writePump()
}

// SendMessage queues a message to be sent to the client
func (ws *WSConnection) SendMessage(msg *Message) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return fmt.Errorf("connection closed")
	}

	select {
	case ws.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close closes the WebSocket connection
func (ws *WSConnection) Close() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	ws.mu.Unlock()

	close(ws.closeCh)
	ws.conn.Close()
}

// Done is closed once the connection has been closed
func (ws *WSConnection) Done() <-chan struct{} {
	return ws.closeCh
}

// readPump reads requests from the WebSocket. Each request runs in its own
// goroutine because lookups can take as long as a DHT query.
func (ws *WSConnection) readPump() {
	defer ws.Close()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.log.Debug("Failed to unmarshal message", zap.Error(err))
			continue
		}
		ws.log.Debug("WS received", zap.String("method", msg.Method), zap.Int("req", msg.RequestID))

		go func() {
			response, err := ws.handler.HandleClientMessage(ws.ctx, &msg)
			if err != nil {
				ws.log.Warn("Failed to handle message", zap.Error(err))
				return
			}
			if err := ws.SendMessage(response); err != nil {
				ws.log.Debug("Failed to send response", zap.Error(err))
			}
		}()
	}
}

// writePump writes messages to the WebSocket
func (ws *WSConnection) writePump() {
	defer ws.Close()

	for {
		select {
		case msg := <-ws.sendCh:
			data, err := json.Marshal(msg)
			if err != nil {
				ws.log.Warn("Failed to marshal message", zap.Error(err))
				continue
			}

			if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				ws.log.Debug("Failed to write message", zap.Error(err))
				return
			}

			methodOrResponse := "response"
			if msg.Method != "" {
				methodOrResponse = msg.Method
			}
			ws.log.Debug("WS sent", zap.String("method", methodOrResponse), zap.Int("req", msg.RequestID))

		case <-ws.closeCh:
			return
		}
	}
}
