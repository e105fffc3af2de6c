package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zhubby/p2p-rs/internal/config"
	"github.com/zhubby/p2p-rs/internal/node"
	"github.com/zhubby/p2p-rs/internal/protocol"
	"go.uber.org/zap"
)

// Backend is the node surface the gateway drives; node.Client satisfies it
type Backend interface {
	node.FileRequester
	StartProviding(ctx context.Context, key string) error
	GetProviders(ctx context.Context, key string) ([]peer.ID, error)
	RespondFile(ctx context.Context, content string, ch *protocol.ResponseChannel) error
	PutRecord(ctx context.Context, key string, value []byte) error
	GetRecord(ctx context.Context, key string) ([]byte, error)
	Status(ctx context.Context) (node.Status, error)
}

var _ Backend = node.Client{}

// Options carries what the gateway needs from the node besides the Backend
type Options struct {
	Self     peer.ID
	Gatherer prometheus.Gatherer
}

// Server is the HTTP gateway: record and provider endpoints, a file library
// served to remote peers, metrics and a WebSocket activity feed
type Server struct {
	ctx         context.Context
	cancel      context.CancelFunc
	httpServer  *http.Server
	config      config.GatewayConfig
	backend     Backend
	handler     *Handler
	library     *Library
	router      *mux.Router
	upgrader    websocket.Upgrader
	port        int
	connections map[*WSConnection]bool
	mu          sync.RWMutex
	log         *zap.Logger
}

// New creates a gateway; call Start to listen
func New(ctx context.Context, backend Backend, cfg config.GatewayConfig, opts Options, log *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(ctx)
	library := NewLibrary()
	s := &Server{
		ctx:         ctx,
		cancel:      cancel,
		config:      cfg,
		backend:     backend,
		handler:     NewHandler(backend, library, opts.Self),
		library:     library,
		port:        cfg.Port,
		connections: make(map[*WSConnection]bool),
		log:         log.Named("gateway"),
	}
	if !cfg.CheckOrigin {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/providers/{key}", s.handleStartProviding).Methods(http.MethodPost)
	r.HandleFunc("/providers/{key}", s.handleGetProviders).Methods(http.MethodGet)
	r.HandleFunc("/files/{name}", s.handlePublish).Methods(http.MethodPut)
	r.HandleFunc("/files/{name}", s.handleFetch).Methods(http.MethodGet)
	r.HandleFunc("/", s.handlePutRecord).Methods(http.MethodPost)
	r.HandleFunc("/{key}", s.handleGetRecord).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the gateway's routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Library returns the files this gateway answers requests from
func (s *Server) Library() *Library {
	return s.library
}

// Start binds the first free port in the configured range and serves in the background
func (s *Server) Start() error {
	var listener net.Listener
	var err error

	if s.config.Port == 0 {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		s.port = listener.Addr().(*net.TCPAddr).Port
	} else {
		for attempt := 0; attempt < s.config.PortRange; attempt++ {
			port := s.config.Port + attempt
			listener, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err == nil {
				s.port = port
				break
			}
		}
		if listener == nil {
			return fmt.Errorf("failed to find available port starting from %d", s.config.Port)
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.Timeouts.Read.Duration,
		WriteTimeout:      s.config.Timeouts.Write.Duration,
		IdleTimeout:       s.config.Timeouts.Idle.Duration,
		ReadHeaderTimeout: s.config.Timeouts.ReadHeader.Duration,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", zap.Error(err))
			s.cancel()
		}
	}()

	s.log.Info("Gateway started", zap.String("url", fmt.Sprintf("http://localhost:%d", s.port)))
	return nil
}

// Stop closes every WebSocket and shuts the HTTP server down
func (s *Server) Stop() error {
	// Copy connections and release the lock before closing them
	s.mu.Lock()
	connsToClose := make([]*WSConnection, 0, len(s.connections))
	for conn := range s.connections {
		connsToClose = append(connsToClose, conn)
	}
	s.connections = make(map[*WSConnection]bool)
	s.mu.Unlock()

	for _, conn := range connsToClose {
		conn.Close()
	}

	var shutdownErr error
	if s.httpServer != nil {
		// s.ctx may already be canceled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr = s.httpServer.Shutdown(ctx)
	}
	s.cancel()
	return shutdownErr
}

// Port returns the port the server is listening on
func (s *Server) Port() int {
	return s.port
}

// Done returns a channel that is closed when the server context is cancelled
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Serve answers an inbound file request from the library. Requests for
// names the library does not hold are dropped.
func (s *Server) Serve(req node.InboundRequest) {
	content, ok := s.library.Get(req.Key)
	if !ok {
		req.Channel.Drop()
		s.broadcastMessage(s.handler.CreateServedMessage(req.Peer, req.Key, false))
		return
	}
	if err := s.backend.RespondFile(s.ctx, content, req.Channel); err != nil {
		req.Channel.Drop()
		s.log.Warn("Failed to respond", zap.String("key", req.Key), zap.Error(err))
		s.broadcastMessage(s.handler.CreateServedMessage(req.Peer, req.Key, false))
		return
	}
	s.broadcastMessage(s.handler.CreateServedMessage(req.Peer, req.Key, true))
}

// HTTP handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "expected JSON body with key and value", http.StatusBadRequest)
		return
	}
	if err := s.backend.PutRecord(r.Context(), req.Key, []byte(req.Value)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, err := s.backend.GetRecord(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Key: key, Value: string(value)})
}

func (s *Server) handleStartProviding(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StartProviding(r.Context(), mux.Vars(r)["key"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProviders(w http.ResponseWriter, r *http.Request) {
	resp, err := s.handler.providers(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.DefaultMaxFrameSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if !utf8.Valid(body) {
		http.Error(w, "file content must be UTF-8 text", http.StatusBadRequest)
		return
	}

	s.library.Put(name, string(body))
	if err := s.backend.StartProviding(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}

	s.broadcastMessage(s.handler.CreatePublishedMessage(name, len(body)))
	writeJSON(w, http.StatusCreated, PublishedNotice{Name: name, Size: len(body)})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.handler.fetch(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Provider", resp.Peer)
	_, _ = io.WriteString(w, resp.Content)
}

// handleWebSocket upgrades the request and registers the connection for broadcasts
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Failed to upgrade connection", zap.Error(err))
		return
	}

	wsConn := NewWSConnection(s.ctx, conn, s.handler, s.log)

	s.mu.Lock()
	s.connections[wsConn] = true
	s.mu.Unlock()

	wsConn.Start()

	go func() {
		<-wsConn.Done()
		s.mu.Lock()
		delete(s.connections, wsConn)
		s.mu.Unlock()
		s.log.Debug("WebSocket connection closed")
	}()

	s.log.Debug("New WebSocket connection established")
}

func (s *Server) broadcastMessage(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.connections {
		if err := conn.SendMessage(msg); err != nil {
			s.log.Debug("Failed to send message to client", zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Code: statusFor(err), Message: err.Error()})
}
