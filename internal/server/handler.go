package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/zhubby/p2p-rs/internal/node"
)

// Handler routes WebSocket requests to the node
type Handler struct {
	backend   Backend
	library   *Library
	self      peer.ID
	nextReqID int
	mu        sync.Mutex
}

// NewHandler creates a new request handler
func NewHandler(backend Backend, library *Library, self peer.ID) *Handler {
	return &Handler{
		backend: backend,
		library: library,
		self:    self,
	}
}

// HandleClientMessage processes a request from a client and builds its response
func (h *Handler) HandleClientMessage(ctx context.Context, msg *Message) (*Message, error) {
	switch msg.Method {
	case "get":
		return h.handleGet(ctx, msg)
	case "put":
		return h.handlePut(ctx, msg)
	case "provide":
		return h.handleProvide(ctx, msg)
	case "providers":
		return h.handleProviders(ctx, msg)
	case "fetch":
		return h.handleFetch(ctx, msg)
	case "status":
		status, err := h.backend.Status(ctx)
		if err != nil {
			return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
		}
		return h.resultResponse(msg.RequestID, status)
	default:
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, fmt.Sprintf("unknown method: %s", msg.Method))
	}
}

func (h *Handler) handleGet(ctx context.Context, msg *Message) (*Message, error) {
	var req KeyRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil || req.Key == "" {
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, "invalid params")
	}

	value, err := h.backend.GetRecord(ctx, req.Key)
	if err != nil {
		return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
	}
	return h.resultResponse(msg.RequestID, RecordResponse{Key: req.Key, Value: string(value)})
}

func (h *Handler) handlePut(ctx context.Context, msg *Message) (*Message, error) {
	var req PutRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil || req.Key == "" {
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, "invalid params")
	}

	if err := h.backend.PutRecord(ctx, req.Key, []byte(req.Value)); err != nil {
		return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
	}
	return h.resultResponse(msg.RequestID, EmptyResponse{})
}

func (h *Handler) handleProvide(ctx context.Context, msg *Message) (*Message, error) {
	var req KeyRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil || req.Key == "" {
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, "invalid params")
	}

	if err := h.backend.StartProviding(ctx, req.Key); err != nil {
		return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
	}
	return h.resultResponse(msg.RequestID, EmptyResponse{})
}

func (h *Handler) handleProviders(ctx context.Context, msg *Message) (*Message, error) {
	var req KeyRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil || req.Key == "" {
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, "invalid params")
	}

	providers, err := h.providers(ctx, req.Key)
	if err != nil {
		return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
	}
	return h.resultResponse(msg.RequestID, providers)
}

func (h *Handler) handleFetch(ctx context.Context, msg *Message) (*Message, error) {
	var req KeyRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil || req.Key == "" {
		return h.errorResponse(msg.RequestID, http.StatusBadRequest, "invalid params")
	}

	resp, err := h.fetch(ctx, req.Key)
	if err != nil {
		return h.errorResponse(msg.RequestID, statusFor(err), err.Error())
	}
	return h.resultResponse(msg.RequestID, resp)
}

func (h *Handler) providers(ctx context.Context, key string) (ProvidersResponse, error) {
	found, err := h.backend.GetProviders(ctx, key)
	if err != nil {
		return ProvidersResponse{}, err
	}
	ids := make([]string, 0, len(found))
	for _, p := range found {
		ids = append(ids, p.String())
	}
	return ProvidersResponse{Key: key, Providers: ids}, nil
}

// fetch answers from the local library, or races every remote provider
func (h *Handler) fetch(ctx context.Context, key string) (FetchResponse, error) {
	if content, ok := h.library.Get(key); ok {
		return FetchResponse{Key: key, Peer: h.self.String(), Content: content}, nil
	}

	found, err := h.backend.GetProviders(ctx, key)
	if err != nil {
		return FetchResponse{}, err
	}
	remote := make([]peer.ID, 0, len(found))
	for _, p := range found {
		if p != h.self {
			remote = append(remote, p)
		}
	}

	content, from, err := node.FetchFromAny(ctx, h.backend, remote, key)
	if err != nil {
		return FetchResponse{}, err
	}
	return FetchResponse{Key: key, Peer: from.String(), Content: content}, nil
}

// NextRequestID returns the id for the next server-initiated message
func (h *Handler) NextRequestID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextReqID++
	return h.nextReqID
}

// CreateServedMessage creates a served notification
func (h *Handler) CreateServedMessage(p peer.ID, key string, served bool) *Message {
	params, _ := json.Marshal(ServedNotice{Peer: p.String(), Key: key, Served: served})
	return &Message{
		RequestID: h.NextRequestID(),
		Method:    "served",
		Params:    params,
	}
}

// CreatePublishedMessage creates a published notification
func (h *Handler) CreatePublishedMessage(name string, size int) *Message {
	params, _ := json.Marshal(PublishedNotice{Name: name, Size: size})
	return &Message{
		RequestID: h.NextRequestID(),
		Method:    "published",
		Params:    params,
	}
}

// Response helpers

func (h *Handler) resultResponse(requestID int, v any) (*Message, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Message{
		RequestID:  requestID,
		Result:     result,
		IsResponse: true,
	}, nil
}

func (h *Handler) errorResponse(requestID, code int, message string) (*Message, error) {
	return &Message{
		RequestID:  requestID,
		Error:      &ErrorResponse{Code: code, Message: message},
		IsResponse: true,
	}, nil
}

// statusFor maps node errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrRecordNotFound), errors.Is(err, node.ErrNoProviders):
		return http.StatusNotFound
	case errors.Is(err, node.ErrAllProvidersFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, node.ErrActorTerminated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
