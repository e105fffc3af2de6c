package server

import "encoding/json"

// Message envelope for all WebSocket communications
type Message struct {
	RequestID  int             `json:"requestid"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ErrorResponse  `json:"error,omitempty"`
	IsResponse bool            `json:"isresponse"`
}

// EmptyResponse is used for operations that return "null or error"
type EmptyResponse struct{}

// ErrorResponse provides standardized error structure
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client Request Messages

// KeyRequest names a key; used by get, provide, providers and fetch
type KeyRequest struct {
	Key string `json:"key"`
}

// PutRequest stores a record. It is also the body of POST /.
type PutRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RecordResponse carries a record read from the DHT
type RecordResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProvidersResponse lists the peers providing a key
type ProvidersResponse struct {
	Key       string   `json:"key"`
	Providers []string `json:"providers"`
}

// FetchResponse carries file content and the peer that served it
type FetchResponse struct {
	Key     string `json:"key"`
	Peer    string `json:"peer"`
	Content string `json:"content"`
}

// Server Notifications (sent from server to client)

// ServedNotice reports how an inbound file request was handled
type ServedNotice struct {
	Peer   string `json:"peer"`
	Key    string `json:"key"`
	Served bool   `json:"served"`
}

// PublishedNotice reports a file added to the gateway library
type PublishedNotice struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}
