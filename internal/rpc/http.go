package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/exp/jsonrpc2"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request (for HTTP compatibility)
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response (for HTTP compatibility)
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	codeParseError     int64 = -32700
	codeInvalidRequest int64 = -32600
	codeMethodNotFound int64 = -32601
	codeInvalidParams  int64 = -32602
	codeInternalError  int64 = -32603
)

// HTTPHandler serves a Handler over HTTP POST.
type HTTPHandler struct {
	handler *Handler
}

func NewHTTPHandler(handler *Handler) *HTTPHandler {
	return &HTTPHandler{handler: handler}
}

func (s *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, nil, codeParseError, "Parse error")
		return
	}

	if req.JSONRPC != "2.0" {
		sendError(w, req.ID, codeInvalidRequest, "Invalid Request")
		return
	}

	var id jsonrpc2.ID
	switch v := req.ID.(type) {
	case float64:
		id = jsonrpc2.Int64ID(int64(v))
	case string:
		id = jsonrpc2.StringID(v)
	case nil:
		// notification
	default:
		sendError(w, req.ID, codeInvalidRequest, "Invalid Request ID")
		return
	}

	result, err := s.handler.Handle(r.Context(), &jsonrpc2.Request{
		ID:     id,
		Method: req.Method,
		Params: req.Params,
	})
	if err != nil {
		slog.DebugContext(r.Context(), "rpc call failed", slog.String("method", req.Method), slog.Any("err", err))
		sendError(w, req.ID, errorCode(err), err.Error())
		return
	}
	sendResult(w, req.ID, result)
}

func errorCode(err error) int64 {
	switch {
	case errors.Is(err, jsonrpc2.ErrMethodNotFound):
		return codeMethodNotFound
	case errors.Is(err, jsonrpc2.ErrInvalidParams):
		return codeInvalidParams
	default:
		return codeInternalError
	}
}

func sendResult(w http.ResponseWriter, id any, result any) {
	writeResponse(w, JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func sendError(w http.ResponseWriter, id any, code int64, message string) {
	writeResponse(w, JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	})
}

func writeResponse(w http.ResponseWriter, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
