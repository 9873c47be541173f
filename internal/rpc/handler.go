// Package rpc exposes the dispatcher as JSON-RPC 2.0 methods.
package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/exp/jsonrpc2"

	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/service"
)

// Dispatcher is the part of service.Dispatcher the RPC methods use.
type Dispatcher interface {
	Run(ctx context.Context, cmd protocol.Command) (protocol.Finished, error)
	Tasks() []service.TaskView
}

// Handler handles JSON-RPC requests using the jsonrpc2 library
type Handler struct {
	dispatcher Dispatcher
}

func NewHandler(dispatcher Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Handle implements the jsonrpc2.Handler interface
func (h *Handler) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	slog.DebugContext(ctx, "rpc request", slog.String("method", req.Method))

	switch req.Method {
	case "dispatch":
		return dispatch(ctx, h.dispatcher, req.Params)
	case "tasks":
		return h.dispatcher.Tasks(), nil
	case "formats":
		return formats(), nil
	default:
		slog.ErrorContext(ctx, "rpc method not found", slog.String("method", req.Method))
		return nil, fmt.Errorf("%w: %s", jsonrpc2.ErrMethodNotFound, req.Method)
	}
}
