package httpapi

import (
	"context"
	"time"

	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/service"
)

// Dispatcher is the part of service.Dispatcher the HTTP API uses.
type Dispatcher interface {
	Run(ctx context.Context, cmd protocol.Command) (protocol.Finished, error)
	Tasks() []service.TaskView
	Subscribe() *events.Receiver
}

// Handler wires HTTP requests to the dispatcher.
type Handler struct {
	dispatcher Dispatcher
	heartbeat  time.Duration
}

func NewHandler(dispatcher Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher, heartbeat: 15 * time.Second}
}
