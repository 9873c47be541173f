package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/datawise/datawise/internal/events"
)

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	ctx := r.Context()
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.DebugContext(ctx, "failed to disable write deadline for SSE", slog.Any("err", err))
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rcv := h.dispatcher.Subscribe()
	defer rcv.Close()

	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	flusher.Flush()

	for {
		waitCtx, cancel := context.WithTimeout(ctx, h.heartbeat)
		evt, err := rcv.Recv(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := writeSSE(w, strconv.FormatUint(evt.Seq, 10), events.TaskEvent, evt); err != nil {
				slog.DebugContext(ctx, "sse write failed", slog.Any("err", err))
				return
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				slog.DebugContext(ctx, "sse heartbeat write failed", slog.Any("err", err))
				return
			}
		default:
			missed, lagged := events.IsLagged(err)
			if !lagged {
				return
			}
			slog.WarnContext(ctx, "sse subscriber lagged", slog.Uint64("missed", missed))
			if err := writeSSE(w, "", events.LaggedEvent, events.LaggedPayload{Missed: missed}); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// writeSSE writes one event frame. An empty id omits the id line.
func writeSSE(w http.ResponseWriter, id, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
