package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

// dispatchCommand runs a command to completion and answers with its terminal
// event.
func (h *Handler) dispatchCommand(w http.ResponseWriter, r *http.Request) {
	var cmd protocol.Command
	if err := decodeJSON(r.Body, &cmd); err != nil {
		respondError(w, http.StatusBadRequest, string(taskerr.KindInvalid), "invalid command payload", map[string]any{"error": err.Error()})
		return
	}

	finished, err := h.dispatcher.Run(r.Context(), cmd)
	if err != nil {
		kind := taskerr.KindOf(err)
		slog.DebugContext(r.Context(), "command failed", slog.String("kind", string(kind)), slog.Any("err", err))
		respondError(w, statusFor(kind), string(kind), err.Error(), map[string]any{"task_id": cmd.TaskID})
		return
	}
	respondJSON(w, http.StatusOK, protocol.UiEvent{TaskID: cmd.TaskID, Kind: finished})
}

func (h *Handler) listTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.dispatcher.Tasks())
}

func statusFor(kind taskerr.Kind) int {
	switch kind {
	case taskerr.KindInvalid:
		return http.StatusBadRequest
	case taskerr.KindCancelled:
		return http.StatusConflict
	case taskerr.KindIO, taskerr.KindPrepare, taskerr.KindExecution:
		return http.StatusUnprocessableEntity
	case taskerr.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
