package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/exp/jsonrpc2"

	"github.com/datawise/datawise/internal/protocol"
)

// DispatchResult carries the terminal event of a dispatched command.
type DispatchResult struct {
	TaskID uint64           `json:"task_id"`
	Event  protocol.UiEvent `json:"event"`
}

// FormatInfo describes a supported bulk file format.
type FormatInfo struct {
	Name      protocol.Format `json:"name"`
	Extension string          `json:"extension"`
}

// dispatch runs a command given as an object or a single-element array. A
// failing command is reported in the result, not as an RPC error.
func dispatch(ctx context.Context, d Dispatcher, raw json.RawMessage) (*DispatchResult, error) {
	cmd, err := decodeCommand(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}

	res := &DispatchResult{TaskID: cmd.TaskID}
	finished, err := d.Run(ctx, cmd)
	if err != nil {
		res.Event = protocol.UiEvent{TaskID: cmd.TaskID, Kind: protocol.Error{Message: err.Error()}}
		return res, nil
	}
	res.Event = protocol.UiEvent{TaskID: cmd.TaskID, Kind: finished}
	return res, nil
}

func decodeCommand(raw json.RawMessage) (protocol.Command, error) {
	var cmd protocol.Command
	if len(raw) == 0 {
		return cmd, errors.New("missing command")
	}
	if raw[0] == '[' {
		var arr []protocol.Command
		if err := json.Unmarshal(raw, &arr); err != nil {
			return cmd, err
		}
		if len(arr) != 1 {
			return cmd, fmt.Errorf("expected one command, got %d", len(arr))
		}
		return arr[0], nil
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func formats() []FormatInfo {
	all := []protocol.Format{protocol.FormatCSV, protocol.FormatParquet, protocol.FormatJSON}
	out := make([]FormatInfo, 0, len(all))
	for _, f := range all {
		out = append(out, FormatInfo{Name: f, Extension: f.Extension()})
	}
	return out
}
