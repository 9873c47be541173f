package protocol

import (
	"encoding/json"
	"fmt"
)

// UiEvent reports task lifecycle to subscribers.
type UiEvent struct {
	TaskID uint64
	Kind   EventKind
}

// EventKind is one of Started, Progress, Finished or Error.
type EventKind interface {
	eventName() string
	// Terminal reports whether no further events follow for the task.
	Terminal() bool
}

type Started struct{}

type Progress struct {
	Pct            uint8   `json:"pct"`
	BytesProcessed uint64  `json:"bytes_processed"`
	TotalBytes     uint64  `json:"total_bytes"`
	EtaSeconds     *uint32 `json:"eta_seconds"`
}

type Finished struct {
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Preview     string `json:"preview"`
}

type Error struct {
	Message string `json:"message"`
}

func (Started) eventName() string  { return "Started" }
func (Progress) eventName() string { return "Progress" }
func (Finished) eventName() string { return "Finished" }
func (Error) eventName() string    { return "Error" }

func (Started) Terminal() bool  { return false }
func (Progress) Terminal() bool { return false }
func (Finished) Terminal() bool { return true }
func (Error) Terminal() bool    { return true }

// Name returns the wire name of the event kind.
func (e UiEvent) Name() string {
	if e.Kind == nil {
		return ""
	}
	return e.Kind.eventName()
}

type eventWire struct {
	TaskID uint64          `json:"task_id"`
	Kind   json.RawMessage `json:"kind"`
}

func (e UiEvent) MarshalJSON() ([]byte, error) {
	var kind json.RawMessage
	switch k := e.Kind.(type) {
	case nil:
		return nil, fmt.Errorf("event for task %d has no kind", e.TaskID)
	case Started:
		kind = json.RawMessage(`"Started"`)
	default:
		body, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		kind, err = json.Marshal(map[string]json.RawMessage{k.eventName(): body})
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(eventWire{TaskID: e.TaskID, Kind: kind})
}

func (e *UiEvent) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var unit string
	if err := json.Unmarshal(w.Kind, &unit); err == nil {
		if unit != "Started" {
			return fmt.Errorf("unknown event kind %q", unit)
		}
		e.TaskID, e.Kind = w.TaskID, Started{}
		return nil
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(w.Kind, &tagged); err != nil {
		return fmt.Errorf("decode event kind: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("event kind must have exactly one variant, got %d", len(tagged))
	}
	for name, body := range tagged {
		var (
			kind EventKind
			err  error
		)
		switch name {
		case "Progress":
			var v Progress
			err = json.Unmarshal(body, &v)
			kind = v
		case "Finished":
			var v Finished
			err = json.Unmarshal(body, &v)
			kind = v
		case "Error":
			var v Error
			err = json.Unmarshal(body, &v)
			kind = v
		default:
			return fmt.Errorf("unknown event kind %q", name)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		e.TaskID, e.Kind = w.TaskID, kind
	}
	return nil
}
