package events

const (
	// TaskEvent is the SSE event name carrying one UiEvent.
	TaskEvent = "task"
	// LaggedEvent is the SSE event name emitted when a stream skipped events.
	LaggedEvent = "lagged"
)

// LaggedPayload tells a stream consumer how many events it missed.
type LaggedPayload struct {
	Missed uint64 `json:"missed"`
}
