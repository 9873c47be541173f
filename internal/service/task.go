package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is the lifecycle position of a dispatched command.
type TaskState string

const (
	TaskPending  TaskState = "pending"
	TaskStarted  TaskState = "started"
	TaskRunning  TaskState = "running"
	TaskFinished TaskState = "finished"
	TaskFailed   TaskState = "failed"
)

var stateOrder = map[TaskState]int{
	TaskPending:  0,
	TaskStarted:  1,
	TaskRunning:  2,
	TaskFinished: 3,
	TaskFailed:   3,
}

// TaskView is a snapshot of an active task.
type TaskView struct {
	TaskID    uint64     `json:"task_id"`
	Run       string     `json:"run"`
	Command   string     `json:"command"`
	State     TaskState  `json:"state"`
	Cancelled bool       `json:"cancelled"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type task struct {
	id        uint64
	run       string
	command   string
	createdAt time.Time
	cancel    atomic.Bool

	mu        sync.Mutex
	state     TaskState
	startedAt *time.Time
}

func newTask(id uint64, run, command string) *task {
	return &task{
		id:        id,
		run:       run,
		command:   command,
		createdAt: time.Now().UTC(),
		state:     TaskPending,
	}
}

// advance moves the task forward. Backward or terminal-to-terminal moves are
// refused.
func (t *task) advance(to TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stateOrder[to] <= stateOrder[t.state] {
		return false
	}
	if to == TaskStarted {
		now := time.Now().UTC()
		t.startedAt = &now
	}
	t.state = to
	return true
}

func (t *task) cancelled() bool {
	return t.cancel.Load()
}

func (t *task) view() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskView{
		TaskID:    t.id,
		Run:       t.run,
		Command:   t.command,
		State:     t.state,
		Cancelled: t.cancel.Load(),
		CreatedAt: t.createdAt,
		StartedAt: t.startedAt,
	}
}
