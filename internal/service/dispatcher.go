package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/pkg/logctx"
	"github.com/datawise/datawise/internal/preview"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

// ErrCancelled is returned when a task observed a Cancel command at a safe
// point.
var ErrCancelled = engine.ErrCancelled

// emptyPreview is the preview of a task that produces no rows.
const emptyPreview = "[]"

// Engine runs commands against the shared connection.
type Engine interface {
	Execute(ctx context.Context, sql string) (*columnar.RowSet, error)
	Import(ctx context.Context, req engine.ImportRequest) (*engine.ImportResult, error)
	Export(ctx context.Context, req engine.ExportRequest) (engine.ExportResult, error)
}

// Dispatcher runs commands and reports their lifecycle on the event hub.
type Dispatcher struct {
	engine  Engine
	hub     *events.Hub
	options columnar.Options

	mu    sync.Mutex
	tasks map[string]*task
}

// NewDispatcher creates a dispatcher publishing to hub.
func NewDispatcher(eng Engine, hub *events.Hub, options columnar.Options) *Dispatcher {
	return &Dispatcher{
		engine:  eng,
		hub:     hub,
		options: options,
		tasks:   make(map[string]*task),
	}
}

// Subscribe returns a receiver for every event published from now on.
func (d *Dispatcher) Subscribe() *events.Receiver {
	return d.hub.Subscribe()
}

// Tasks returns the tasks currently in flight, ordered by task id.
func (d *Dispatcher) Tasks() []TaskView {
	d.mu.Lock()
	views := make([]TaskView, 0, len(d.tasks))
	for _, t := range d.tasks {
		views = append(views, t.view())
	}
	d.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].TaskID != views[j].TaskID {
			return views[i].TaskID < views[j].TaskID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Dispatch runs cmd to completion on the calling goroutine. It publishes
// Started, then optional Progress events, then exactly one Finished or Error
// event, and returns the same failure it published.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command) error {
	_, err := d.Run(ctx, cmd)
	return err
}

// Run is Dispatch that also hands back the published Finished event.
func (d *Dispatcher) Run(ctx context.Context, cmd protocol.Command) (protocol.Finished, error) {
	run := uuid.NewString()
	ctx = logctx.WithTask(ctx, cmd.TaskID, run, cmd.Name())

	t := newTask(cmd.TaskID, run, cmd.Name())
	d.register(t)
	defer d.unregister(t)

	d.publish(t.id, protocol.Started{})
	t.advance(TaskStarted)
	slog.DebugContext(ctx, "task started")

	result, err := d.run(ctx, t, cmd)
	if err != nil {
		t.advance(TaskFailed)
		d.publish(t.id, protocol.Error{Message: err.Error()})
		slog.ErrorContext(ctx, "task failed",
			slog.String("kind", string(taskerr.KindOf(err))),
			slog.Any("err", err))
		return protocol.Finished{}, err
	}

	t.advance(TaskFinished)
	d.publish(t.id, result)
	slog.DebugContext(ctx, "task finished",
		slog.Int("rows", result.RowCount),
		slog.Int("columns", result.ColumnCount))
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, t *task, cmd protocol.Command) (protocol.Finished, error) {
	if cmd.Type == nil {
		return protocol.Finished{}, taskerr.Errorf(taskerr.KindInvalid, "dispatch", "command has no type")
	}
	if t.cancelled() {
		return protocol.Finished{}, taskerr.New(taskerr.KindCancelled, cmd.Name(), ErrCancelled)
	}
	t.advance(TaskRunning)

	switch c := cmd.Type.(type) {
	case protocol.ExecuteSQL:
		rs, err := d.engine.Execute(ctx, c.SQL)
		if err != nil {
			return protocol.Finished{}, fmt.Errorf("execute sql: %w", err)
		}
		return d.finish(rs)

	case protocol.ImportFile:
		progress := newProgressReporter(func(p protocol.Progress) { d.publish(t.id, p) })
		req := engine.ImportRequest{
			Path:      c.Path,
			Format:    c.Format,
			Overwrite: c.Overwrite,
			Progress:  progress.report,
			Abort:     t.cancelled,
		}
		if c.TableName != nil {
			req.TableName = *c.TableName
		}
		res, err := d.engine.Import(ctx, req)
		if err != nil {
			return protocol.Finished{}, fmt.Errorf("import %s: %w", c.Path, err)
		}
		return d.finish(res.Rows)

	case protocol.ExportFile:
		progress := newProgressReporter(func(p protocol.Progress) { d.publish(t.id, p) })
		_, err := d.engine.Export(ctx, engine.ExportRequest{
			Source:   c.Source,
			Path:     c.Path,
			Format:   c.Format,
			Progress: progress.report,
			Abort:    t.cancelled,
		})
		if err != nil {
			return protocol.Finished{}, fmt.Errorf("export to %s: %w", c.Path, err)
		}
		return protocol.Finished{Preview: emptyPreview}, nil

	case protocol.Cancel:
		n := d.cancel(c.TaskID)
		slog.InfoContext(ctx, "cancel requested",
			slog.Uint64("target", c.TaskID),
			slog.Int("matched", n))
		return protocol.Finished{Preview: emptyPreview}, nil

	default:
		return protocol.Finished{}, taskerr.Errorf(taskerr.KindInvalid, "dispatch", "unsupported command %T", cmd.Type)
	}
}

// finish converts rs into a record and renders its preview.
func (d *Dispatcher) finish(rs *columnar.RowSet) (protocol.Finished, error) {
	rec, err := columnar.Build(rs, d.options)
	if err != nil {
		return protocol.Finished{}, fmt.Errorf("convert result: %w", err)
	}
	defer rec.Release()

	out, err := preview.Build(rec)
	if err != nil {
		return protocol.Finished{}, fmt.Errorf("render preview: %w", err)
	}
	return protocol.Finished{
		RowCount:    int(rec.NumRows()),
		ColumnCount: int(rec.NumCols()),
		Preview:     out,
	}, nil
}

// cancel flags every in-flight task with id and returns how many matched.
func (d *Dispatcher) cancel(id uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tasks {
		if t.id == id {
			t.cancel.Store(true)
			n++
		}
	}
	return n
}

func (d *Dispatcher) register(t *task) {
	d.mu.Lock()
	d.tasks[t.run] = t
	d.mu.Unlock()
}

func (d *Dispatcher) unregister(t *task) {
	d.mu.Lock()
	delete(d.tasks, t.run)
	d.mu.Unlock()
}

func (d *Dispatcher) publish(taskID uint64, kind protocol.EventKind) {
	d.hub.Publish(protocol.UiEvent{TaskID: taskID, Kind: kind})
}
