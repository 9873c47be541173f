package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

type fakeEngine struct {
	mu       sync.Mutex
	execute  func(ctx context.Context, sql string) (*columnar.RowSet, error)
	imports  []engine.ImportRequest
	importFn func(ctx context.Context, req engine.ImportRequest) (*engine.ImportResult, error)
	exports  []engine.ExportRequest
}

func (f *fakeEngine) Execute(ctx context.Context, sql string) (*columnar.RowSet, error) {
	return f.execute(ctx, sql)
}

func (f *fakeEngine) Import(ctx context.Context, req engine.ImportRequest) (*engine.ImportResult, error) {
	f.mu.Lock()
	f.imports = append(f.imports, req)
	f.mu.Unlock()
	if f.importFn != nil {
		return f.importFn(ctx, req)
	}
	return &engine.ImportResult{Table: req.TableName, Rows: columnar.NewRowSet(nil)}, nil
}

func (f *fakeEngine) Export(_ context.Context, req engine.ExportRequest) (engine.ExportResult, error) {
	f.mu.Lock()
	f.exports = append(f.exports, req)
	f.mu.Unlock()
	if req.Progress != nil {
		req.Progress(10, 10)
	}
	return engine.ExportResult{Bytes: 10}, nil
}

func intRows(t *testing.T, n int) *columnar.RowSet {
	t.Helper()
	rs := columnar.NewRowSet([]columnar.Column{{Name: "n"}})
	for i := 0; i < n; i++ {
		if err := rs.AppendDriverValues([]any{int64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return rs
}

func newTestDispatcher(eng Engine) (*Dispatcher, *events.Receiver) {
	d := NewDispatcher(eng, events.NewHub(events.DefaultCapacity), columnar.Options{})
	return d, d.Subscribe()
}

// drain collects every retained event without blocking.
func drain(t *testing.T, r *events.Receiver) []protocol.UiEvent {
	t.Helper()
	var out []protocol.UiEvent
	for {
		evt, ok, err := r.TryRecv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, evt.Event)
	}
}

func names(evts []protocol.UiEvent) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Name()
	}
	return out
}

func TestDispatchExecuteFinished(t *testing.T) {
	eng := &fakeEngine{execute: func(context.Context, string) (*columnar.RowSet, error) {
		return intRows(t, 20), nil
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	if err := d.Dispatch(context.Background(), protocol.Command{TaskID: 1, Type: protocol.ExecuteSQL{SQL: "x"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	evts := drain(t, r)
	if got := strings.Join(names(evts), ","); got != "Started,Finished" {
		t.Fatalf("unexpected sequence %s", got)
	}
	fin := evts[1].Kind.(protocol.Finished)
	if fin.RowCount != 20 || fin.ColumnCount != 1 {
		t.Fatalf("expected 20x1, got %dx%d", fin.RowCount, fin.ColumnCount)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(fin.Preview), &rows); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected preview capped at 10, got %d", len(rows))
	}
	if _, ok := rows[0]["col_0"]; !ok {
		t.Fatalf("expected positional key col_0, got %v", rows[0])
	}
}

func TestDispatchExecuteError(t *testing.T) {
	boom := taskerr.New(taskerr.KindExecution, "query", errors.New("table missing"))
	eng := &fakeEngine{execute: func(context.Context, string) (*columnar.RowSet, error) {
		return nil, boom
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	err := d.Dispatch(context.Background(), protocol.Command{TaskID: 9, Type: protocol.ExecuteSQL{SQL: "x"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected engine error returned, got %v", err)
	}

	evts := drain(t, r)
	if got := strings.Join(names(evts), ","); got != "Started,Error" {
		t.Fatalf("unexpected sequence %s", got)
	}
	msg := evts[1].Kind.(protocol.Error).Message
	if msg != err.Error() || !strings.Contains(msg, "table missing") {
		t.Fatalf("unexpected message %q", msg)
	}
	if len(d.Tasks()) != 0 {
		t.Fatalf("expected no tasks in flight")
	}
}

func TestDispatchEmptyResult(t *testing.T) {
	eng := &fakeEngine{execute: func(context.Context, string) (*columnar.RowSet, error) {
		return columnar.NewRowSet(nil), nil
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	if err := d.Dispatch(context.Background(), protocol.Command{TaskID: 1, Type: protocol.ExecuteSQL{SQL: "x"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	fin := drain(t, r)[1].Kind.(protocol.Finished)
	if fin.RowCount != 0 || fin.ColumnCount != 0 || fin.Preview != "[]" {
		t.Fatalf("unexpected finished %+v", fin)
	}
}

func TestDispatchImportProgressAndTableName(t *testing.T) {
	eng := &fakeEngine{importFn: func(_ context.Context, req engine.ImportRequest) (*engine.ImportResult, error) {
		req.Progress(0, 100)
		req.Progress(40, 100)
		req.Progress(30, 100)
		req.Progress(100, 100)
		return &engine.ImportResult{Table: req.TableName, Rows: intRows(t, 3)}, nil
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	table := "people"
	cmd := protocol.Command{TaskID: 5, Type: protocol.ImportFile{Path: "p.csv", Format: protocol.FormatCSV, TableName: &table, Overwrite: true}}
	if err := d.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	evts := drain(t, r)
	if got := strings.Join(names(evts), ","); got != "Started,Progress,Progress,Progress,Finished" {
		t.Fatalf("unexpected sequence %s", got)
	}
	var pcts []uint8
	for _, e := range evts[1:4] {
		pcts = append(pcts, e.Kind.(protocol.Progress).Pct)
	}
	if pcts[0] != 0 || pcts[1] != 40 || pcts[2] != 100 {
		t.Fatalf("expected monotonic 0,40,100, got %v", pcts)
	}
	last := evts[3].Kind.(protocol.Progress)
	if last.EtaSeconds == nil || *last.EtaSeconds != 0 {
		t.Fatalf("expected eta 0 at completion")
	}

	req := eng.imports[0]
	if req.TableName != "people" || !req.Overwrite || req.Format != protocol.FormatCSV {
		t.Fatalf("unexpected import request %+v", req)
	}
}

func TestDispatchExportFinishesEmpty(t *testing.T) {
	eng := &fakeEngine{}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	cmd := protocol.Command{TaskID: 3, Type: protocol.ExportFile{Source: "t", Path: "o.csv", Format: protocol.FormatCSV}}
	if err := d.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evts := drain(t, r)
	if got := strings.Join(names(evts), ","); got != "Started,Progress,Finished" {
		t.Fatalf("unexpected sequence %s", got)
	}
	fin := evts[2].Kind.(protocol.Finished)
	if fin.RowCount != 0 || fin.ColumnCount != 0 || fin.Preview != "[]" {
		t.Fatalf("unexpected finished %+v", fin)
	}
}

func TestDispatchCancelStopsImportAtSafePoint(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	eng := &fakeEngine{importFn: func(_ context.Context, req engine.ImportRequest) (*engine.ImportResult, error) {
		close(entered)
		<-release
		if req.Abort() {
			return nil, taskerr.New(taskerr.KindCancelled, "import file", engine.ErrCancelled)
		}
		return &engine.ImportResult{Rows: columnar.NewRowSet(nil)}, nil
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(ctx, protocol.Command{TaskID: 2, Type: protocol.ImportFile{Path: "a.csv"}})
	}()
	<-entered

	tasks := d.Tasks()
	if len(tasks) != 1 || tasks[0].TaskID != 2 || tasks[0].State != TaskRunning {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	if err := d.Dispatch(ctx, protocol.Command{TaskID: 4, Type: protocol.Cancel{TaskID: 2}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected cancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("import did not return")
	}

	byTask := map[uint64][]string{}
	for _, e := range drain(t, r) {
		byTask[e.TaskID] = append(byTask[e.TaskID], e.Name())
	}
	if got := strings.Join(byTask[4], ","); got != "Started,Finished" {
		t.Fatalf("cancel task events %s", got)
	}
	if got := strings.Join(byTask[2], ","); got != "Started,Error" {
		t.Fatalf("import task events %s", got)
	}
}

func TestDispatchCancelUnknownTask(t *testing.T) {
	d, r := newTestDispatcher(&fakeEngine{})
	defer r.Close()

	if err := d.Dispatch(context.Background(), protocol.Command{TaskID: 1, Type: protocol.Cancel{TaskID: 99}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := strings.Join(names(drain(t, r)), ","); got != "Started,Finished" {
		t.Fatalf("unexpected sequence %s", got)
	}
}

func TestDispatchMissingType(t *testing.T) {
	d, r := newTestDispatcher(&fakeEngine{})
	defer r.Close()

	err := d.Dispatch(context.Background(), protocol.Command{TaskID: 1})
	if !taskerr.Is(err, taskerr.KindInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if got := strings.Join(names(drain(t, r)), ","); got != "Started,Error" {
		t.Fatalf("unexpected sequence %s", got)
	}
}

func TestConcurrentDispatchAttribution(t *testing.T) {
	eng := &fakeEngine{execute: func(_ context.Context, sql string) (*columnar.RowSet, error) {
		if sql == "fail" {
			return nil, errors.New("bad")
		}
		return intRows(t, 1), nil
	}}
	d, r := newTestDispatcher(eng)
	defer r.Close()

	const n = 20
	var g errgroup.Group
	for i := 1; i <= n; i++ {
		id := uint64(i)
		sql := "ok"
		if id%2 == 0 {
			sql = "fail"
		}
		g.Go(func() error {
			err := d.Dispatch(context.Background(), protocol.Command{TaskID: id, Type: protocol.ExecuteSQL{SQL: sql}})
			if (err != nil) != (sql == "fail") {
				return errors.New("unexpected dispatch result")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("%v", err)
	}

	byTask := map[uint64][]string{}
	for _, e := range drain(t, r) {
		byTask[e.TaskID] = append(byTask[e.TaskID], e.Name())
	}
	for i := uint64(1); i <= n; i++ {
		want := "Started,Finished"
		if i%2 == 0 {
			want = "Started,Error"
		}
		if got := strings.Join(byTask[i], ","); got != want {
			t.Fatalf("task %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestDispatchAgainstDuckDB(t *testing.T) {
	ctx := context.Background()
	m, err := engine.Open(ctx, engine.Options{Driver: engine.DriverDuckDB})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer m.Close()
	d, r := newTestDispatcher(m)
	defer r.Close()

	path := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(path, []byte("id,name,value\n1,a,1.5\n2,b,2.5\n3,c,3.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cases := []struct {
		name    string
		cmd     protocol.CmdType
		rows    int
		cols    int
		contain []string
	}{
		{"scalar", protocol.ExecuteSQL{SQL: "SELECT 1 as num"}, 1, 1, []string{"1"}},
		{"aggregate", protocol.ExecuteSQL{SQL: "SELECT COUNT(*) as cnt, SUM(id) as total FROM (VALUES (1),(2),(3)) AS t(id)"}, 1, 2, []string{"3", "6"}},
		{"import", protocol.ImportFile{Path: path}, 3, 3, []string{`"col_0":1`}},
		{"nulls", protocol.ExecuteSQL{SQL: "SELECT NULL::INTEGER AS nullable_col"}, 1, 1, []string{`"col_0":null`}},
		{"no rows", protocol.ExecuteSQL{SQL: "SELECT 1 AS a WHERE false"}, 0, 0, []string{"[]"}},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := d.Dispatch(ctx, protocol.Command{TaskID: uint64(i + 1), Type: tc.cmd}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			evts := drain(t, r)
			fin, ok := evts[len(evts)-1].Kind.(protocol.Finished)
			if !ok {
				t.Fatalf("expected Finished last, got %v", names(evts))
			}
			if fin.RowCount != tc.rows || fin.ColumnCount != tc.cols {
				t.Fatalf("expected %dx%d, got %dx%d", tc.rows, tc.cols, fin.RowCount, fin.ColumnCount)
			}
			for _, s := range tc.contain {
				if !strings.Contains(fin.Preview, s) {
					t.Fatalf("preview %s does not contain %s", fin.Preview, s)
				}
			}
			var rows []map[string]any
			if err := json.Unmarshal([]byte(fin.Preview), &rows); err != nil {
				t.Fatalf("decode preview %s: %v", fin.Preview, err)
			}
			if len(rows) != tc.rows {
				t.Fatalf("preview has %d rows, want %d", len(rows), tc.rows)
			}
			if tc.rows > 0 && len(rows[0]) != tc.cols {
				t.Fatalf("preview row has %d keys, want %d: %s", len(rows[0]), tc.cols, fin.Preview)
			}
		})
	}

	err = d.Dispatch(ctx, protocol.Command{TaskID: 99, Type: protocol.ExecuteSQL{SQL: "SELECT * FROM nonexistent_table"}})
	if err == nil {
		t.Fatalf("expected failure")
	}
	evts := drain(t, r)
	if got := strings.Join(names(evts), ","); got != "Started,Error" {
		t.Fatalf("unexpected sequence %s", got)
	}
	if evts[1].Kind.(protocol.Error).Message == "" {
		t.Fatalf("expected non-empty error message")
	}
}
