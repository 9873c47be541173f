package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/service"
)

type fakeDispatcher struct {
	got []protocol.Command
	err error
}

func (f *fakeDispatcher) Run(_ context.Context, cmd protocol.Command) (protocol.Finished, error) {
	f.got = append(f.got, cmd)
	if f.err != nil {
		return protocol.Finished{}, f.err
	}
	return protocol.Finished{RowCount: 1, ColumnCount: 1, Preview: `[{"col_0":1}]`}, nil
}

func (f *fakeDispatcher) Tasks() []service.TaskView {
	return []service.TaskView{{TaskID: 9, Command: "ExecuteSql", State: service.TaskRunning}}
}

func call(t *testing.T, h http.Handler, body string) JSONRPCResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestDispatch(t *testing.T) {
	cases := []struct {
		name   string
		params string
	}{
		{"object", `{"task_id":3,"cmd_type":{"ExecuteSql":{"sql":"SELECT 1"}}}`},
		{"positional", `[{"task_id":3,"cmd_type":{"ExecuteSql":{"sql":"SELECT 1"}}}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			resp := call(t, NewHTTPHandler(NewHandler(d)),
				`{"jsonrpc":"2.0","id":1,"method":"dispatch","params":`+tc.params+`}`)
			if resp.Error != nil {
				t.Fatalf("unexpected error %+v", resp.Error)
			}
			if resp.ID != float64(1) {
				t.Fatalf("expected id 1, got %v", resp.ID)
			}
			if len(d.got) != 1 || d.got[0].TaskID != 3 {
				t.Fatalf("unexpected dispatched commands %+v", d.got)
			}
			if sql := d.got[0].Type.(protocol.ExecuteSQL).SQL; sql != "SELECT 1" {
				t.Fatalf("unexpected sql %q", sql)
			}

			raw, _ := json.Marshal(resp.Result)
			var res struct {
				TaskID uint64           `json:"task_id"`
				Event  protocol.UiEvent `json:"event"`
			}
			if err := json.Unmarshal(raw, &res); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			fin, ok := res.Event.Kind.(protocol.Finished)
			if !ok || res.TaskID != 3 || fin.RowCount != 1 {
				t.Fatalf("unexpected result %s", raw)
			}
		})
	}
}

func TestDispatchFailureIsResult(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("boom")}
	resp := call(t, NewHTTPHandler(NewHandler(d)),
		`{"jsonrpc":"2.0","id":"a","method":"dispatch","params":{"task_id":4,"cmd_type":{"Cancel":{"task_id":1}}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	if !strings.Contains(string(raw), `{"Error":{"message":"boom"}}`) {
		t.Fatalf("expected error event, got %s", raw)
	}
}

func TestErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int64
	}{
		{"parse", `{not json`, codeParseError},
		{"version", `{"jsonrpc":"1.0","id":1,"method":"tasks"}`, codeInvalidRequest},
		{"id type", `{"jsonrpc":"2.0","id":[1],"method":"tasks"}`, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, codeMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"dispatch"}`, codeInvalidParams},
		{"bad command", `{"jsonrpc":"2.0","id":1,"method":"dispatch","params":{"task_id":1,"cmd_type":{"Drop":{}}}}`, codeInvalidParams},
		{"two commands", `{"jsonrpc":"2.0","id":1,"method":"dispatch","params":[{},{}]}`, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, NewHTTPHandler(NewHandler(&fakeDispatcher{})), tc.body)
			if resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("expected code %d, got %+v", tc.code, resp.Error)
			}
		})
	}
}

func TestTasksAndFormats(t *testing.T) {
	h := NewHTTPHandler(NewHandler(&fakeDispatcher{}))

	resp := call(t, h, `{"jsonrpc":"2.0","id":1,"method":"tasks"}`)
	raw, _ := json.Marshal(resp.Result)
	var tasks []service.TaskView
	if err := json.Unmarshal(raw, &tasks); err != nil || len(tasks) != 1 || tasks[0].TaskID != 9 {
		t.Fatalf("unexpected tasks %s (%v)", raw, err)
	}

	resp = call(t, h, `{"jsonrpc":"2.0","id":2,"method":"formats"}`)
	raw, _ = json.Marshal(resp.Result)
	var got []FormatInfo
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode formats %s: %v", raw, err)
	}
	want := []FormatInfo{
		{Name: protocol.FormatCSV, Extension: "csv"},
		{Name: protocol.FormatParquet, Extension: "parquet"},
		{Name: protocol.FormatJSON, Extension: "json"},
	}
	if len(got) != len(want) {
		t.Fatalf("formats = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("formats[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(NewHandler(&fakeDispatcher{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
