package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/httpapi"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/service"
)

func unixClient(sockPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		},
	}
}

func send(t *testing.T, client *http.Client, cmd protocol.Command) (int, protocol.UiEvent) {
	t.Helper()
	body, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	resp, err := client.Post("http://datawise/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post command: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var evt protocol.UiEvent
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode event %s: %v", data, err)
		}
	}
	return resp.StatusCode, evt
}

func TestImportQueryExportOverUDS(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := engine.Open(ctx, engine.Options{Driver: engine.DriverDuckDB})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer m.Close()

	hub := events.NewHub(events.DefaultCapacity)
	defer hub.Close()
	d := service.NewDispatcher(m, hub, columnar.Options{Naming: columnar.NamingEngine})

	sockPath := filepath.Join(dir, "datawise.sock")
	srv, err := httpapi.NewUnixServer(ctx, httpapi.NewHandler(d), sockPath)
	if err != nil {
		t.Fatalf("start unix server: %v", err)
	}
	defer func() {
		_ = srv.Shutdown()
	}()
	client := unixClient(sockPath)

	csvPath := filepath.Join(dir, "cities.csv")
	if err := os.WriteFile(csvPath, []byte("name,population\nOslo,709000\nBergen,291000\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	status, evt := send(t, client, protocol.Command{TaskID: 1, Type: protocol.ImportFile{Path: csvPath}})
	if status != http.StatusOK {
		t.Fatalf("import status %d", status)
	}
	if fin := evt.Kind.(protocol.Finished); fin.RowCount != 2 || fin.ColumnCount != 2 {
		t.Fatalf("unexpected import result %+v", fin)
	}

	status, evt = send(t, client, protocol.Command{TaskID: 2, Type: protocol.ExecuteSQL{
		SQL: "SELECT name FROM cities ORDER BY population DESC",
	}})
	if status != http.StatusOK {
		t.Fatalf("query status %d", status)
	}
	if fin := evt.Kind.(protocol.Finished); fin.Preview != `[{"name":"Oslo"},{"name":"Bergen"}]` {
		t.Fatalf("unexpected preview %s", fin.Preview)
	}

	outPath := filepath.Join(dir, "big.parquet")
	status, _ = send(t, client, protocol.Command{TaskID: 3, Type: protocol.ExportFile{
		Source: "SELECT * FROM cities WHERE population > 500000",
		Path:   outPath,
	}})
	if status != http.StatusOK {
		t.Fatalf("export status %d", status)
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected parquet output, stat err %v", err)
	}

	status, _ = send(t, client, protocol.Command{TaskID: 4, Type: protocol.ImportFile{Path: csvPath}})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected re-import without overwrite to fail, got %d", status)
	}

	resp, err := client.Post("http://datawise/rpc", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"dispatch","params":{"task_id":5,"cmd_type":{"ExecuteSql":{"sql":"SELECT count(*) AS n FROM cities"}}}}`))
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `\"n\":2`) {
		t.Fatalf("unexpected rpc response %s", data)
	}
}
