package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
	"github.com/datawise/datawise/internal/pkg/stringutil"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

// duckDialect hands bulk transfer to DuckDB's file readers and COPY.
type duckDialect struct{}

func (duckDialect) memoryDSN() string { return "" }

func (duckDialect) load(ctx context.Context, tx *dblogged.Tx, job loadJob) error {
	var reader string
	switch job.format {
	case protocol.FormatCSV:
		reader = "read_csv_auto"
	case protocol.FormatParquet:
		reader = "read_parquet"
	case protocol.FormatJSON:
		reader = "read_json_auto"
	default:
		return taskerr.Errorf(taskerr.KindInvalid, "import file", "cannot import %q files", job.format)
	}
	if job.aborted() {
		return taskerr.New(taskerr.KindCancelled, "import file", ErrCancelled)
	}
	query := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s(%s)",
		stringutil.QuoteIdentifier(job.table), reader, stringutil.QuoteLiteral(job.path))
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return taskerr.New(taskerr.KindExecution, "import file", err)
	}
	return nil
}

func (duckDialect) unload(ctx context.Context, conn *dblogged.Conn, job unloadJob) error {
	var options string
	switch job.format {
	case protocol.FormatCSV:
		options = "(FORMAT CSV, HEADER TRUE)"
	case protocol.FormatParquet:
		options = "(FORMAT PARQUET)"
	case protocol.FormatJSON:
		options = "(FORMAT JSON)"
	default:
		return taskerr.Errorf(taskerr.KindInvalid, "export file", "cannot export %q files", job.format)
	}
	source := job.source
	if job.isQuery {
		source = "(" + source + ")"
	}
	query := fmt.Sprintf("COPY %s TO %s %s", source, stringutil.QuoteLiteral(job.path), options)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return taskerr.New(taskerr.KindExecution, "export file", err)
	}
	return nil
}

func (duckDialect) value(col columnar.Column, v any) any {
	switch x := v.(type) {
	case duckdb.Decimal:
		return decimalText(x)
	case []byte:
		if len(x) == 16 && strings.EqualFold(col.DatabaseType, "UUID") {
			if id, err := uuid.FromBytes(x); err == nil {
				return id.String()
			}
		}
	}
	return v
}

// decimalText renders a DuckDB decimal exactly. It stays an unsupported cell
// and only reaches string columns as text.
type decimalText duckdb.Decimal

func (d decimalText) String() string {
	if d.Value == nil {
		return ""
	}
	digits := new(big.Int).Abs(d.Value).String()
	scale := int(d.Scale)
	if scale > 0 {
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if d.Value.Sign() < 0 {
		return "-" + digits
	}
	return digits
}
