package stringutil

import "testing"

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"/data/People.csv":      "people",
		"sales 2024-Q1.parquet": "sales_2024_q1",
		"2024.json":             "t_2024",
		"../dir/__.csv":         "",
		"événements.csv":        "v_nements",
		"orders.backup.jsonl":   "orders_backup",
	}
	for in, want := range cases {
		if got := TableName(in); got != want {
			t.Fatalf("TableName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoting(t *testing.T) {
	if got := QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Fatalf("unexpected identifier %s", got)
	}
	if got := QuoteLiteral("it's"); got != "'it''s'" {
		t.Fatalf("unexpected literal %s", got)
	}
}
