package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"importkit/internal/source"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func openConnector(t *testing.T, cfg source.Config) source.Connector {
	t.Helper()
	conn, err := source.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDiscoverSchemaInfersTypes(t *testing.T) {
	path := writeFile(t, "Sales Orders.csv", ""+
		"id,total,shipped,created,note\n"+
		"1,10.50,true,2024-01-02,first\n"+
		"2,3.25,false,2024-02-03,second\n"+
		"3,7.00,true,2024-03-04,\n")

	conn := openConnector(t, source.Config{Kind: "csv", Path: path, HasHeader: true})
	snap, err := conn.DiscoverSchema(context.Background())
	if err != nil {
		t.Fatalf("DiscoverSchema: %v", err)
	}
	if len(snap.Tables) != 1 {
		t.Fatalf("tables: got %d, want 1", len(snap.Tables))
	}
	tab := snap.Tables[0]
	if tab.Name != "sales_orders" {
		t.Errorf("table name: got %q, want sales_orders", tab.Name)
	}
	if tab.EstimatedRecordCount != 3 {
		t.Errorf("record count: got %d, want 3", tab.EstimatedRecordCount)
	}

	wantTypes := map[string]string{
		"id":      "integer",
		"total":   "number",
		"shipped": "boolean",
		"created": "date",
		"note":    "string",
	}
	for _, f := range tab.Fields {
		if want := wantTypes[f.Name]; f.Type != want {
			t.Errorf("field %s: got type %q, want %q", f.Name, f.Type, want)
		}
		if !f.Nullable {
			t.Errorf("field %s: flat-file fields are always nullable", f.Name)
		}
	}
}

func TestDiscoverSchemaWithoutHeader(t *testing.T) {
	path := writeFile(t, "plain.csv", "1,alpha\n2,beta\n")
	conn := openConnector(t, source.Config{Kind: "csv", Path: path})
	snap, err := conn.DiscoverSchema(context.Background())
	if err != nil {
		t.Fatalf("DiscoverSchema: %v", err)
	}
	fields := snap.Tables[0].Fields
	if len(fields) != 2 || fields[0].Name != "col_1" || fields[1].Name != "col_2" {
		t.Errorf("generated headers: %+v", fields)
	}
	if fields[0].Type != "integer" {
		t.Errorf("col_1 type: got %q, want integer", fields[0].Type)
	}
	if snap.Tables[0].EstimatedRecordCount != 2 {
		t.Errorf("record count: got %d, want 2", snap.Tables[0].EstimatedRecordCount)
	}
}

func TestPreviewTable(t *testing.T) {
	path := writeFile(t, "people.csv", ""+
		"name;city\n"+
		"ada;london\n"+
		"grace;new york\n"+
		"linus;helsinki\n")

	conn := openConnector(t, source.Config{Kind: "csv", Path: path, HasHeader: true, Delimiter: ";"})

	p, err := conn.PreviewTable(context.Background(), "people", 2)
	if err != nil {
		t.Fatalf("PreviewTable: %v", err)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(p.Rows))
	}
	if p.TotalCount != 3 {
		t.Errorf("total count: got %d, want 3", p.TotalCount)
	}
	if got := p.Rows[0]["name"]; got != "ada" {
		t.Errorf("first row name: got %v", got)
	}

	if _, err := conn.PreviewTable(context.Background(), "nope", 2); err == nil {
		t.Error("unknown table: want error")
	}
}

func TestMisalignedRowsAreSkipped(t *testing.T) {
	path := writeFile(t, "ragged.csv", ""+
		"a,b\n"+
		"1,2\n"+
		"only-one-field\n"+
		"3,4\n")

	conn := openConnector(t, source.Config{Kind: "csv", Path: path, HasHeader: true})
	p, err := conn.PreviewTable(context.Background(), "ragged", 10)
	if err != nil {
		t.Fatalf("PreviewTable: %v", err)
	}
	if len(p.Rows) != 2 {
		t.Errorf("aligned rows: got %d, want 2", len(p.Rows))
	}
}

func TestBOMHeaderStripped(t *testing.T) {
	path := writeFile(t, "bom.csv", "\uFEFFid,name\n1,x\n")
	conn := openConnector(t, source.Config{Kind: "csv", Path: path, HasHeader: true})
	snap, err := conn.DiscoverSchema(context.Background())
	if err != nil {
		t.Fatalf("DiscoverSchema: %v", err)
	}
	if got := snap.Tables[0].Fields[0].Name; got != "id" {
		t.Errorf("first header: got %q, want id", got)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := source.Open(context.Background(), source.Config{Kind: "csv"}); err == nil {
		t.Error("empty path: want error")
	}
	if _, err := source.Open(context.Background(), source.Config{Kind: "csv", Path: "/no/such/file.csv"}); err == nil {
		t.Error("missing file: want error")
	}
}

func TestPreviewJoinUnsupported(t *testing.T) {
	path := writeFile(t, "a.csv", "x\n1\n")
	conn := openConnector(t, source.Config{Kind: "csv", Path: path, HasHeader: true})
	if _, err := conn.PreviewJoin(context.Background(), "a", nil, 5); err != source.ErrJoinUnsupported {
		t.Errorf("PreviewJoin: got %v, want ErrJoinUnsupported", err)
	}
}

func TestInferTypeForColumn(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"integers", []string{"1", "42", "-7"}, "integer"},
		{"floats", []string{"1.5", "2,5"}, "number"},
		{"mixed int and float widens to number", []string{"1", "2.5"}, "number"},
		{"booleans", []string{"true", "no", "Y"}, "boolean"},
		{"dates", []string{"2024-01-02", "03.04.2024"}, "date"},
		{"timestamps", []string{"2024-01-02 10:00:00", "2024-01-03"}, "datetime"},
		{"strings", []string{"hello", "1", "true"}, "string"},
		{"empty column", []string{"", "  "}, "string"},
		{"empties ignored", []string{"1", "", "2"}, "integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferTypeForColumn(tt.values); got != tt.want {
				t.Errorf("inferTypeForColumn(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}
