package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"importkit/internal/source"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func openConnector(t *testing.T, url string) source.Connector {
	t.Helper()
	conn, err := source.Open(context.Background(), source.Config{Kind: "rest", URL: url})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDiscoverBareArray(t *testing.T) {
	srv := serve(t, jsonHandler(`[
		{"id": 1, "name": "ada", "score": 9.5, "active": true},
		{"id": 2, "name": "grace", "score": 8.0, "active": false}
	]`))

	conn := openConnector(t, srv.URL+"/api/People")
	snap, err := conn.DiscoverSchema(context.Background())
	if err != nil {
		t.Fatalf("DiscoverSchema: %v", err)
	}
	if len(snap.Tables) != 1 {
		t.Fatalf("tables: got %d, want 1", len(snap.Tables))
	}
	tab := snap.Tables[0]
	if tab.Name != "people" {
		t.Errorf("table name: got %q, want people", tab.Name)
	}
	if tab.EstimatedRecordCount != 2 {
		t.Errorf("record count: got %d, want 2", tab.EstimatedRecordCount)
	}

	wantTypes := map[string]string{
		"id":     "integer",
		"name":   "string",
		"score":  "number",
		"active": "boolean",
	}
	for _, f := range tab.Fields {
		if want := wantTypes[f.Name]; f.Type != want {
			t.Errorf("field %s: got %q, want %q", f.Name, f.Type, want)
		}
	}
}

func TestDiscoverObjectOfArrays(t *testing.T) {
	srv := serve(t, jsonHandler(`{
		"Customers": [{"id": 1}],
		"Orders": [{"id": 10, "total": 3.5}, {"id": 11, "total": 4}],
		"meta": {"page": 1}
	}`))

	conn := openConnector(t, srv.URL)
	snap, err := conn.DiscoverSchema(context.Background())
	if err != nil {
		t.Fatalf("DiscoverSchema: %v", err)
	}
	if len(snap.Tables) != 2 {
		t.Fatalf("tables: got %d, want 2 (non-array keys skipped): %v", len(snap.Tables), snap.TableNames())
	}
	if snap.Tables[0].Name != "customers" || snap.Tables[1].Name != "orders" {
		t.Errorf("table names: %v", snap.TableNames())
	}

	// total mixes whole and fractional values and must widen to number.
	orders := snap.Table("orders")
	for _, f := range orders.Fields {
		if f.Name == "total" && f.Type != "number" {
			t.Errorf("total: got %q, want number", f.Type)
		}
	}
}

func TestPreviewTable(t *testing.T) {
	srv := serve(t, jsonHandler(`{"items": [
		{"id": 1}, {"id": 2}, {"id": 3}
	]}`))

	conn := openConnector(t, srv.URL)
	p, err := conn.PreviewTable(context.Background(), "Items", 2)
	if err != nil {
		t.Fatalf("PreviewTable: %v", err)
	}
	if len(p.Rows) != 2 {
		t.Errorf("rows: got %d, want 2", len(p.Rows))
	}
	if p.TotalCount != 3 {
		t.Errorf("total: got %d, want 3", p.TotalCount)
	}
	if _, err := conn.PreviewTable(context.Background(), "nothing", 2); err == nil {
		t.Error("unknown table: want error")
	}
}

func TestAuthFailure(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	conn := openConnector(t, srv.URL)
	_, err := conn.TestConnection(context.Background())
	var ce *source.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
	if ce.Reason != "auth" {
		t.Errorf("reason: got %q, want auth", ce.Reason)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		jsonHandler(`[{"id": 1}]`)(w, r)
	})

	c := newClient(clientConfig{Timeout: time.Second})
	c.sleep = func(time.Duration) {}

	body, status, err := c.getJSON(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status: got %d", status)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	if len(body) == 0 {
		t.Error("empty body")
	}
}

func TestClientErrorsFailFast(t *testing.T) {
	var calls int
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})

	c := newClient(clientConfig{Timeout: time.Second})
	c.sleep = func(time.Duration) {}

	_, status, err := c.getJSON(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status: got %d", status)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1 (4xx must not retry)", calls)
	}
}

func TestGiveUpAfterRetries(t *testing.T) {
	var calls int
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newClient(clientConfig{Timeout: time.Second, MaxRetries: 2})
	c.sleep = func(time.Duration) {}

	if _, _, err := c.getJSON(context.Background(), srv.URL); err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestBadConfig(t *testing.T) {
	if _, err := source.Open(context.Background(), source.Config{Kind: "rest"}); err == nil {
		t.Error("empty URL: want error")
	}
}
