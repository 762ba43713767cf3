package source

import (
	"context"
	"errors"
	"testing"

	"importkit/internal/join"
	"importkit/internal/schema"
)

// stubConnector satisfies Connector for registry tests.
type stubConnector struct{}

func (stubConnector) TestConnection(context.Context) (TestResult, error) {
	return TestResult{OK: true, RecordCountEstimate: -1}, nil
}
func (stubConnector) DiscoverSchema(context.Context) (*schema.SourceSchema, error) {
	return &schema.SourceSchema{}, nil
}
func (stubConnector) PreviewTable(context.Context, string, int) (*Preview, error) {
	return &Preview{TotalCount: -1}, nil
}
func (stubConnector) PreviewJoin(context.Context, string, []join.Clause, int) (*Preview, error) {
	return nil, ErrJoinUnsupported
}
func (stubConnector) Close() error { return nil }

func TestRegistryOpen(t *testing.T) {
	Register("stub-test", func(ctx context.Context, cfg Config) (Connector, error) {
		return stubConnector{}, nil
	})

	conn, err := Open(context.Background(), Config{Kind: "stub-test"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	res, err := conn.TestConnection(context.Background())
	if err != nil || !res.OK {
		t.Errorf("TestConnection: %v %+v", err, res)
	}

	found := false
	for _, k := range Kinds() {
		if k == "stub-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Kinds() missing registered kind: %v", Kinds())
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "no-such-kind"})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
	if ce.Reason != "unsupported" {
		t.Errorf("reason: got %q, want unsupported", ce.Reason)
	}
}
