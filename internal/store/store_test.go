package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"importkit/internal/config"
	"importkit/internal/source"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file:"+t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := config.New("warehouse import")
	cfg.SetSource(source.Config{Kind: "postgres", DSN: "postgres://localhost/app"})
	st, err := cfg.AddStage(config.Stage{Name: "customers", SourceTable: "customers", Enabled: true})
	if err != nil {
		t.Fatalf("AddStage: %v", err)
	}

	if err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != cfg.Name {
		t.Errorf("name: got %q, want %q", got.Name, cfg.Name)
	}
	if got.Source.Kind != "postgres" {
		t.Errorf("source kind: got %q", got.Source.Kind)
	}
	if len(got.Stages) != 1 || got.Stages[0].ID != st.ID {
		t.Errorf("stages: got %+v", got.Stages)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := config.New("first")
	if err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg.Name = "second"
	if err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := s.Load(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "second" {
		t.Errorf("name after replace: got %q", got.Name)
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries: got %d, want 1", len(entries))
	}
}

func TestListOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := config.New("a")
	b := config.New("b")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("Save b: %v", err)
	}
	// Touch a again so it becomes the most recent. The small sleep keeps
	// the two timestamps distinct on coarse clocks.
	time.Sleep(5 * time.Millisecond)
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("Save a again: %v", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].ID != a.ID {
		t.Errorf("most recently saved should list first: got %q", entries[0].Name)
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := config.New("doomed")
	if err := s.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, cfg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, cfg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, cfg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: got %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, &config.ImportConfiguration{}); err == nil {
		t.Error("saving a configuration without an id must fail")
	}
}
