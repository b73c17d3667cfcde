package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotStore_ReadsWhileLocked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.json")

	snap := NewSnapshotStore(path)
	states, err := snap.List(ctx)
	if err != nil || len(states) != 0 {
		t.Fatalf("expected empty list for missing file, got %v, %v", states, err)
	}

	owner, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer owner.Close()

	if err := owner.Set(ctx, State{SourceID: "clean/a.b", Path: "in.jsonl", LineCursor: 7, Done: true}); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := owner.Flush(ctx); err != nil {
		t.Fatalf("failed to flush: %v", err)
	}

	got, err := snap.Get(ctx, "clean/a.b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LineCursor != 7 || !got.Done || got.Path != "in.jsonl" {
		t.Fatalf("unexpected snapshot state: %+v", got)
	}

	states, err = snap.List(ctx)
	if err != nil || len(states) != 1 || states[0].SourceID != "clean/a.b" {
		t.Fatalf("unexpected list: %v, %v", states, err)
	}

	if err := snap.Set(ctx, got); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestSnapshotStore_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewSnapshotStore(path).List(context.Background()); err == nil {
		t.Fatal("expected error for invalid checkpoint file")
	}
}
