package sqlite

import (
	"context"
	"testing"

	"github.com/loomwork/loomwork/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendRecord_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.AppendRecord(context.Background(), memory.Record{TaskID: "t1", Role: "user", Content: "hello"})
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected generated CreatedAt")
	}
}

func TestRecentRecords_OrdersMostRecentFirstAndRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, content := range []string{"first", "second", "third"} {
		if _, err := s.AppendRecord(ctx, memory.Record{TaskID: "t1", Role: "user", Content: content}); err != nil {
			t.Fatalf("AppendRecord: %v", err)
		}
	}
	if _, err := s.AppendRecord(ctx, memory.Record{TaskID: "other", Role: "user", Content: "unrelated"}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	recs, err := s.RecentRecords(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("RecentRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Content != "third" || recs[1].Content != "second" {
		t.Fatalf("unexpected order: %+v", recs)
	}
}

func TestUpsertAndSearch_ReturnsMostSimilarFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vectors := []memory.Vector{
		{RecordID: "a", TaskID: "t1", Embedding: []float32{1, 0, 0}},
		{RecordID: "b", TaskID: "t1", Embedding: []float32{0, 1, 0}},
		{RecordID: "c", TaskID: "t1", Embedding: []float32{0.9, 0.1, 0}},
		{RecordID: "d", TaskID: "other", Embedding: []float32{1, 0, 0}},
	}
	for _, v := range vectors {
		if err := s.Upsert(ctx, v); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	results, err := s.Search(ctx, "t1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].RecordID != "a" {
		t.Fatalf("results[0].RecordID = %q, want %q", results[0].RecordID, "a")
	}
	if results[1].RecordID != "c" {
		t.Fatalf("results[1].RecordID = %q, want %q", results[1].RecordID, "c")
	}
	for _, r := range results {
		if r.TaskID == "other" {
			t.Fatal("result leaked from a different task")
		}
	}
}

func TestUpsert_OverwritesExistingRecordID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, memory.Vector{RecordID: "a", TaskID: "t1", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, memory.Vector{RecordID: "a", TaskID: "t1", Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(ctx, "t1", []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Score < 0.99 {
		t.Fatalf("expected updated embedding to match query closely, got %+v", results)
	}
}
