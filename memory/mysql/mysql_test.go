package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/loomwork/loomwork/memory"
)

// These tests require a live MySQL/MariaDB instance. Set TEST_MYSQL_DSN to
// run them, e.g.:
//
//	export TEST_MYSQL_DSN="user:pass@tcp(localhost:3306)/test_db?parseTime=true"
func getTestDSN(t *testing.T) string {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Logf("mysql memory tests skipped: set TEST_MYSQL_DSN to run")
	}
	return dsn
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_InvalidDSNErrors(t *testing.T) {
	if _, err := New("not a valid dsn"); err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}

func TestAppendAndRecentRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := "memory-test-task"

	for _, content := range []string{"first", "second"} {
		if _, err := s.AppendRecord(ctx, memory.Record{TaskID: taskID, Role: "user", Content: content}); err != nil {
			t.Fatalf("AppendRecord: %v", err)
		}
	}

	recs, err := s.RecentRecords(ctx, taskID, 1)
	if err != nil {
		t.Fatalf("RecentRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Content != "second" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestUpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := "memory-test-task-vectors"

	if err := s.Upsert(ctx, memory.Vector{RecordID: "a", TaskID: taskID, Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, memory.Vector{RecordID: "b", TaskID: taskID, Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(ctx, taskID, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].RecordID != "a" {
		t.Fatalf("unexpected search result: %+v", results)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
