// Package sqlite provides a SQLite-backed memory.RecordStore and
// memory.VectorStore, for local or single-process deployments that want
// persistent agent memory with zero external setup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loomwork/loomwork/memory"
)

// Store is a SQLite implementation of memory.RecordStore and
// memory.VectorStore. A single file holds both the record log and the
// embedding table; vector search is brute-force cosine similarity over
// rows loaded from that file, adequate at the scale one task tree's
// memory accumulates.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// New opens (creating if absent) a SQLite-backed Store at path. Passing
// ":memory:" gives an ephemeral database, useful for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory/sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory/sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_records_task ON memory_records(task_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_vectors (
			record_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			embedding TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_vectors_task ON memory_vectors(task_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("memory/sqlite: create tables: %w", err)
		}
	}
	return nil
}

// AppendRecord implements memory.RecordStore.
func (s *Store) AppendRecord(ctx context.Context, rec memory.Record) (memory.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_records (id, task_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.Role, rec.Content, rec.CreatedAt)
	if err != nil {
		return memory.Record{}, fmt.Errorf("memory/sqlite: append record: %w", err)
	}
	return rec, nil
}

// RecentRecords implements memory.RecordStore.
func (s *Store) RecentRecords(ctx context.Context, taskID string, limit int) ([]memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, role, content, created_at FROM memory_records
		 WHERE task_id = ? ORDER BY created_at DESC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory/sqlite: recent records: %w", err)
	}
	defer rows.Close()

	var out []memory.Record
	for rows.Next() {
		var rec memory.Record
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Role, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory/sqlite: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert implements memory.VectorStore.
func (s *Store) Upsert(ctx context.Context, vec memory.Vector) error {
	encoded, err := json.Marshal(vec.Embedding)
	if err != nil {
		return fmt.Errorf("memory/sqlite: encode embedding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_vectors (record_id, task_id, embedding) VALUES (?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET task_id = excluded.task_id, embedding = excluded.embedding`,
		vec.RecordID, vec.TaskID, string(encoded))
	if err != nil {
		return fmt.Errorf("memory/sqlite: upsert vector: %w", err)
	}
	return nil
}

// Search implements memory.VectorStore via brute-force cosine similarity
// over every stored vector matching taskID (or every vector, if taskID is
// empty).
func (s *Store) Search(ctx context.Context, taskID string, query []float32, topK int) ([]memory.ScoredVector, error) {
	s.mu.Lock()
	rows, err := s.queryVectors(ctx, taskID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	scored := make([]memory.ScoredVector, 0, len(rows))
	for _, v := range rows {
		scored = append(scored, memory.ScoredVector{Vector: v, Score: memory.CosineSimilarity(query, v.Embedding)})
	}

	sortByScoreDesc(scored)
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *Store) queryVectors(ctx context.Context, taskID string) ([]memory.Vector, error) {
	var rows *sql.Rows
	var err error
	if taskID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT record_id, task_id, embedding FROM memory_vectors`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT record_id, task_id, embedding FROM memory_vectors WHERE task_id = ?`, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("memory/sqlite: query vectors: %w", err)
	}
	defer rows.Close()

	var out []memory.Vector
	for rows.Next() {
		var v memory.Vector
		var encoded string
		if err := rows.Scan(&v.RecordID, &v.TaskID, &encoded); err != nil {
			return nil, fmt.Errorf("memory/sqlite: scan vector: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &v.Embedding); err != nil {
			return nil, fmt.Errorf("memory/sqlite: decode embedding: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close implements both memory.RecordStore and memory.VectorStore.
func (s *Store) Close() error {
	return s.db.Close()
}

// sortByScoreDesc is a small insertion sort: result sets from one task's
// memory are expected to stay in the tens-to-low-hundreds, where this
// beats pulling in a sort.Slice closure allocation for no real benefit.
func sortByScoreDesc(scored []memory.ScoredVector) {
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].Score > scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}
