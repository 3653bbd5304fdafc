// Package mysql provides a MySQL/MariaDB-backed memory.RecordStore and
// memory.VectorStore, for deployments running multiple agent workers
// against shared memory.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/go-sql-driver/mysql"

	"github.com/loomwork/loomwork/memory"
)

// Store is a MySQL implementation of memory.RecordStore and
// memory.VectorStore.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New opens a connection pool to dsn and creates the required schema if
// absent.
//
// DSN format:
//
//	user:password@tcp(host:3306)/dbname?parseTime=true
func New(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory/mysql: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory/mysql: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_records (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_memory_records_task (task_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS memory_vectors (
			record_id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(255) NOT NULL,
			embedding JSON NOT NULL,
			INDEX idx_memory_vectors_task (task_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("memory/mysql: create tables: %w", err)
		}
	}
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("memory/mysql: store is closed")
	}
	return nil
}

// AppendRecord implements memory.RecordStore.
func (s *Store) AppendRecord(ctx context.Context, rec memory.Record) (memory.Record, error) {
	if err := s.checkOpen(); err != nil {
		return memory.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_records (id, task_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.Role, rec.Content, rec.CreatedAt)
	if err != nil {
		return memory.Record{}, fmt.Errorf("memory/mysql: append record: %w", err)
	}
	return rec, nil
}

// RecentRecords implements memory.RecordStore.
func (s *Store) RecentRecords(ctx context.Context, taskID string, limit int) ([]memory.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, role, content, created_at FROM memory_records
		 WHERE task_id = ? ORDER BY created_at DESC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory/mysql: recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []memory.Record
	for rows.Next() {
		var rec memory.Record
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Role, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory/mysql: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert implements memory.VectorStore.
func (s *Store) Upsert(ctx context.Context, vec memory.Vector) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	encoded, err := json.Marshal(vec.Embedding)
	if err != nil {
		return fmt.Errorf("memory/mysql: encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_vectors (record_id, task_id, embedding) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE task_id = VALUES(task_id), embedding = VALUES(embedding)`,
		vec.RecordID, vec.TaskID, encoded)
	if err != nil {
		return fmt.Errorf("memory/mysql: upsert vector: %w", err)
	}
	return nil
}

// Search implements memory.VectorStore via brute-force cosine similarity
// over every stored vector matching taskID (or every vector, if taskID is
// empty).
func (s *Store) Search(ctx context.Context, taskID string, query []float32, topK int) ([]memory.ScoredVector, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	if taskID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT record_id, task_id, embedding FROM memory_vectors`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT record_id, task_id, embedding FROM memory_vectors WHERE task_id = ?`, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("memory/mysql: query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []memory.Vector
	for rows.Next() {
		var v memory.Vector
		var encoded []byte
		if err := rows.Scan(&v.RecordID, &v.TaskID, &encoded); err != nil {
			return nil, fmt.Errorf("memory/mysql: scan vector: %w", err)
		}
		if err := json.Unmarshal(encoded, &v.Embedding); err != nil {
			return nil, fmt.Errorf("memory/mysql: decode embedding: %w", err)
		}
		candidates = append(candidates, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scored := make([]memory.ScoredVector, 0, len(candidates))
	for _, v := range candidates {
		scored = append(scored, memory.ScoredVector{Vector: v, Score: memory.CosineSimilarity(query, v.Embedding)})
	}
	sortByScoreDesc(scored)
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Close implements both memory.RecordStore and memory.VectorStore. Calling
// Close multiple times is safe.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func sortByScoreDesc(scored []memory.ScoredVector) {
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].Score > scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}

