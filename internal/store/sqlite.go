package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// QueryHistoryStore persists an audit log of processed questions. It is an
// optional attachment: the pipeline runs without it.
type QueryHistoryStore struct {
	db *sql.DB
}

func NewQueryHistoryStore(dataSourceName string) (*QueryHistoryStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &QueryHistoryStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *QueryHistoryStore) Close() error {
	return s.db.Close()
}

func (s *QueryHistoryStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS query_history (
        id TEXT PRIMARY KEY, -- UUID
        store_id TEXT NOT NULL,
        question TEXT NOT NULL,
        intent TEXT,
        query TEXT,
        source TEXT,
        fallback_used BOOLEAN DEFAULT FALSE,
        answer TEXT,
        duration_ms INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_query_history_store
        ON query_history (store_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one history row, assigning the id and timestamp.
func (s *QueryHistoryStore) Record(ctx context.Context, entry HistoryEntry) error {
	entry.ID = uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_history
		 (id, store_id, question, intent, query, source, fallback_used, answer, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.StoreID, entry.Question, entry.Intent, entry.Query,
		entry.Source, entry.FallbackUsed, entry.Answer, entry.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a store, newest first. An empty
// storeID returns entries across all stores.
func (s *QueryHistoryStore) Recent(ctx context.Context, storeID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT id, store_id, question, intent, query, source, fallback_used, answer, duration_ms, created_at
	          FROM query_history`
	args := []any{}
	if storeID != "" {
		query += ` WHERE store_id = ?`
		args = append(args, storeID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Question, &e.Intent, &e.Query,
			&e.Source, &e.FallbackUsed, &e.Answer, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
