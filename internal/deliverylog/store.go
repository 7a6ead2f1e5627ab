// Package deliverylog keeps an audit trail of every platform call the bridge
// makes on behalf of HTTP clients. Nothing is ever replayed from it.
package deliverylog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"telegramd/internal/domain"
)

// Store implements domain.DeliveryRecorder on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file (and its directory) if needed and applies the schema.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection for SQLite; concurrent requests queue on the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger.With("component", "deliverylog")}
	if err := runMigrations(db, s.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (batch_id, kind, chat_id, target, bytes, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BatchID, string(rec.Kind), rec.ChatID, rec.Target, rec.Bytes, rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	ChatID  string
	BatchID string
	Status  string
	Limit   int
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]domain.DeliveryRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var where []string
	var args []any
	if f.ChatID != "" {
		where = append(where, "chat_id = ?")
		args = append(args, f.ChatID)
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT id, batch_id, kind, chat_id, target, bytes, status, error, created_at FROM deliveries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.BatchID, &kind, &r.ChatID, &r.Target, &r.Bytes, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = domain.DeliveryKind(kind)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Prune deletes records created before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned delivery log", "removed", n, "before", cutoff)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
