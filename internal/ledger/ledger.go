package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	apperrors "hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// Video statuses. A video enters PENDING at publication, moves to DONE once
// its reward has been credited, and to SKIPPED when it can never be credited.
const (
	StatusPending = "PENDING"
	StatusDone    = "DONE"
	StatusSkipped = "SKIPPED"
)

// VideoRecord is one published video awaiting (or past) reward attribution.
type VideoRecord struct {
	ID             string
	VideoID        string
	Prompt         string
	CombinationKey string
	Status         string
	Reward         *float64
	SkipReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists the video log in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "001_video_log",
		sql: `CREATE TABLE IF NOT EXISTS video_log (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			combination_key TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			reward REAL,
			skip_reason TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_video_log_status ON video_log(status);`,
	},
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "create ledger dir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "open", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, apperrors.NewStorageFailed("sqlite", "apply pragma", execErr)
		}
	}

	store := &Store{db: db, path: path, logger: logger.Get()}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	store.logger.Info("Opened video ledger", zap.String("path", path))
	return store, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageFailed("sqlite", "begin migration tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return apperrors.NewStorageFailed("sqlite", "ensure schema_migrations", err)
	}

	for _, m := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version)
		if err := row.Scan(&count); err != nil {
			return apperrors.NewStorageFailed("sqlite", "scan migration version", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return apperrors.NewStorageFailed("sqlite", fmt.Sprintf("apply migration %s", m.version), err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return apperrors.NewStorageFailed("sqlite", fmt.Sprintf("record migration %s", m.version), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageFailed("sqlite", "commit migrations", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Log records a newly published video as PENDING.
func (s *Store) Log(ctx context.Context, videoID, prompt, combinationKey string) (*VideoRecord, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO video_log (id, video_id, prompt, combination_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		videoID,
		prompt,
		nullableString(combinationKey),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "insert video", err)
	}

	s.logger.Info("Logged video",
		zap.String("video_id", videoID),
		zap.String("combination_key", combinationKey),
	)
	return s.GetByID(ctx, id)
}

// GetByID fetches a record by ledger id; nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*VideoRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM video_log WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "get video", err)
	}
	return record, nil
}

// Pending returns PENDING videos older than minAge, oldest first.
func (s *Store) Pending(ctx context.Context, minAge time.Duration) ([]*VideoRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM video_log WHERE status = ? ORDER BY created_at`,
		StatusPending,
	)
	if err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "query pending", err)
	}
	defer rows.Close()

	cutoff := time.Now().UTC().Add(-minAge)
	var pending []*VideoRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewStorageFailed("sqlite", "scan pending", err)
		}
		if record.CreatedAt.After(cutoff) {
			continue
		}
		pending = append(pending, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageFailed("sqlite", "iterate pending", err)
	}
	return pending, nil
}

// MarkDone records the credited reward and closes the row.
func (s *Store) MarkDone(ctx context.Context, id string, reward float64) error {
	return s.setStatus(ctx, id, StatusDone, &reward, "")
}

// MarkSkipped closes the row without credit.
func (s *Store) MarkSkipped(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, StatusSkipped, nil, reason)
}

func (s *Store) setStatus(ctx context.Context, id, status string, reward *float64, reason string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE video_log SET status = ?, reward = ?, skip_reason = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableFloat(reward),
		nullableString(reason),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return apperrors.NewStorageFailed("sqlite", "update status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageFailed("sqlite", "rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("video %s not found", id)
	}

	s.logger.Info("Updated video status",
		zap.String("id", id),
		zap.String("status", status),
	)
	return nil
}

const recordColumns = "id, video_id, prompt, combination_key, status, reward, skip_reason, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*VideoRecord, error) {
	var (
		id         string
		videoID    string
		prompt     string
		key        sql.NullString
		status     string
		reward     sql.NullFloat64
		skipReason sql.NullString
		createdRaw string
		updatedRaw string
	)

	if err := scanner.Scan(&id, &videoID, &prompt, &key, &status, &reward, &skipReason, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &VideoRecord{
		ID:             id,
		VideoID:        videoID,
		Prompt:         prompt,
		CombinationKey: key.String,
		Status:         status,
		SkipReason:     skipReason.String,
	}
	if reward.Valid {
		value := reward.Float64
		record.Reward = &value
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
