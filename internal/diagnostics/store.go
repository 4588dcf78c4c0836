package diagnostics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/enerhogar/energia-tracker/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_texts (
	upload_id  TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// Store keeps the raw assembled text of soft-failed uploads in a local
// sqlite file so they can be reviewed manually. It lives outside the main
// database on purpose: diagnostic text is bulky and has no referential ties.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening diagnostics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing diagnostics schema: %w", err)
	}
	logger.Info("diagnostics store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRawText(ctx context.Context, uploadID uuid.UUID, userID int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO raw_texts (upload_id, user_id, text, created_at) VALUES (?, ?, ?, ?)`,
		uploadID.String(), userID, text, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to save diagnostic text", "upload_id", uploadID, "error", err)
		return err
	}
	s.logger.Info("diagnostic text saved", "upload_id", uploadID, "user_id", userID, "bytes", len(text))
	return nil
}

func (s *Store) GetRawText(ctx context.Context, uploadID uuid.UUID) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT text FROM raw_texts WHERE upload_id = ?`, uploadID.String()).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Entry summarizes one stored diagnostic text.
type Entry struct {
	UploadID  uuid.UUID `json:"upload_id"`
	UserID    int64     `json:"user_id"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRecent returns the newest entries, capped at limit.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT upload_id, user_id, length(text), created_at FROM raw_texts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id string
		if err := rows.Scan(&id, &e.UserID, &e.Bytes, &e.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		e.UploadID = parsed
		out = append(out, e)
	}
	return out, rows.Err()
}
