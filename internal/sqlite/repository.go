package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	uri          TEXT NOT NULL UNIQUE,
	cid          TEXT NOT NULL,
	text         TEXT NOT NULL,
	created_at   TEXT,
	char_count   INTEGER NOT NULL,
	word_count   INTEGER NOT NULL,
	mentions     TEXT NOT NULL,
	hashtags     TEXT NOT NULL,
	links        TEXT NOT NULL,
	has_image    INTEGER NOT NULL,
	has_external INTEGER NOT NULL,
	is_reply     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	report     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   TEXT NOT NULL
);`

// Repository implements domain.RecordRepository and domain.CursorRepository
// using SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the SQLite database at path,
// applies the schema and returns a new Repository. The caller should call
// Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRecords upserts records by URI. A record that already exists keeps its
// original position in ListRecords.
func (r *Repository) SaveRecords(ctx context.Context, records []domain.Record) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (
			uri, cid, text, created_at, char_count, word_count,
			mentions, hashtags, links, has_image, has_external, is_reply
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uri) DO UPDATE SET
			cid = excluded.cid,
			text = excluded.text,
			created_at = excluded.created_at,
			char_count = excluded.char_count,
			word_count = excluded.word_count,
			mentions = excluded.mentions,
			hashtags = excluded.hashtags,
			links = excluded.links,
			has_image = excluded.has_image,
			has_external = excluded.has_external,
			is_reply = excluded.is_reply`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]

		var createdAt sql.NullString
		if rec.CreatedAt != nil {
			createdAt = sql.NullString{String: rec.CreatedAt.Format(time.RFC3339Nano), Valid: true}
		}
		mentions, err := domain.EncodeList(rec.Mentions)
		if err != nil {
			return 0, err
		}
		hashtags, err := domain.EncodeList(rec.Hashtags)
		if err != nil {
			return 0, err
		}
		links, err := domain.EncodeList(rec.Links)
		if err != nil {
			return 0, err
		}

		_, err = stmt.ExecContext(ctx,
			rec.URI,
			rec.CID,
			rec.Text,
			createdAt,
			rec.CharCount,
			rec.WordCount,
			mentions,
			hashtags,
			links,
			rec.HasImage,
			rec.HasExternal,
			rec.IsReply,
		)
		if err != nil {
			return 0, fmt.Errorf("save post %s: %w", rec.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(records), nil
}

// DeleteRecord removes a record by URI.
func (r *Repository) DeleteRecord(ctx context.Context, uri string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE uri = ?`, uri)
	return err
}

// ListRecords returns every stored record in first-saved order.
func (r *Repository) ListRecords(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uri, cid, text, created_at, char_count, word_count,
			mentions, hashtags, links, has_image, has_external, is_reply
		FROM posts
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			rec                       domain.Record
			createdAt                 sql.NullString
			mentions, hashtags, links string
		)
		err := rows.Scan(
			&rec.URI,
			&rec.CID,
			&rec.Text,
			&createdAt,
			&rec.CharCount,
			&rec.WordCount,
			&mentions,
			&hashtags,
			&links,
			&rec.HasImage,
			&rec.HasExternal,
			&rec.IsReply,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}

		if createdAt.Valid {
			ts, err := time.Parse(time.RFC3339Nano, createdAt.String)
			if err != nil {
				return nil, fmt.Errorf("post %s: parse created_at: %w", rec.URI, err)
			}
			rec.SetCreatedAt(ts)
		}
		if rec.Mentions, err = domain.DecodeList(mentions); err != nil {
			return nil, fmt.Errorf("post %s: %w", rec.URI, err)
		}
		if rec.Hashtags, err = domain.DecodeList(hashtags); err != nil {
			return nil, fmt.Errorf("post %s: %w", rec.URI, err)
		}
		if rec.Links, err = domain.DecodeList(links); err != nil {
			return nil, fmt.Errorf("post %s: %w", rec.URI, err)
		}
		rec.MentionCount = len(rec.Mentions)
		rec.HashtagCount = len(rec.Hashtags)
		rec.LinkCount = len(rec.Links)

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return records, nil
}

// SaveReport stores report under a new random ID.
func (r *Repository) SaveReport(ctx context.Context, report *domain.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO reports (id, created_at, report) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

// LatestReport returns the most recently saved report.
func (r *Repository) LatestReport(ctx context.Context) (*domain.StoredReport, error) {
	var id, createdAt, data string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, report FROM reports ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id, &createdAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse report time: %w", err)
	}
	var report domain.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	return &domain.StoredReport{ID: id, CreatedAt: ts, Report: &report}, nil
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}


