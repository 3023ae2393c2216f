package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when nothing matches.
var ErrNotFound = errors.New("not found")

// RecordRepository defines persistence operations for normalized records and
// the reports computed from them.
type RecordRepository interface {
	// SaveRecords upserts records by URI and returns how many were written.
	SaveRecords(ctx context.Context, records []Record) (int, error)

	// DeleteRecord removes a record by its AT-URI.
	DeleteRecord(ctx context.Context, uri string) error

	// ListRecords returns all stored records in the order they were first
	// saved.
	ListRecords(ctx context.Context) ([]Record, error)

	// SaveReport stores a report and returns its generated ID.
	SaveReport(ctx context.Context, report *Report) (string, error)

	// LatestReport returns the most recently saved report. It returns
	// ErrNotFound if none has been saved.
	LatestReport(ctx context.Context) (*StoredReport, error)
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// StoredReport is a report together with its storage metadata.
type StoredReport struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Report    *Report   `json:"report"`
}
