package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

// tableHeader is the column order of the posts table.
var tableHeader = []string{
	"uri", "cid", "text", "created_at", "char_count", "word_count",
	"mentions", "hashtags", "links", "mention_count", "hashtag_count", "link_count",
	"has_image", "has_external", "is_reply", "hour", "day_of_week", "date",
}

// WriteCSV writes one row per record. List columns hold JSON arrays; null
// fields are left empty.
func WriteCSV(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range records {
		row, err := csvRow(&records[i])
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(r *domain.Record) ([]string, error) {
	mentions, err := domain.EncodeList(r.Mentions)
	if err != nil {
		return nil, err
	}
	hashtags, err := domain.EncodeList(r.Hashtags)
	if err != nil {
		return nil, err
	}
	links, err := domain.EncodeList(r.Links)
	if err != nil {
		return nil, err
	}

	var createdAt, hour, day, date string
	if r.CreatedAt != nil {
		createdAt = r.CreatedAt.Format(time.RFC3339Nano)
	}
	if r.Hour != nil {
		hour = strconv.Itoa(*r.Hour)
	}
	if r.DayOfWeek != nil {
		day = strconv.Itoa(*r.DayOfWeek)
	}
	if r.Date != nil {
		date = *r.Date
	}

	return []string{
		r.URI,
		r.CID,
		r.Text,
		createdAt,
		strconv.Itoa(r.CharCount),
		strconv.Itoa(r.WordCount),
		mentions,
		hashtags,
		links,
		strconv.Itoa(r.MentionCount),
		strconv.Itoa(r.HashtagCount),
		strconv.Itoa(r.LinkCount),
		strconv.FormatBool(r.HasImage),
		strconv.FormatBool(r.HasExternal),
		strconv.FormatBool(r.IsReply),
		hour,
		day,
		date,
	}, nil
}


// ReadCSV reads a table written by WriteCSV. Rows that cannot be parsed are
// logged and skipped. Derived fields are recomputed from created_at and the
// list columns.
func ReadCSV(r io.Reader, logger *slog.Logger) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range []string{"uri", "text", "created_at", "hashtags"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	cr.FieldsPerRecord = len(header)

	var records []domain.Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping unreadable row", "line", line, "error", err)
			continue
		}

		rec, err := parseRow(row, cols)
		if err != nil {
			logger.Warn("skipping malformed row", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int) (domain.Record, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok {
			return row[i]
		}
		return ""
	}

	rec := domain.Record{
		URI:  get("uri"),
		CID:  get("cid"),
		Text: get("text"),
	}

	var err error
	if rec.CharCount, err = intColumn(get("char_count"), len([]rune(rec.Text))); err != nil {
		return rec, fmt.Errorf("char_count: %w", err)
	}
	if rec.WordCount, err = intColumn(get("word_count"), 0); err != nil {
		return rec, fmt.Errorf("word_count: %w", err)
	}
	if rec.Mentions, err = domain.DecodeList(get("mentions")); err != nil {
		return rec, fmt.Errorf("mentions: %w", err)
	}
	if rec.Hashtags, err = domain.DecodeList(get("hashtags")); err != nil {
		return rec, fmt.Errorf("hashtags: %w", err)
	}
	if rec.Links, err = domain.DecodeList(get("links")); err != nil {
		return rec, fmt.Errorf("links: %w", err)
	}
	rec.MentionCount = len(rec.Mentions)
	rec.HashtagCount = len(rec.Hashtags)
	rec.LinkCount = len(rec.Links)

	if rec.HasImage, err = boolColumn(get("has_image")); err != nil {
		return rec, fmt.Errorf("has_image: %w", err)
	}
	if rec.HasExternal, err = boolColumn(get("has_external")); err != nil {
		return rec, fmt.Errorf("has_external: %w", err)
	}
	if rec.IsReply, err = boolColumn(get("is_reply")); err != nil {
		return rec, fmt.Errorf("is_reply: %w", err)
	}

	if s := get("created_at"); s != "" {
		ts, ok := domain.ParseTimestamp(s)
		if !ok {
			return rec, fmt.Errorf("created_at: cannot parse %q", s)
		}
		rec.SetCreatedAt(ts)
	}
	return rec, nil
}

func intColumn(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func boolColumn(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

