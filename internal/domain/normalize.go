package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrMissingValue is reported for records without a value document.
	ErrMissingValue = errors.New("record has no value")

	// ErrMalformedRecord is reported for records whose value does not have the
	// shape of a post.
	ErrMalformedRecord = errors.New("malformed post record")
)

// NormalizeResult is the outcome of normalizing one RawPost. Exactly one of
// Record and Err is set.
type NormalizeResult struct {
	URI    string
	Record *Record
	Err    error
}

// OK reports whether the raw post produced a record.
func (r NormalizeResult) OK() bool {
	return r.Err == nil && r.Record != nil
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp as written in createdAt. A
// trailing Z is accepted as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize maps one raw post to a Record. It never panics on bad input; any
// structural problem is returned in the result instead.
func Normalize(raw RawPost) NormalizeResult {
	res := NormalizeResult{URI: raw.URI}
	if raw.DecodeErr != nil {
		res.Err = fmt.Errorf("%w: %v", ErrMalformedRecord, raw.DecodeErr)
		return res
	}

	value := bytes.TrimSpace(raw.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		res.Err = ErrMissingValue
		return res
	}

	var pr postRecord
	if err := json.Unmarshal(value, &pr); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		return res
	}

	rec := &Record{
		URI:       raw.URI,
		CID:       raw.CID,
		Text:      pr.Text,
		CharCount: utf8.RuneCountInString(pr.Text),
		WordCount: len(strings.Fields(pr.Text)),
		Mentions:  []string{},
		Hashtags:  []string{},
		Links:     []string{},
	}

	var createdAt string
	if json.Unmarshal(pr.CreatedAt, &createdAt) != nil {
		createdAt = ""
	}
	if ts, ok := ParseTimestamp(createdAt); ok {
		rec.SetCreatedAt(ts)
	}

	for _, f := range pr.Facets {
		for _, feat := range f.Features {
			switch ParseFeatureKind(feat.Type) {
			case FeatureMention:
				rec.Mentions = append(rec.Mentions, feat.DID)
			case FeatureTag:
				rec.Hashtags = append(rec.Hashtags, feat.Tag)
			case FeatureLink:
				rec.Links = append(rec.Links, feat.URI)
			case FeatureUnknown:
			}
		}
	}
	rec.MentionCount = len(rec.Mentions)
	rec.HashtagCount = len(rec.Hashtags)
	rec.LinkCount = len(rec.Links)

	if pr.Embed != nil {
		switch ParseEmbedKind(pr.Embed.Type) {
		case EmbedImages:
			rec.HasImage = true
		case EmbedExternal:
			rec.HasExternal = true
		case EmbedNone, EmbedOther:
		}
	}

	rec.IsReply = truthy(pr.Reply)

	res.Record = rec
	return res
}

// truthy reports whether a JSON value is present and non-empty: null, false,
// 0, "", [] and {} are not.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// SetCreatedAt sets CreatedAt and the fields derived from it. It is meant for
// building a record, before it is handed to Analyze.
func (r *Record) SetCreatedAt(ts time.Time) {
	hour := ts.Hour()
	day := Weekday(ts)
	date := ts.Format(time.DateOnly)

	r.CreatedAt = &ts
	r.Hour = &hour
	r.DayOfWeek = &day
	r.Date = &date
}

// Weekday returns the day of the week of t with Monday as 0 and Sunday as 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// NormalizeAll normalizes raws in order. Records that fail are logged and
// left out of the returned table; their results are returned separately.
func NormalizeAll(raws []RawPost, logger *slog.Logger) ([]Record, []NormalizeResult) {
	records := make([]Record, 0, len(raws))
	var failed []NormalizeResult

	for _, raw := range raws {
		res := Normalize(raw)
		if !res.OK() {
			if logger != nil {
				logger.Warn("skipping post record", "uri", res.URI, "error", res.Err)
			}
			failed = append(failed, res)
			continue
		}
		records = append(records, *res.Record)
	}

	return records, failed
}
