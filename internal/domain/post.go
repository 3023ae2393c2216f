package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PostCollection is the AT Protocol collection NSID holding post records.
const PostCollection = "app.bsky.feed.post"

// RawPost is a post record as returned by com.atproto.repo.listRecords or
// carried in a Jetstream commit. Value is kept undecoded until normalization.
type RawPost struct {
	// URI is the AT-URI of the record.
	URI string `json:"uri"`

	// CID is the content identifier of the record.
	CID string `json:"cid"`

	// Value is the app.bsky.feed.post record body.
	Value json.RawMessage `json:"value,omitempty"`

	// DecodeErr is set when the listing entry itself did not have the shape
	// of a record. Normalize reports it as ErrMalformedRecord.
	DecodeErr error `json:"-"`
}

// UnmarshalJSON decodes one listing entry. A badly shaped entry does not fail
// the enclosing page: whatever fields can be read are kept and the problem is
// recorded in DecodeErr.
func (p *RawPost) UnmarshalJSON(data []byte) error {
	type plain struct {
		URI   string          `json:"uri"`
		CID   string          `json:"cid"`
		Value json.RawMessage `json:"value,omitempty"`
	}
	var v plain
	err := json.Unmarshal(data, &v)
	if err == nil {
		*p = RawPost{URI: v.URI, CID: v.CID, Value: v.Value}
		return nil
	}

	*p = RawPost{DecodeErr: fmt.Errorf("decode record: %w", err)}
	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) == nil {
		_ = json.Unmarshal(fields["uri"], &p.URI)
		_ = json.Unmarshal(fields["cid"], &p.CID)
		p.Value = fields["value"]
	}
	return nil
}

// Record is one normalized post. It is built once by Normalize and never
// modified afterwards.
type Record struct {
	URI  string `json:"uri"`
	CID  string `json:"cid"`
	Text string `json:"text"`

	// CreatedAt is nil when the record had no parseable createdAt.
	CreatedAt *time.Time `json:"created_at"`

	CharCount int `json:"char_count"`
	WordCount int `json:"word_count"`

	Mentions []string `json:"mentions"`
	Hashtags []string `json:"hashtags"`
	Links    []string `json:"links"`

	MentionCount int `json:"mention_count"`
	HashtagCount int `json:"hashtag_count"`
	LinkCount    int `json:"link_count"`

	HasImage    bool `json:"has_image"`
	HasExternal bool `json:"has_external"`
	IsReply     bool `json:"is_reply"`

	// Hour, DayOfWeek and Date are nil whenever CreatedAt is nil.
	// DayOfWeek counts from 0 (Monday) to 6 (Sunday). Date is YYYY-MM-DD.
	Hour      *int    `json:"hour"`
	DayOfWeek *int    `json:"day_of_week"`
	Date      *string `json:"date"`
}

// HasTimestamp reports whether the record carries a creation time.
func (r *Record) HasTimestamp() bool {
	return r.CreatedAt != nil
}

// postRecord is the decoded value of an app.bsky.feed.post record. Only the
// fields the analyzer reads are declared.
type postRecord struct {
	Type   string  `json:"$type"`
	Text   string  `json:"text"`
	Facets []facet `json:"facets,omitempty"`
	Embed  *embed  `json:"embed,omitempty"`

	// CreatedAt and Reply are only inspected, so any JSON value is accepted.
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

// facet annotates a byte range of the post text with one or more features.
type facet struct {
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
	URI  string `json:"uri,omitempty"`
}

type embed struct {
	Type string `json:"$type"`
}
