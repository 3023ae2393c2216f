package firehose

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

// Jetstream event kinds and commit operations.
const (
	kindCommit = "commit"

	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// jetstreamEvent is one message from the Jetstream subscribe endpoint.
// Identity and account events carry no commit and are only used to advance
// the cursor.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is a single record operation. Record is kept raw so it goes
// through the same normalizer as listRecords values.
type jetstreamCommit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid"`
}

// uri returns the AT-URI of the record the commit touches.
func (e *jetstreamEvent) uri() string {
	return fmt.Sprintf("at://%s/%s/%s", e.DID, e.Commit.Collection, e.Commit.RKey)
}

// rawPost converts a create or update commit into the shape returned by
// listRecords.
func (e *jetstreamEvent) rawPost() domain.RawPost {
	return domain.RawPost{URI: e.uri(), CID: e.Commit.CID, Value: e.Commit.Record}
}
