package bluesky

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

// DefaultPageDelay is the pause between consecutive listRecords calls.
const DefaultPageDelay = 100 * time.Millisecond

// Fetcher pages through the post collection of the session's account.
type Fetcher struct {
	client    *Client
	session   Session
	pageDelay time.Duration
	logger    *slog.Logger

	// OnPage, if set, is called after each page with the running total.
	OnPage func(total int)
}

// NewFetcher creates a Fetcher for the account that owns session. A
// non-positive pageDelay uses DefaultPageDelay.
func NewFetcher(client *Client, session Session, pageDelay time.Duration, logger *slog.Logger) *Fetcher {
	if pageDelay <= 0 {
		pageDelay = DefaultPageDelay
	}
	return &Fetcher{
		client:    client,
		session:   session,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// FetchPosts returns the account's post records in the order the PDS serves
// them. A positive limit caps the result at exactly that many records.
//
// A transport or API error ends pagination early; the records fetched so far
// are returned with a nil error. If ctx is cancelled the records fetched so far
// are returned together with ctx.Err(). The only other error is
// ErrUnauthenticated.
func (f *Fetcher) FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error) {
	if !f.session.Valid() {
		return nil, ErrUnauthenticated
	}

	var (
		posts  []domain.RawPost
		cursor string
		pages  int
	)

	f.logger.Info("fetching posts", "did", f.session.DID, "limit", limit)

	for {
		resp, err := f.client.ListRecords(ctx, f.session, ListRecordsParams{
			Repo:       f.session.DID,
			Collection: domain.PostCollection,
			Limit:      MaxPageSize,
			Cursor:     cursor,
		})
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Warn("fetch interrupted", "fetched", len(posts))
				return posts, ctx.Err()
			}
			f.logger.Warn("error fetching posts, keeping partial results",
				"page", pages+1,
				"fetched", len(posts),
				"error", err,
			)
			break
		}

		if len(resp.Records) == 0 {
			break
		}

		pages++
		posts = append(posts, resp.Records...)
		f.logger.Info("fetched posts so far", "count", len(posts), "page", pages)
		if f.OnPage != nil {
			f.OnPage(len(posts))
		}

		if limit > 0 && len(posts) >= limit {
			posts = posts[:limit]
			break
		}

		cursor = resp.Cursor
		if cursor == "" {
			break
		}

		select {
		case <-ctx.Done():
			f.logger.Warn("fetch interrupted", "fetched", len(posts))
			return posts, ctx.Err()
		case <-time.After(f.pageDelay):
		}
	}

	f.logger.Info("fetched posts", "count", len(posts), "pages", pages)
	return posts, nil
}

// FetchSample returns a single page of at most n records. Unlike FetchPosts
// it reports request errors.
func (f *Fetcher) FetchSample(ctx context.Context, n int) ([]domain.RawPost, error) {
	if n <= 0 || n > MaxPageSize {
		n = MaxPageSize
	}
	resp, err := f.client.ListRecords(ctx, f.session, ListRecordsParams{
		Repo:       f.session.DID,
		Collection: domain.PostCollection,
		Limit:      n,
	})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}
