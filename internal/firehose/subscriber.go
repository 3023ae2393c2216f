package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const (
	cursorServiceName  = "jetstream"
	cursorSaveInterval = 5 * time.Second
	reconnectDelay     = 5 * time.Second
	statsInterval      = 30 * time.Second
)

// Subscriber follows one account on the Jetstream firehose and keeps the
// record store in sync with the posts it creates, updates and deletes.
type Subscriber struct {
	url     string
	did     string
	records domain.RecordRepository
	cursors domain.CursorRepository
	logger  *slog.Logger

	reconnectDelay time.Duration
}

// NewSubscriber creates a subscriber for the account identified by did.
func NewSubscriber(
	firehoseURL string,
	did string,
	records domain.RecordRepository,
	cursors domain.CursorRepository,
	logger *slog.Logger,
) *Subscriber {
	return &Subscriber{
		url:            firehoseURL,
		did:            did,
		records:        records,
		cursors:        cursors,
		logger:         logger,
		reconnectDelay: reconnectDelay,
	}
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse firehose url: %w", err)
	}
	q := u.Query()
	q.Add("wantedCollections", domain.PostCollection)
	q.Add("wantedDids", s.did)
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL, err := s.buildURL(cursor)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to firehose", "did", s.did)

	lastCursorSave := time.Now()
	var latestCursor int64
	var eventsReceived, postsSaved, postsDeleted int64
	lastStatsLog := time.Now()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if latestCursor > 0 {
				s.saveCursor(context.WithoutCancel(ctx), latestCursor)
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		latestCursor = event.TimeUS

		if event.Kind == kindCommit && event.Commit != nil {
			switch saved, deleted, err := s.handleCommit(ctx, event); {
			case err != nil:
				s.logger.Error("failed to handle commit", "error", err)
			case saved:
				postsSaved++
			case deleted:
				postsDeleted++
			}
		}

		if time.Since(lastStatsLog) >= statsInterval {
			s.logger.Info("firehose stats",
				"events_received", eventsReceived,
				"posts_saved", postsSaved,
				"posts_deleted", postsDeleted,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if s.saveCursor(ctx, latestCursor) {
				lastCursorSave = time.Now()
			}
		}
	}
}

func (s *Subscriber) saveCursor(ctx context.Context, cursor int64) bool {
	if err := s.cursors.UpdateCursor(ctx, cursorServiceName, cursor); err != nil {
		s.logger.Error("failed to save cursor", "error", err)
		return false
	}
	return true
}

func (s *Subscriber) handleCommit(ctx context.Context, event *jetstreamEvent) (saved, deleted bool, err error) {
	commit := event.Commit
	if commit.Collection != domain.PostCollection || event.DID != s.did {
		return false, false, nil
	}

	uri := event.uri()

	switch commit.Operation {
	case opCreate, opUpdate:
		res := domain.Normalize(event.rawPost())
		if !res.OK() {
			s.logger.Warn("skipping post record", "uri", uri, "error", res.Err)
			return false, false, nil
		}
		if _, err := s.records.SaveRecords(ctx, []domain.Record{*res.Record}); err != nil {
			return false, false, fmt.Errorf("save post: %w", err)
		}
		s.logger.Info("saved post", "uri", uri, "text_preview", truncate(res.Record.Text, 100))
		return true, false, nil

	case opDelete:
		if err := s.records.DeleteRecord(ctx, uri); err != nil {
			return false, false, fmt.Errorf("delete post: %w", err)
		}
		s.logger.Info("deleted post", "uri", uri)
		return false, true, nil

	default:
		return false, false, nil
	}
}

// truncate returns the first n runes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var event jetstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Kind != kindCommit {
		event.Commit = nil
	}
	return &event, nil
}
