package firehose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const watchedDID = "did:plc:watched"

type memoryStore struct {
	mu      sync.Mutex
	records map[string]domain.Record
	order   []string
	cursor  int64
	deletes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]domain.Record)}
}

func (m *memoryStore) SaveRecords(_ context.Context, records []domain.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.records[r.URI]; !ok {
			m.order = append(m.order, r.URI)
		}
		m.records[r.URI] = r
	}
	return len(records), nil
}

func (m *memoryStore) DeleteRecord(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, uri)
	m.deletes++
	return nil
}

func (m *memoryStore) ListRecords(context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, uri := range m.order {
		if r, ok := m.records[uri]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryStore) SaveReport(context.Context, *domain.Report) (string, error) {
	return "", errors.New("not implemented")
}

func (m *memoryStore) LatestReport(context.Context) (*domain.StoredReport, error) {
	return nil, domain.ErrNotFound
}

func (m *memoryStore) GetCursor(context.Context, string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *memoryStore) UpdateCursor(_ context.Context, _ string, cursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

func (m *memoryStore) snapshot() ([]domain.Record, int64) {
	records, _ := m.ListRecords(context.Background())
	m.mu.Lock()
	defer m.mu.Unlock()
	return records, m.cursor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testEvents = []string{
	`{"did":"did:plc:watched","time_us":100,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"1","cid":"c1","record":{"$type":"app.bsky.feed.post","text":"first #go","createdAt":"2024-01-01T10:00:00Z","facets":[{"features":[{"$type":"app.bsky.richtext.facet#tag","tag":"go"}]}]}}}`,
	`{"did":"did:plc:watched","time_us":200,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"2","cid":"c2","record":{"text":"second"}}}`,
	`{"did":"did:plc:other","time_us":250,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"9","cid":"c9","record":{"text":"someone else"}}}`,
	`{"did":"did:plc:watched","time_us":260,"kind":"commit","commit":{"operation":"create","collection":"app.bsky.feed.post","rkey":"3","cid":"c3","record":{"text":7}}}`,
	`not json`,
	`{"did":"did:plc:watched","time_us":300,"kind":"identity"}`,
	`{"did":"did:plc:watched","time_us":400,"kind":"commit","commit":{"operation":"delete","collection":"app.bsky.feed.post","rkey":"2"}}`,
}

func newJetstream(t *testing.T, queries chan<- url.Values) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, ev := range testEvents {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubscriber_SyncsWatchedAccount(t *testing.T) {
	queries := make(chan url.Values, 4)
	srv := newJetstream(t, queries)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/subscribe"

	store := newMemoryStore()
	sub := NewSubscriber(wsURL, watchedDID, store, store, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Start(ctx) }()

	// The delete is the last commit sent, so once it lands every event has
	// been handled.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.deletes == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	records, cursor := store.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, []string{"go"}, records[0].Hashtags)
	assert.Equal(t, 10, *records[0].Hour)
	assert.Equal(t, int64(400), cursor)

	q := <-queries
	assert.Equal(t, []string{domain.PostCollection}, q["wantedCollections"])
	assert.Equal(t, []string{watchedDID}, q["wantedDids"])
	assert.Empty(t, q.Get("cursor"))
}

func TestSubscriber_BuildURL(t *testing.T) {
	sub := NewSubscriber("wss://jetstream.example/subscribe?compress=false", watchedDID, nil, nil, discardLogger())

	u, err := sub.buildURL(1234)
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "1234", parsed.Query().Get("cursor"))
	assert.Equal(t, "false", parsed.Query().Get("compress"))
	assert.Equal(t, watchedDID, parsed.Query().Get("wantedDids"))

	u, err = sub.buildURL(0)
	require.NoError(t, err)
	assert.NotContains(t, u, "cursor=")
}

func TestParseEvent(t *testing.T) {
	ev, err := parseEvent([]byte(testEvents[0]))
	require.NoError(t, err)
	assert.Equal(t, "commit", ev.Kind)
	require.NotNil(t, ev.Commit)
	assert.Equal(t, "create", ev.Commit.Operation)
	assert.NotEmpty(t, ev.Commit.Record)

	ev, err = parseEvent([]byte(`{"kind":"account","commit":{"operation":"create"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Commit)

	_, err = parseEvent([]byte(`{`))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "hé...", truncate("héllo", 2))
}
