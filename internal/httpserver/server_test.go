package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-analyzer/internal/config"
	"github.com/blackmichael/bluesky-analyzer/internal/domain"
	"github.com/blackmichael/bluesky-analyzer/internal/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Repository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	raws := []domain.RawPost{
		{URI: "at://a/1", CID: "c1", Value: json.RawMessage(`{"text":"hi #go","createdAt":"2024-02-01T08:00:00Z","facets":[{"features":[{"$type":"app.bsky.richtext.facet#tag","tag":"go"}]}]}`)},
		{URI: "at://a/2", CID: "c2", Value: json.RawMessage(`{"text":"reply","reply":{"root":{}}}`)},
	}
	records, _ := domain.NormalizeAll(raws, nil)
	_, err = repo.SaveRecords(context.Background(), records)
	require.NoError(t, err)

	cfg := &config.Config{Port: 3000}
	svc := domain.NewService(nil, repo, logger)
	srv := httptest.NewServer(NewServer(cfg, svc, repo, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, repo
}

func getJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Posts(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Posts []domain.Record `json:"posts"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, srv.URL+"/posts", &body))
	require.Len(t, body.Posts, 2)
	assert.Equal(t, "at://a/1", body.Posts[0].URI)
	assert.Equal(t, []string{"go"}, body.Posts[0].Hashtags)
	assert.Nil(t, body.Posts[1].CreatedAt)
	assert.True(t, body.Posts[1].IsReply)
}

func TestServer_Report(t *testing.T) {
	srv, _ := newTestServer(t)

	var report domain.Report
	assert.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, srv.URL+"/report", &report))
	assert.Equal(t, 2, report.TotalPosts)
	assert.Equal(t, 50.0, report.Content.ReplyPercentage)
	assert.Equal(t, []domain.TagCount{{Tag: "go", Count: 1}}, report.Hashtags.MostCommon)
	require.NotNil(t, report.PostingPatterns)
	assert.Equal(t, 8, report.PostingPatterns.BusiestHour)
}

func TestServer_SaveAndLatestReport(t *testing.T) {
	srv, _ := newTestServer(t)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, srv.URL+"/report/latest", &errBody))
	assert.Equal(t, "NotFound", errBody["error"])

	var saved struct {
		ID     string        `json:"id"`
		Report domain.Report `json:"report"`
	}
	assert.Equal(t, http.StatusCreated, getJSON(t, http.MethodPost, srv.URL+"/report", &saved))
	require.NotEmpty(t, saved.ID)

	var latest domain.StoredReport
	assert.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, srv.URL+"/report/latest", &latest))
	assert.Equal(t, saved.ID, latest.ID)
	assert.Equal(t, 2, latest.Report.TotalPosts)
}
