package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
	"github.com/blackmichael/bluesky-analyzer/internal/report"
)

const testDID = "did:plc:alice"

func init() {
	color.NoColor = true
}

var testPosts = []string{
	`{"text":"Hello #golang","createdAt":"2024-03-04T09:15:00Z","facets":[{"features":[{"$type":"app.bsky.richtext.facet#tag","tag":"golang"}]}]}`,
	`{"text":"Look at this","createdAt":"2024-03-05T14:00:00.000Z","embed":{"$type":"app.bsky.embed.images"}}`,
	`{"text":"Agreed","createdAt":"2024-03-06T09:45:00Z","reply":{"root":{"uri":"at://x"},"parent":{"uri":"at://x"}}}`,
}

// newFakePDS serves createSession, describeRepo and one-record pages of
// testPosts.
func newFakePDS(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["identifier"] != "alice.bsky.social" || body["password"] != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)
			return
		}
		fmt.Fprintf(w, `{"accessJwt":"access","refreshJwt":"refresh","did":%q,"handle":"alice.bsky.social"}`, testDID)
	})
	mux.HandleFunc("GET /xrpc/com.atproto.repo.listRecords", func(w http.ResponseWriter, r *http.Request) {
		start := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			start, _ = strconv.Atoi(c)
		}
		resp := map[string]any{"records": []domain.RawPost{}}
		if start < len(testPosts) {
			resp["records"] = []domain.RawPost{{
				URI:   fmt.Sprintf("at://%s/app.bsky.feed.post/%d", testDID, start),
				CID:   fmt.Sprintf("cid%d", start),
				Value: json.RawMessage(testPosts[start]),
			}}
			if start+1 < len(testPosts) {
				resp["cursor"] = strconv.Itoa(start + 1)
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	mux.HandleFunc("GET /xrpc/com.atproto.repo.describeRepo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"handle":"alice.bsky.social","did":%q,"collections":["app.bsky.feed.post"],"handleIsCorrect":true}`, testDID)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// isolate keeps the environment and home directory from leaking config into
// a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"BSKY_ANALYZER_HANDLE", "BSKY_ANALYZER_PASSWORD", "BSKY_ANALYZER_PDS",
		"BLUESKY_HANDLE", "BLUESKY_APP_PASSWORD", "BLUESKY_PDS",
	} {
		t.Setenv(key, "")
	}
}

func executeCommand(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(strings.NewReader(input))
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func readReport(t *testing.T, path string) domain.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rep domain.Report
	require.NoError(t, json.Unmarshal(data, &rep))
	return rep
}

func TestAnalyze_WritesOutputs(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "app-pass")
	pds := newFakePDS(t)
	dir := t.TempDir()

	out, err := executeCommand(t, "",
		"analyze", "--pds", pds.URL, "--handle", "alice.bsky.social",
		"--output-dir", dir, "--charts=false", "--page-delay", "1ms",
	)
	require.NoError(t, err, out)

	rep := readReport(t, filepath.Join(dir, "bluesky_analysis_analysis.json"))
	assert.Equal(t, 3, rep.TotalPosts)
	assert.Equal(t, []domain.TagCount{{Tag: "golang", Count: 1}}, rep.Hashtags.MostCommon)
	assert.Equal(t, 1, rep.Content.PostsWithImages)

	f, err := os.Open(filepath.Join(dir, "bluesky_analysis_posts.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := report.ReadCSV(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Contains(t, out, "Total posts: 3")
	assert.Contains(t, out, "Report written to")
}

func TestAnalyze_DefaultCommand(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "app-pass")
	pds := newFakePDS(t)
	dir := t.TempDir()

	_, err := executeCommand(t, "",
		"--pds", pds.URL, "--handle", "alice", "--output-dir", dir,
		"--charts=false", "--page-delay", "1ms", "--limit", "2", "--format", "yaml", "--quiet",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "bluesky_analysis_analysis.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "total_posts: 2")
}

func TestAnalyze_PromptsForMissingValues(t *testing.T) {
	isolate(t)
	pds := newFakePDS(t)
	dir := t.TempDir()

	out, err := executeCommand(t, "@alice\napp-pass\n1\n",
		"analyze", "--pds", pds.URL, "--output-dir", dir, "--charts=false", "--page-delay", "1ms",
	)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Bluesky handle")
	assert.Contains(t, out, "App Password")
	assert.Contains(t, out, "How many posts")
	rep := readReport(t, filepath.Join(dir, "bluesky_analysis_analysis.json"))
	assert.Equal(t, 1, rep.TotalPosts)
}

func TestAnalyze_AuthenticationFailure(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "wrong")
	pds := newFakePDS(t)
	dir := filepath.Join(t.TempDir(), "out")

	_, err := executeCommand(t, "",
		"analyze", "--pds", pds.URL, "--handle", "alice.bsky.social", "--output-dir", dir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authenticate")
	assert.NoDirExists(t, dir)
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, "", "analyze", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestAnalyze_SaveThenRegenerateFromDB(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "app-pass")
	pds := newFakePDS(t)
	db := filepath.Join(t.TempDir(), "posts.db")

	_, err := executeCommand(t, "",
		"analyze", "--pds", pds.URL, "--handle", "alice.bsky.social", "--db", db, "--save",
		"--output-dir", t.TempDir(), "--charts=false", "--page-delay", "1ms", "--quiet",
	)
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = executeCommand(t, "",
		"regenerate", "--from-db", "--db", db, "--output-dir", dir, "--charts=false", "--quiet",
	)
	require.NoError(t, err)

	rep := readReport(t, filepath.Join(dir, "bluesky_analysis_analysis.json"))
	assert.Equal(t, 3, rep.TotalPosts)
	require.NotNil(t, rep.PostingPatterns)
	assert.Equal(t, 9, rep.PostingPatterns.BusiestHour)
	assert.Equal(t, 2, rep.PostingPatterns.BusiestHourCount)
}

func TestRegenerate_FromCSV(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	var records []domain.Record
	for i, post := range testPosts {
		res := domain.Normalize(domain.RawPost{URI: fmt.Sprintf("at://x/%d", i), Value: json.RawMessage(post)})
		require.True(t, res.OK())
		records = append(records, *res.Record)
	}
	table := filepath.Join(dir, "old.csv")
	f, err := os.Create(table)
	require.NoError(t, err)
	require.NoError(t, report.WriteCSV(f, records))
	require.NoError(t, f.Close())

	out, err := executeCommand(t, "",
		"regenerate", table, "--output-dir", dir, "--output-prefix", "again", "--charts=false",
	)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Total posts: 3")
	assert.Contains(t, out, "Reply percentage: 33.3%")
	assert.FileExists(t, filepath.Join(dir, "again_posts.csv"))
	assert.FileExists(t, filepath.Join(dir, "again_analysis.json"))
}

func TestRegenerate_MissingTable(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, "", "regenerate", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open table")
}

func TestCheck(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "app-pass")
	pds := newFakePDS(t)

	out, err := executeCommand(t, "", "check", "--pds", pds.URL, "--handle", "alice.bsky.social")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Logged in as alice.bsky.social (did:plc:alice)")
	assert.Contains(t, out, "collections: app.bsky.feed.post")
	assert.Contains(t, out, "Fetched 1 sample posts")
	assert.Contains(t, out, "[2024-03-04] Hello #golang")
}

func TestServe_RefreshRequiresCredentials(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, "",
		"serve", "--db", filepath.Join(t.TempDir(), "posts.db"), "--refresh", "@hourly",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh requires handle and password")
}

func TestServe_InvalidRefreshSpec(t *testing.T) {
	isolate(t)
	t.Setenv("BSKY_ANALYZER_PASSWORD", "app-pass")

	_, err := executeCommand(t, "",
		"serve", "--handle", "alice", "--db", filepath.Join(t.TempDir(), "posts.db"), "--refresh", "every tuesday",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}

func TestPrompter_Limit(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{input: "\n", want: 0},
		{input: "25\n", want: 25},
		{input: "lots\n-1\n7\n", want: 7},
		{input: "12", want: 12},
	}
	for _, tt := range tests {
		t.Run(strconv.Quote(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := newPrompter(strings.NewReader(tt.input), &out).Limit()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompter_EOF(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader(""), &out)

	_, err := p.Handle()
	assert.Error(t, err)
	_, err = p.Limit()
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", preview("short\n  text", 60))
	assert.Equal(t, "héllo...", preview("héllo wörld", 5))
}
