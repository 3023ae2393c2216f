package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	raws []RawPost
	err  error
}

func (f *fakeSource) FetchPosts(_ context.Context, limit int) ([]RawPost, error) {
	raws := f.raws
	if limit > 0 && limit < len(raws) {
		raws = raws[:limit]
	}
	return raws, f.err
}

type fakeRepo struct {
	records []Record
	reports []*Report
}

func (r *fakeRepo) SaveRecords(_ context.Context, records []Record) (int, error) {
	r.records = append(r.records, records...)
	return len(records), nil
}

func (r *fakeRepo) DeleteRecord(context.Context, string) error { return nil }

func (r *fakeRepo) ListRecords(context.Context) ([]Record, error) { return r.records, nil }

func (r *fakeRepo) SaveReport(_ context.Context, report *Report) (string, error) {
	r.reports = append(r.reports, report)
	return fmt.Sprintf("report-%d", len(r.reports)), nil
}

func (r *fakeRepo) LatestReport(context.Context) (*StoredReport, error) {
	if len(r.reports) == 0 {
		return nil, ErrNotFound
	}
	return &StoredReport{ID: "latest", Report: r.reports[len(r.reports)-1]}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeRaws(n int) []RawPost {
	raws := make([]RawPost, n)
	for i := range raws {
		raws[i] = RawPost{
			URI:   fmt.Sprintf("at://did:plc:x/app.bsky.feed.post/%d", i),
			Value: []byte(fmt.Sprintf(`{"text":"post %d","createdAt":"2024-01-0%dT12:00:00Z"}`, i, i%9+1)),
		}
	}
	return raws
}

func TestService_Run(t *testing.T) {
	raws := append(fakeRaws(4), RawPost{URI: "broken"})
	svc := NewService(&fakeSource{raws: raws}, nil, testLogger())

	res, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Len(t, res.Records, 4)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Err, ErrMissingValue)
	assert.Equal(t, 4, res.Report.TotalPosts)
	assert.False(t, res.Interrupted)

	res, err = svc.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.TotalPosts)
}

func TestService_RunInterruptedKeepsPartialResults(t *testing.T) {
	svc := NewService(&fakeSource{raws: fakeRaws(3), err: context.Canceled}, nil, testLogger())

	res, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Len(t, res.Records, 3)
}

func TestService_RunFetchError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&fakeSource{err: boom}, nil, testLogger())

	_, err := svc.Run(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
}

func TestService_RunEmpty(t *testing.T) {
	svc := NewService(&fakeSource{}, nil, testLogger())

	res, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Report.TotalPosts)
	assert.Nil(t, res.Report.PostingPatterns)
}

func TestService_Refresh(t *testing.T) {
	repo := &fakeRepo{records: []Record{{URI: "at://earlier", Text: "from firehose", CharCount: 13}}}
	svc := NewService(&fakeSource{raws: fakeRaws(2)}, repo, testLogger())

	id, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "report-1", id)
	require.Len(t, repo.reports, 1)
	assert.Equal(t, 3, repo.reports[0].TotalPosts)

	report, err := svc.AnalyzeStored(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalPosts)
}

func TestService_RefreshWithoutRepository(t *testing.T) {
	svc := NewService(&fakeSource{}, nil, testLogger())

	_, err := svc.Refresh(context.Background())
	assert.Error(t, err)
	_, err = svc.AnalyzeStored(context.Background())
	assert.Error(t, err)
}
