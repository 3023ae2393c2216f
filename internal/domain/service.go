package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// PostSource supplies the raw post records of one account.
type PostSource interface {
	// FetchPosts returns up to limit records (all when limit is 0). On
	// cancellation it returns the records fetched so far with the context's
	// error.
	FetchPosts(ctx context.Context, limit int) ([]RawPost, error)
}

// Result is the output of one pipeline run.
type Result struct {
	// Fetched is the number of raw records received.
	Fetched int

	Records []Record
	Skipped []NormalizeResult
	Report  *Report

	// Interrupted is set when fetching stopped because the context was
	// cancelled; Records then holds the partial table.
	Interrupted bool
}

// Service runs the fetch, normalize and analyze pipeline for one account and
// optionally keeps a repository in sync with the table.
type Service struct {
	source PostSource
	repo   RecordRepository
	logger *slog.Logger
}

// NewService creates a Service. repo may be nil.
func NewService(source PostSource, repo RecordRepository, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		repo:   repo,
		logger: logger,
	}
}

// Run fetches up to limit posts, normalizes them and analyzes the resulting
// table. The stages run one after another. A cancelled fetch still produces a
// result for the records fetched so far.
func (s *Service) Run(ctx context.Context, limit int) (*Result, error) {
	raws, err := s.source.FetchPosts(ctx, limit)
	interrupted := false
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("fetch posts: %w", err)
		}
		interrupted = true
		s.logger.Warn("fetch interrupted, continuing with partial results", "fetched", len(raws))
	}

	res := Analyzed(raws, s.logger)
	res.Interrupted = interrupted
	return res, nil
}

// Analyzed normalizes raws and analyzes the table.
func Analyzed(raws []RawPost, logger *slog.Logger) *Result {
	records, skipped := NormalizeAll(raws, logger)
	if logger != nil {
		logger.Info("parsed posts", "records", len(records), "skipped", len(skipped))
		if len(records) == 0 {
			logger.Warn("no posts to analyze")
		}
	}

	return &Result{
		Fetched: len(raws),
		Records: records,
		Skipped: skipped,
		Report:  Analyze(records),
	}
}

// Refresh runs the pipeline over all posts and stores the table and report.
// It returns the saved report ID.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	if s.repo == nil {
		return "", errors.New("refresh: no repository configured")
	}

	res, err := s.Run(ctx, 0)
	if err != nil {
		return "", err
	}
	if res.Interrupted {
		return "", errors.New("refresh: fetch interrupted")
	}

	if _, err := s.repo.SaveRecords(ctx, res.Records); err != nil {
		return "", fmt.Errorf("save records: %w", err)
	}

	// The report covers the whole stored table, firehose posts included.
	stored, err := s.repo.ListRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("list records: %w", err)
	}
	id, err := s.repo.SaveReport(ctx, Analyze(stored))
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	s.logger.Info("refresh complete", "fetched", res.Fetched, "stored", len(stored), "report_id", id)
	return id, nil
}

// AnalyzeStored analyzes the repository's current table without saving.
func (s *Service) AnalyzeStored(ctx context.Context) (*Report, error) {
	if s.repo == nil {
		return nil, errors.New("analyze stored: no repository configured")
	}
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return Analyze(records), nil
}
