package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-analyzer/internal/bluesky"
	"github.com/blackmichael/bluesky-analyzer/internal/domain"
	"github.com/blackmichael/bluesky-analyzer/internal/report"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch all posts of an account and write the table, report and charts",
		Args:  cobra.NoArgs,
		RunE:  a.runAnalyze,
	}
	addAnalyzeFlags(cmd.Flags())
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := a.cfg.Limit
	interactive := a.cfg.Handle == ""
	client, session, err := a.login(ctx, cmd)
	if err != nil {
		return err
	}
	if interactive && !cmd.Flags().Changed("limit") {
		if limit, err = a.prompts(cmd).Limit(); err != nil {
			return err
		}
	}

	fetcher := bluesky.NewFetcher(client, session, a.cfg.PageDelay, a.logger)
	spin := a.startSpinner(cmd, fetcher)
	res, err := domain.NewService(fetcher, nil, a.logger).Run(ctx, limit)
	spin.Stop()
	if err != nil {
		return err
	}
	if res.Interrupted {
		color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "Interrupted, analyzing the %d posts fetched so far\n", res.Fetched)
	}
	if len(res.Records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No posts found.")
		return nil
	}

	// Output is written even after an interrupt.
	return a.writeOutputs(context.WithoutCancel(ctx), cmd, res.Records, res.Report)
}

// login authenticates with the configured credentials, prompting for any
// that are missing.
func (a *app) login(ctx context.Context, cmd *cobra.Command) (*bluesky.Client, bluesky.Session, error) {
	handle, password := a.cfg.Handle, a.cfg.Password
	p := a.prompts(cmd)
	if handle == "" {
		var err error
		if handle, err = p.Handle(); err != nil {
			return nil, bluesky.Session{}, err
		}
	}
	if password == "" {
		var err error
		if password, err = p.Password(); err != nil {
			return nil, bluesky.Session{}, err
		}
	}

	client := bluesky.NewClient(a.cfg.PDS)
	session, err := bluesky.Authenticate(ctx, client, handle, password, a.logger)
	if err != nil {
		return nil, bluesky.Session{}, fmt.Errorf("authenticate: %w", err)
	}
	return client, session, nil
}

// writeOutputs saves the table and report files, renders charts, optionally
// stores everything in the database and prints the summary.
func (a *app) writeOutputs(ctx context.Context, cmd *cobra.Command, records []domain.Record, rep *domain.Report) error {
	format, err := report.ParseFormat(a.cfg.Format)
	if err != nil {
		return err
	}

	paths, err := report.Save(a.cfg.OutputDir, a.cfg.OutputPrefix, format, records, rep)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	var charts []string
	if a.cfg.Charts {
		charts, err = report.RenderCharts(a.cfg.OutputDir, records, a.logger)
		if err != nil {
			return fmt.Errorf("render charts: %w", err)
		}
	}

	if a.v.GetBool("save") {
		if err := a.store(ctx, records, rep); err != nil {
			return err
		}
	}

	if a.cfg.Quiet {
		return nil
	}

	out := cmd.OutOrStdout()
	report.PrintSummary(out, rep)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Table written to %s\n", paths.Table)
	fmt.Fprintf(out, "Report written to %s\n", paths.Report)
	for _, c := range charts {
		fmt.Fprintf(out, "Chart written to %s\n", c)
	}
	return nil
}

func (a *app) store(ctx context.Context, records []domain.Record, rep *domain.Report) error {
	repo, err := a.openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.SaveRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	id, err := repo.SaveReport(ctx, rep)
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	a.logger.Info("stored analysis", "records", n, "report_id", id, "db", a.cfg.DatabasePath)
	return nil
}

// startSpinner shows fetch progress on stderr. The returned spinner is safe to
// stop even when quiet mode never started it.
func (a *app) startSpinner(cmd *cobra.Command, f *bluesky.Fetcher) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Fetching posts..."
	if a.cfg.Quiet {
		return s
	}
	f.OnPage = func(total int) {
		s.Lock()
		s.Suffix = fmt.Sprintf(" Fetched %s posts", humanize.Comma(int64(total)))
		s.Unlock()
	}
	s.Start()
	return s
}
