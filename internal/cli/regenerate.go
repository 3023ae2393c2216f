package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
	"github.com/blackmichael/bluesky-analyzer/internal/report"
)

func newRegenerateCmd(a *app) *cobra.Command {
	var fromDB bool

	cmd := &cobra.Command{
		Use:   "regenerate [table.csv]",
		Short: "Rebuild the report and charts from a saved table",
		Long: `Regenerate reads a posts table written by a previous analyze run (by default
<output-dir>/<output-prefix>_posts.csv) or, with --from-db, the SQLite store,
and writes the report, charts and summary again without contacting the API.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				records []domain.Record
				err     error
			)
			if fromDB {
				records, err = a.loadStored(cmd)
			} else {
				path := filepath.Join(a.cfg.OutputDir, a.cfg.OutputPrefix+report.TableSuffix)
				if len(args) == 1 {
					path = args[0]
				}
				records, err = a.loadTable(path)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No posts found.")
				return nil
			}

			return a.writeOutputs(cmd.Context(), cmd, records, domain.Analyze(records))
		},
	}

	addAnalyzeFlags(cmd.Flags())
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "read the table from the SQLite database instead of a CSV file")
	return cmd
}

func (a *app) loadTable(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	records, err := report.ReadCSV(f, a.logger)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	a.logger.Info("loaded table", "path", path, "records", len(records))
	return records, nil
}

func (a *app) loadStored(cmd *cobra.Command) ([]domain.Record, error) {
	repo, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	records, err := repo.ListRecords(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	a.logger.Info("loaded stored table", "db", a.cfg.DatabasePath, "records", len(records))
	return records, nil
}
