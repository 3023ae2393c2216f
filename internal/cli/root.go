package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blackmichael/bluesky-analyzer/internal/bluesky"
	"github.com/blackmichael/bluesky-analyzer/internal/config"
	"github.com/blackmichael/bluesky-analyzer/internal/sqlite"
)

// app carries the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	in      io.Reader
	prompt  *prompter

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return newRootCmd(os.Stdin).ExecuteContext(context.Background())
}

func newRootCmd(in io.Reader) *cobra.Command {
	a := &app{v: viper.New(), in: in}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "bluesky-analyzer",
		Short: "Fetch and analyze the posts of a Bluesky account",
		Long: `bluesky-analyzer downloads every post of a Bluesky account, turns the raw
records into a table and reports content, hashtag and posting-time statistics.

Running it without a subcommand is the same as "bluesky-analyzer analyze".`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runAnalyze,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.bluesky-analyzer/config.yaml)")
	pf.String("pds", "https://bsky.social", "PDS base URL")
	pf.String("handle", "", "account handle or email")
	pf.String("db", "bluesky_analysis.db", "SQLite database path")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.BoolP("quiet", "q", false, "suppress progress and summary output")

	addAnalyzeFlags(root.Flags())

	root.AddCommand(
		newAnalyzeCmd(a),
		newRegenerateCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup reads configuration for the command being run. Flags are bound by
// name, so every flag overrides the config key of the same name.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := config.ReadIn(a.v, a.cfgFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", "path", used)
	}
	return nil
}

// prompts returns the invocation's prompter. All prompts share one buffered
// reader over the input.
func (a *app) prompts(cmd *cobra.Command) *prompter {
	if a.prompt == nil {
		a.prompt = newPrompter(a.in, cmd.OutOrStdout())
	}
	return a.prompt
}

func addAnalyzeFlags(fs *pflag.FlagSet) {
	fs.Int("limit", 0, "maximum number of posts to fetch (0 = all)")
	fs.Duration("page-delay", bluesky.DefaultPageDelay, "pause between API pages")
	fs.String("output-dir", "bluesky_analysis", "directory for the table, report and charts")
	fs.String("output-prefix", "bluesky_analysis", "file name prefix for the table and report")
	fs.String("format", "json", "report format (json, yaml)")
	fs.Bool("charts", true, "render PNG charts")
	fs.Bool("save", false, "also store the table and report in the SQLite database")
}

func (a *app) openStore() (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.logger.Debug("opened database", "path", a.cfg.DatabasePath)
	return repo, nil
}
