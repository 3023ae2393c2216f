package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-analyzer/internal/firehose"
	"github.com/blackmichael/bluesky-analyzer/internal/sqlite"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the account's new posts on Jetstream and keep the database in sync",
		Long: `Watch subscribes to the Jetstream firehose for the account's post collection.
Created and updated posts are normalized and stored in the SQLite database,
deleted posts are removed. The stream position is saved so a restart resumes
where it stopped.

The account is given with --did, or looked up by logging in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			did, err := a.resolveDID(ctx, cmd)
			if err != nil {
				return err
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			return a.watch(ctx, did, repo)
		},
	}
	cmd.Flags().String("did", "", "DID of the account to watch (skips login)")
	cmd.Flags().String("firehose-url", "wss://jetstream1.us-east.bsky.network/subscribe", "Jetstream subscribe endpoint")
	return cmd
}

// resolveDID returns the --did value, or the DID of the logged-in account.
func (a *app) resolveDID(ctx context.Context, cmd *cobra.Command) (string, error) {
	if did := a.v.GetString("did"); did != "" {
		return did, nil
	}
	_, session, err := a.login(ctx, cmd)
	if err != nil {
		return "", err
	}
	return session.DID, nil
}

// watch runs the subscriber until ctx is cancelled.
func (a *app) watch(ctx context.Context, did string, repo *sqlite.Repository) error {
	sub := firehose.NewSubscriber(a.cfg.FirehoseURL, did, repo, repo, a.logger)
	a.logger.Info("watching account", "did", did, "url", a.cfg.FirehoseURL)
	if err := sub.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("firehose: %w", err)
	}
	return nil
}
